package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"botfleet-api/internal/model"
	"botfleet-api/internal/platform"
	"botfleet-api/pkg/apierror"
	"botfleet-api/pkg/response"

	"github.com/charmbracelet/log"
)

const maxBodyBytes = 1 << 20

// toAPIError maps domain errors onto HTTP errors. Unknown errors map to nil.
func toAPIError(err error) *apierror.Error {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, model.ErrNotFound):
		return apierror.NotFound(err.Error())
	case errors.Is(err, model.ErrInvalidInput):
		return apierror.BadRequest(err.Error())
	case errors.Is(err, model.ErrAlreadyExists),
		errors.Is(err, model.ErrAlreadyRunning),
		errors.Is(err, model.ErrExchangeInFlight),
		errors.Is(err, model.ErrNotReady):
		return apierror.Conflict(err.Error())
	case errors.Is(err, model.ErrNoTradableItems):
		return apierror.Unprocessable(err.Error())
	case errors.Is(err, model.ErrRateLimited):
		return apierror.TooManyRequests(err.Error())
	}

	var perr *platform.Error
	if errors.As(err, &perr) {
		if perr.Kind == platform.KindRateLimited {
			return apierror.TooManyRequests(perr.Error())
		}
		return apierror.ServiceUnavailable(perr.Error())
	}
	return nil
}

// writeError sends err as an API error, logging anything unexpected.
func writeError(w http.ResponseWriter, r *http.Request, logger *log.Logger, err error) {
	if apiErr := toAPIError(err); apiErr != nil {
		response.Error(w, apiErr)
		return
	}
	logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	response.Error(w, err)
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apierror.BadRequest("invalid JSON body")
	}
	return nil
}
