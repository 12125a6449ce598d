package middleware

import (
	"net/http"
	"runtime/debug"

	"botfleet-api/internal/logging"
	"botfleet-api/pkg/apierror"

	"github.com/charmbracelet/log"
)

// Recovery returns a middleware that turns panics into 500 responses.
func Recovery(logger *log.Logger) func(http.Handler) http.Handler {
	logger = logging.Component(logger, "HTTP")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("panic", "err", err, "path", r.URL.Path, "request_id", GetRequestID(r.Context()), "stack", string(debug.Stack()))

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					w.Write(apierror.InternalError("internal server error").ToJSON())
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
