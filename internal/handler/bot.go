package handler

import (
	"context"
	"net/http"

	"botfleet-api/internal/logging"
	"botfleet-api/pkg/apierror"
	"botfleet-api/pkg/response"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
)

// BulkStarter starts every account according to the login schedule.
type BulkStarter interface {
	StartAll(ctx context.Context) (int, error)
}

// BotHandler drives account lifecycles.
type BotHandler struct {
	lifecycle Lifecycle
	scheduler BulkStarter
	baseCtx   context.Context
	logger    *log.Logger
}

// NewBotHandler creates a new bot handler. Bulk starts run on baseCtx so they
// outlive the request and stop with the server.
func NewBotHandler(baseCtx context.Context, lifecycle Lifecycle, scheduler BulkStarter, logger *log.Logger) *BotHandler {
	return &BotHandler{
		lifecycle: lifecycle,
		scheduler: scheduler,
		baseCtx:   baseCtx,
		logger:    logging.Component(logger, "BotHandler"),
	}
}

// List handles GET /api/v1/bots
func (h *BotHandler) List(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.lifecycle.List())
}

// Status handles GET /api/v1/bots/{username}
func (h *BotHandler) Status(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.lifecycle.Query(chi.URLParam(r, "username")))
}

// Start handles POST /api/v1/bots/{username}/start
func (h *BotHandler) Start(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if err := h.lifecycle.Start(r.Context(), username); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusAccepted, h.lifecycle.Query(username))
}

// Stop handles POST /api/v1/bots/{username}/stop
func (h *BotHandler) Stop(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	h.lifecycle.Stop(username)
	response.OK(w, h.lifecycle.Query(username))
}

// Reauthenticate handles POST /api/v1/bots/{username}/reauthenticate
func (h *BotHandler) Reauthenticate(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if err := h.lifecycle.ForceReauthenticate(r.Context(), username); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusAccepted, h.lifecycle.Query(username))
}

type codeRequest struct {
	Code string `json:"code"`
}

// SubmitCode handles POST /api/v1/bots/{username}/code
func (h *BotHandler) SubmitCode(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	var req codeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Code == "" {
		response.Error(w, apierror.BadRequest("code is required"))
		return
	}
	if err := h.lifecycle.SubmitCode(r.Context(), username, req.Code); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusAccepted, h.lifecycle.Query(username))
}

// StartAll handles POST /api/v1/bots/start-all
func (h *BotHandler) StartAll(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		response.Error(w, apierror.ServiceUnavailable("login scheduler not configured"))
		return
	}
	go func() {
		n, err := h.scheduler.StartAll(h.baseCtx)
		if err != nil {
			h.logger.Warn("bulk start interrupted", "started", n, "err", err)
			return
		}
		h.logger.Info("bulk start finished", "started", n)
	}()
	response.JSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}
