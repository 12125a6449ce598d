package handler

import (
	"net/http"

	"botfleet-api/internal/logging"
	"botfleet-api/internal/model"
	"botfleet-api/internal/repository"
	"botfleet-api/pkg/apierror"
	"botfleet-api/pkg/response"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
)

// SettingsHandler exposes the key/value settings.
type SettingsHandler struct {
	settings repository.SettingRepository
	logger   *log.Logger
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(settings repository.SettingRepository, logger *log.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings: settings,
		logger:   logging.Component(logger, "SettingsHandler"),
	}
}

type settingRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// List handles GET /api/v1/settings
func (h *SettingsHandler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.settings.AllSettings(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, all)
}

// Get handles GET /api/v1/settings/{key}
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	v, err := h.settings.GetSetting(r.Context(), key)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, settingRequest{Key: key, Value: v})
}

// Put handles PUT /api/v1/settings/{key}
func (h *SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	req.Key = chi.URLParam(r, "key")
	h.save(w, r, req)
}

// Set handles POST /api/v1/settings
func (h *SettingsHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.save(w, r, req)
}

func (h *SettingsHandler) save(w http.ResponseWriter, r *http.Request, req settingRequest) {
	if req.Key == "" {
		response.Error(w, apierror.ValidationError("invalid setting", apierror.FieldError{Field: "key", Message: "is required"}))
		return
	}
	if err := model.ValidateSetting(req.Key, req.Value); err != nil {
		response.Error(w, apierror.ValidationError("invalid setting", apierror.FieldError{Field: "value", Message: err.Error()}))
		return
	}
	if err := h.settings.SetSetting(r.Context(), req.Key, req.Value); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("setting updated", "key", req.Key)
	response.OK(w, req)
}
