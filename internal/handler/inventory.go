package handler

import (
	"context"
	"net/http"
	"strconv"

	"botfleet-api/internal/logging"
	"botfleet-api/internal/model"
	"botfleet-api/internal/service"
	"botfleet-api/pkg/apierror"
	"botfleet-api/pkg/response"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
)

// InventoryReader is the inventory service surface used by the HTTP layer.
type InventoryReader interface {
	Get(ctx context.Context, username string) ([]model.Item, bool, error)
	Refresh(ctx context.Context, req service.RefreshRequest) (*service.RefreshResult, error)
	ClearCache(ctx context.Context, username string) (int64, error)
}

// InventoryHandler handles inventory-related HTTP requests.
type InventoryHandler struct {
	inventory InventoryReader
	sessions  service.SessionProvider
	logger    *log.Logger
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(inventory InventoryReader, sessions service.SessionProvider, logger *log.Logger) *InventoryHandler {
	return &InventoryHandler{
		inventory: inventory,
		sessions:  sessions,
		logger:    logging.Component(logger, "InventoryHandler"),
	}
}

// Get handles GET /api/v1/inventory/{username}
func (h *InventoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	items, fresh, err := h.inventory.Get(r.Context(), username)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	response.OK(w, map[string]interface{}{
		"username": username,
		"items":    items,
		"count":    len(items),
		"fresh":    fresh,
	})
}

// Refresh handles POST /api/v1/inventory/{username}/refresh?force=true
func (h *InventoryHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			response.Error(w, apierror.BadRequest("force must be a boolean"))
			return
		}
		force = b
	}

	// a fresh cache entry is served even without a live session
	sess, _ := h.sessions.Session(username)
	res, err := h.inventory.Refresh(r.Context(), service.RefreshRequest{
		Username: username,
		Session:  sess,
		Force:    force,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"username":  username,
		"items":     res.Items,
		"count":     len(res.Items),
		"fromCache": res.FromCache,
	})
}

// ClearAccount handles DELETE /api/v1/inventory/{username}/cache
func (h *InventoryHandler) ClearAccount(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	n, err := h.inventory.ClearCache(r.Context(), username)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, map[string]interface{}{"deleted": n})
}

// ClearAll handles DELETE /api/v1/inventory/cache
func (h *InventoryHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.inventory.ClearCache(r.Context(), "")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, map[string]interface{}{"deleted": n})
}
