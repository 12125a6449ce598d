package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"botfleet-api/internal/cache"
	"botfleet-api/internal/logging"
	"botfleet-api/internal/model"
	"botfleet-api/internal/repository"
	"botfleet-api/pkg/response"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Proposer sends every tradable item of an account to a partner.
type Proposer interface {
	Propose(ctx context.Context, username, partnerURL string) (*model.OfferResult, error)
}

// exchangeGuardTTL bounds how long a crashed request can hold the guard.
const exchangeGuardTTL = 2 * time.Minute

// TradeHandler handles exchange requests. At most one exchange per account is
// in flight; the guard lives in the shared cache so it spans replicas when the
// cache is Redis.
type TradeHandler struct {
	exchange Proposer
	settings repository.SettingRepository
	guard    cache.Cache
	logger   *log.Logger
}

// NewTradeHandler creates a new trade handler.
func NewTradeHandler(exchange Proposer, settings repository.SettingRepository, guard cache.Cache, logger *log.Logger) *TradeHandler {
	return &TradeHandler{
		exchange: exchange,
		settings: settings,
		guard:    guard,
		logger:   logging.Component(logger, "TradeHandler"),
	}
}

type sendRequest struct {
	PartnerURL string `json:"partnerUrl"`
}

// Send handles POST /api/v1/trade/{username}/send. Without a partnerUrl the
// stored trade_link setting is used.
func (h *TradeHandler) Send(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	var req sendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	partner := strings.TrimSpace(req.PartnerURL)
	if partner == "" {
		v, err := h.settings.GetSetting(r.Context(), model.SettingTradeLink)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			writeError(w, r, h.logger, err)
			return
		}
		partner = strings.TrimSpace(v)
	}
	if partner == "" {
		writeError(w, r, h.logger, model.ErrInvalidInput.With("partnerUrl is required when no trade link is configured"))
		return
	}

	key := "exchange:" + username
	token := uuid.NewString()
	ok, err := h.guard.SetNX(r.Context(), key, []byte(token), exchangeGuardTTL)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !ok {
		writeError(w, r, h.logger, model.ErrExchangeInFlight.With("an exchange for %s is already in progress", username))
		return
	}
	defer func() {
		// the request context may already be cancelled
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.guard.Release(ctx, key, []byte(token)); err != nil {
			h.logger.Warn("failed to release exchange guard", "account", username, "err", err)
		}
	}()

	res, err := h.exchange.Propose(r.Context(), username, partner)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, res)
}
