package service

import (
	"context"
	"fmt"
	"strings"

	"botfleet-api/internal/logging"
	"botfleet-api/internal/metrics"
	"botfleet-api/internal/model"
	"botfleet-api/internal/platform"
	"botfleet-api/internal/repository"

	"github.com/charmbracelet/log"
)

// SessionProvider hands out the live platform session of an online account.
type SessionProvider interface {
	Session(username string) (platform.Session, error)
}

// ExchangeService proposes exchange offers that move every tradable item of
// an account to a partner.
type ExchangeService struct {
	accounts   repository.AccountRepository
	sessions   SessionProvider
	metrics    *metrics.Metrics
	config     InventoryConfig
	normalizer Normalizer
	logger     *log.Logger
}

// NewExchangeService creates a new exchange service. config supplies the
// namespace and category listed for the offer.
func NewExchangeService(accounts repository.AccountRepository, sessions SessionProvider, m *metrics.Metrics, config InventoryConfig, logger *log.Logger) *ExchangeService {
	return &ExchangeService{
		accounts:   accounts,
		sessions:   sessions,
		metrics:    m,
		config:     config,
		normalizer: Normalizer{ImageBaseURL: config.ImageBaseURL},
		logger:     logging.Component(logger, "ExchangeService"),
	}
}

// Propose lists the account's primary inventory fresh from the platform and
// offers every tradable item to partnerURL in a single offer. Pending offers
// are confirmed when the account has an identity secret.
func (s *ExchangeService) Propose(ctx context.Context, username, partnerURL string) (*model.OfferResult, error) {
	partnerURL = strings.TrimSpace(partnerURL)
	if partnerURL == "" {
		return nil, model.ErrInvalidInput.With("partner trade URL is required")
	}

	account, err := s.accounts.GetAccountByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Session(username)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With("account", username)

	raw, err := sess.ListItems(ctx, s.config.AppID, s.config.ContextID)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}

	items := s.normalizer.Normalize(raw, s.config.AppID, s.config.ContextID, false)
	refs := make([]platform.ItemRef, 0, len(items))
	for _, it := range items {
		if it.Tradable {
			refs = append(refs, platform.ItemRef{AppID: it.AppID, ContextID: it.ContextID, AssetID: it.ID})
		}
	}
	if len(refs) == 0 {
		logger.Info("no tradable items to send", "listed", len(items))
		return nil, model.ErrNoTradableItems.With("account %s", username)
	}

	offer, err := sess.CreateOffer(ctx, partnerURL, refs)
	if err != nil {
		s.metrics.Offer("error")
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}
	s.metrics.Offer(string(offer.Status))
	logger.Info("offer sent", "offer", offer.ID, "status", offer.Status, "items", len(refs))

	if offer.Status == platform.OfferPending && account.CanConfirm() {
		if err := sess.ConfirmOffer(ctx, account.IdentitySecret, offer.ID); err != nil {
			logger.Warn("offer confirmation failed", "offer", offer.ID, "err", err)
		} else {
			logger.Info("offer confirmed", "offer", offer.ID)
		}
	}

	return &model.OfferResult{OfferID: offer.ID, Status: string(offer.Status), ItemCount: len(refs)}, nil
}
