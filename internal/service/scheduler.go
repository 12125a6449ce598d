package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"botfleet-api/internal/logging"
	"botfleet-api/internal/model"
	"botfleet-api/internal/repository"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// Starter starts the lifecycle of one account.
type Starter interface {
	Start(ctx context.Context, username string) error
}

// LoginConfig holds the scheduling defaults used when no setting is stored.
type LoginConfig struct {
	Mode  string
	Delay time.Duration
}

// LoginScheduler starts every stored account at boot, either spaced out by
// a delay or all at once.
type LoginScheduler struct {
	accounts repository.AccountRepository
	settings repository.SettingRepository
	starter  Starter
	config   LoginConfig
	logger   *log.Logger
}

// NewLoginScheduler creates a new login scheduler.
func NewLoginScheduler(accounts repository.AccountRepository, settings repository.SettingRepository, starter Starter, config LoginConfig, logger *log.Logger) *LoginScheduler {
	if config.Mode == "" {
		config.Mode = model.LoginModeSequential
	}
	return &LoginScheduler{
		accounts: accounts,
		settings: settings,
		starter:  starter,
		config:   config,
		logger:   logging.Component(logger, "LoginScheduler"),
	}
}

// Plan resolves the mode and delay, preferring stored settings.
func (s *LoginScheduler) Plan(ctx context.Context) (mode string, delay time.Duration) {
	mode, delay = s.config.Mode, s.config.Delay

	if v, err := s.settings.GetSetting(ctx, model.SettingLoginMode); err == nil && v != "" {
		mode = v
	}
	if v, err := s.settings.GetSetting(ctx, model.SettingLoginDelay); err == nil && v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			delay = time.Duration(ms) * time.Millisecond
		} else {
			s.logger.Warn("ignoring invalid login delay", "value", v)
		}
	}

	// "queue" is the legacy name of the sequential mode
	if mode == "queue" {
		mode = model.LoginModeSequential
	}
	return mode, delay
}

// StartAll starts every stored account and returns how many were started.
// It blocks until the last start was issued or ctx is done.
func (s *LoginScheduler) StartAll(ctx context.Context) (int, error) {
	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return 0, err
	}
	if len(accounts) == 0 {
		s.logger.Warn("no accounts in store")
		return 0, nil
	}

	mode, delay := s.Plan(ctx)
	s.logger.Info("starting accounts", "count", len(accounts), "mode", mode, "delay", delay)

	var limiter *rate.Limiter
	if mode == model.LoginModeSequential && delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	}

	started := 0
	for i, a := range accounts {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return started, err
			}
		}
		if err := ctx.Err(); err != nil {
			return started, err
		}

		s.logger.Info("logging in", "account", a.Username, "position", i+1, "total", len(accounts))
		if err := s.starter.Start(ctx, a.Username); err != nil {
			if errors.Is(err, model.ErrAlreadyRunning) {
				s.logger.Debug("already running", "account", a.Username)
				continue
			}
			s.logger.Error("failed to start", "account", a.Username, "err", err)
			continue
		}
		started++
	}
	return started, nil
}
