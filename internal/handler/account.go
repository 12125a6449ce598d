package handler

import (
	"context"
	"net/http"

	"botfleet-api/internal/logging"
	"botfleet-api/internal/model"
	"botfleet-api/internal/orchestrator"
	"botfleet-api/internal/repository"
	"botfleet-api/pkg/apierror"
	"botfleet-api/pkg/response"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
)

// Lifecycle is the orchestrator surface used by the HTTP layer.
type Lifecycle interface {
	Start(ctx context.Context, username string) error
	Stop(username string)
	Remove(username string)
	ForceReauthenticate(ctx context.Context, username string) error
	SubmitCode(ctx context.Context, username, code string) error
	Query(username string) orchestrator.Status
	List() []orchestrator.Status
}

// AccountHandler handles account CRUD.
type AccountHandler struct {
	accounts  repository.AccountRepository
	lifecycle Lifecycle
	logger    *log.Logger
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(accounts repository.AccountRepository, lifecycle Lifecycle, logger *log.Logger) *AccountHandler {
	return &AccountHandler{
		accounts:  accounts,
		lifecycle: lifecycle,
		logger:    logging.Component(logger, "AccountHandler"),
	}
}

// AccountView is an account with its current lifecycle status.
type AccountView struct {
	*model.Account
	Status orchestrator.Status `json:"status"`
}

type createAccountRequest struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	Email          string `json:"email"`
	SharedSecret   string `json:"shared_secret"`
	IdentitySecret string `json:"identity_secret"`
	RecoveryCode   string `json:"recovery_code"`
	Start          bool   `json:"start"`
}

// List handles GET /api/v1/accounts
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.ListAccounts(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	views := make([]AccountView, 0, len(accounts))
	for i := range accounts {
		a := &accounts[i]
		views = append(views, AccountView{Account: a, Status: h.lifecycle.Query(a.Username)})
	}
	response.OK(w, views)
}

// Get handles GET /api/v1/accounts/{username}
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	a, err := h.accounts.GetAccountByUsername(r.Context(), username)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, AccountView{Account: a, Status: h.lifecycle.Query(username)})
}

// Create handles POST /api/v1/accounts
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var details []apierror.FieldError
	if req.Username == "" {
		details = append(details, apierror.FieldError{Field: "username", Message: "is required"})
	}
	if req.Password == "" {
		details = append(details, apierror.FieldError{Field: "password", Message: "is required"})
	}
	if len(details) > 0 {
		response.Error(w, apierror.ValidationError("invalid account", details...))
		return
	}

	a := &model.Account{
		Username:       req.Username,
		Password:       req.Password,
		Email:          req.Email,
		SharedSecret:   req.SharedSecret,
		IdentitySecret: req.IdentitySecret,
		RecoveryCode:   req.RecoveryCode,
	}
	if err := h.accounts.CreateAccount(r.Context(), a); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("account added", "account", a.Username)

	if req.Start {
		if err := h.lifecycle.Start(r.Context(), a.Username); err != nil {
			h.logger.Warn("failed to start new account", "account", a.Username, "err", err)
		}
	}
	response.Created(w, AccountView{Account: a, Status: h.lifecycle.Query(a.Username)})
}

// Update handles PATCH /api/v1/accounts/{username}. A running account whose
// credentials change is re-authenticated.
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	var upd model.AccountUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if upd.IsEmpty() {
		response.Error(w, apierror.BadRequest("nothing to update"))
		return
	}

	a, err := h.accounts.GetAccountByUsername(r.Context(), username)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	a, err = h.accounts.UpdateAccount(r.Context(), a.ID, upd)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if upd.TouchesCredentials() && h.lifecycle.Query(username).State.Live() {
		if err := h.lifecycle.ForceReauthenticate(r.Context(), username); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}
	response.OK(w, AccountView{Account: a, Status: h.lifecycle.Query(username)})
}

// Delete handles DELETE /api/v1/accounts/{username}
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	a, err := h.accounts.GetAccountByUsername(r.Context(), username)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.lifecycle.Remove(username)
	if err := h.accounts.DeleteAccount(r.Context(), a.ID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("account deleted", "account", username)
	response.NoContent(w)
}
