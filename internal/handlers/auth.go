package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/BradenHooton/bankauth/internal/auth"
	"github.com/BradenHooton/bankauth/internal/models"
	pkghttp "github.com/BradenHooton/bankauth/pkg/http"
	pkglogger "github.com/BradenHooton/bankauth/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// LoginService defines the banking login operations the handlers need
type LoginService interface {
	Login(ctx context.Context, username, secret string) (models.LoginResult, error)
	LoginState(ctx context.Context, username string) (*models.AccountLoginState, error)
	Unlock(ctx context.Context, username string) (models.LoginResult, error)
}

// AuthHandler handles banking login and account lockout administration
type AuthHandler struct {
	service     LoginService
	ipResolver  *pkghttp.ClientIPResolver
	auditLogger *pkglogger.AuditLogger
	tokenExpiry time.Duration
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service LoginService, ipResolver *pkghttp.ClientIPResolver, auditLogger *pkglogger.AuditLogger, tokenExpiry time.Duration) *AuthHandler {
	return &AuthHandler{
		service:     service,
		ipResolver:  ipResolver,
		auditLogger: auditLogger,
		tokenExpiry: tokenExpiry,
	}
}

// LoginRequest represents the request body for a banking login
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

// LoginResponse is returned for an accepted login
type LoginResponse struct {
	User        *models.Profile `json:"user"`
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresIn   int             `json:"expires_in"`
}

// LoginStateResponse describes an account's lockout ledger entry
type LoginStateResponse struct {
	Username     string     `json:"username"`
	Status       string     `json:"status"`
	FailureCount int        `json:"failure_count"`
	WindowStart  *time.Time `json:"window_start,omitempty"`
}

// UnlockResponse is returned after an admin reset of an account's attempts
type UnlockResponse struct {
	Username string `json:"username"`
	Result   string `json:"result"`
}

// outcomeName is the stable label used in audit logs and admin responses
func outcomeName(result models.LoginResult) string {
	switch result.(type) {
	case models.LoginSuccess:
		return "success"
	case models.NoSuchAccount:
		return "no_such_account"
	case models.WrongPassword:
		return "wrong_password"
	case models.LockedOut:
		return "locked_out"
	case models.AttemptsReset:
		return "attempts_reset"
	default:
		return "unknown"
	}
}

// BankingLogin authenticates a username and password
//
// @Summary Banking login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} LoginResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Failure 500 {object} pkghttp.ErrorResponse
// @Router /banking/login [post]
func (h *AuthHandler) BankingLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	event := pkglogger.LoginAuditEvent{
		Username:  req.Username,
		IPAddress: h.ipResolver.ClientIP(r),
		Outcome:   outcomeName(result),
	}

	switch res := result.(type) {
	case models.LoginSuccess:
		event.Success = true
		event.UserID = res.Profile.ID
		h.auditLogger.LogLoginAttempt(r.Context(), event)

		pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
			User:        res.Profile,
			AccessToken: res.AccessToken,
			TokenType:   "Bearer",
			ExpiresIn:   int(h.tokenExpiry.Seconds()),
		})

	case models.NoSuchAccount:
		h.auditLogger.LogLoginAttempt(r.Context(), event)
		pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_username", "no account with that username")

	case models.WrongPassword:
		h.auditLogger.LogLoginAttempt(r.Context(), event)
		pkghttp.WriteInvalidPassword(w, res.AttemptsRemaining)

	case models.LockedOut:
		h.auditLogger.LogLoginAttempt(r.Context(), event)
		pkghttp.WriteAccountLocked(w, res.TimeRemaining, res.TimeRemainingMinutes())

	case models.AttemptsReset:
		h.auditLogger.LogLoginAttempt(r.Context(), event)
		pkghttp.WriteError(w, http.StatusUnauthorized, "attempts_reset", "login attempts were reset, please try again")

	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// LoginState returns the lockout ledger entry for an account (admin only)
//
// @Router /admin/accounts/{username}/login-state [get]
func (h *AuthHandler) LoginState(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	state, err := h.service.LoginState(r.Context(), username)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := LoginStateResponse{
		Username: username,
		Status:   string(models.LoginStatusActive),
	}
	if state != nil {
		windowStart := state.WindowStart
		resp.Username = state.Username
		resp.Status = string(state.Status)
		resp.FailureCount = state.FailureCount
		resp.WindowStart = &windowStart
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Unlock clears failed attempts and any active lock for an account (admin only)
//
// @Router /admin/accounts/{username}/unlock [post]
func (h *AuthHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	result, err := h.service.Unlock(r.Context(), username)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	actorID := ""
	if claims := auth.GetUserFromContext(r); claims != nil {
		actorID = claims.UserID
	}
	h.auditLogger.LogAccountAction(r.Context(), "login_attempts_reset", actorID, h.ipResolver.ClientIP(r), map[string]string{
		"target_username": pkglogger.SanitizedUsername(username),
	})

	pkghttp.WriteJSON(w, http.StatusOK, UnlockResponse{
		Username: username,
		Result:   outcomeName(result),
	})
}

// writeServiceError maps service sentinel errors to HTTP responses
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Already exists")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Unauthorized")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "Forbidden")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Bad request")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
