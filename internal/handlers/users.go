package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/bankauth/internal/auth"
	"github.com/BradenHooton/bankauth/internal/models"
	pkgauth "github.com/BradenHooton/bankauth/pkg/auth"
	pkghttp "github.com/BradenHooton/bankauth/pkg/http"
	pkglogger "github.com/BradenHooton/bankauth/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// UserService defines the interface for user business logic
type UserService interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
	CreateUser(ctx context.Context, user *models.User, password string) (*models.User, error)
	UpdateUser(ctx context.Context, id string, user *models.User) (*models.User, error)
	ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error
	DeleteUser(ctx context.Context, id string) error
}

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	service     UserService
	auditLogger *pkglogger.AuditLogger
	ipResolver  *pkghttp.ClientIPResolver
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(service UserService) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// WithAudit enables audit logging of password changes
func (h *UserHandler) WithAudit(auditLogger *pkglogger.AuditLogger, ipResolver *pkghttp.ClientIPResolver) *UserHandler {
	h.auditLogger = auditLogger
	h.ipResolver = ipResolver
	return h
}

// CreateUserRequest represents the request body for creating a user
type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64,alphanumunicode"`
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,min=1,max=128"`
	Password string `json:"password" validate:"required"`
}

// UpdateUserRequest represents the request body for updating a user
type UpdateUserRequest struct {
	Name  string `json:"name" validate:"omitempty,min=1,max=128"`
	Email string `json:"email" validate:"omitempty,email"`
	Role  string `json:"role" validate:"omitempty,oneof=user admin"`
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ListUsersResponse represents a list of users
type ListUsersResponse struct {
	Users  []*UserResponse `json:"users"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

func userModelToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
}

// GetUser retrieves a user by ID
//
// @Summary Get user by ID
// @Param id path string true "User ID"
// @Produce json
// @Success 200 {object} UserResponse
// @Router /users/{id} [get]
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	if err := h.checkUserAccess(r, userID); err != nil {
		pkghttp.WriteForbidden(w, "You cannot access this resource")
		return
	}

	user, err := h.service.GetUserByID(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, userModelToResponse(user))
}

// ListUsers retrieves a list of users with pagination
//
// @Summary List users
// @Param limit query int false "Limit (default 10)" default(10)
// @Param offset query int false "Offset (default 0)" default(0)
// @Router /users [get]
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r.URL.Query().Get("limit"), 10, 1, 100)
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid limit parameter")
		return
	}

	offset, err := parseIntParam(r.URL.Query().Get("offset"), 0, 0, 10000)
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid offset parameter")
		return
	}

	users, err := h.service.ListUsers(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response := &ListUsersResponse{
		Users:  make([]*UserResponse, len(users)),
		Total:  len(users),
		Limit:  limit,
		Offset: offset,
	}
	for i, user := range users {
		response.Users[i] = userModelToResponse(user)
	}

	pkghttp.WriteJSON(w, http.StatusOK, response)
}

// CreateUser registers a new account
//
// @Summary Create a new user
// @Accept json
// @Param request body CreateUserRequest true "Create user request"
// @Success 201 {object} UserResponse
// @Failure 409 {object} pkghttp.ErrorResponse
// @Router /users [post]
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user := &models.User{
		Username: strings.TrimSpace(req.Username),
		Email:    req.Email,
		Name:     strings.TrimSpace(req.Name),
		Role:     models.RoleUser,
	}

	createdUser, err := h.service.CreateUser(r.Context(), user, req.Password)
	if err != nil {
		var validationErr *pkgauth.PasswordValidationError
		if errors.As(err, &validationErr) {
			pkghttp.WriteBadRequest(w, validationErr.Error())
			return
		}
		if errors.Is(err, models.ErrConflict) {
			pkghttp.WriteConflict(w, "Username or email already registered")
			return
		}
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, userModelToResponse(createdUser))
}

// UpdateUser updates profile fields of a user. Only admins may change roles.
//
// @Summary Update a user
// @Param id path string true "User ID"
// @Router /users/{id} [put]
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	if err := h.checkUserAccess(r, userID); err != nil {
		pkghttp.WriteForbidden(w, "You cannot access this resource")
		return
	}

	var req UpdateUserRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if req.Role != "" && !h.isAdmin(r) {
		pkghttp.WriteForbidden(w, "Only administrators can change roles")
		return
	}

	updatedUser, err := h.service.UpdateUser(r.Context(), userID, &models.User{
		Name:  req.Name,
		Email: req.Email,
		Role:  req.Role,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			pkghttp.WriteConflict(w, "Email already registered")
			return
		}
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, userModelToResponse(updatedUser))
}

// ChangePassword replaces a user's password after checking the current one
//
// @Router /users/{id}/password [put]
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	if err := h.checkUserAccess(r, userID); err != nil {
		pkghttp.WriteForbidden(w, "You cannot access this resource")
		return
	}

	var req ChangePasswordRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.service.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword)
	var lockedErr *models.AccountLockedError
	if h.auditLogger != nil && (err == nil || errors.Is(err, models.ErrUnauthorized) || errors.As(err, &lockedErr)) {
		h.auditLogger.LogPasswordChange(r.Context(), userID, h.ipResolver.ClientIP(r), err == nil)
	}
	if err != nil {
		var validationErr *pkgauth.PasswordValidationError
		switch {
		case errors.As(err, &validationErr):
			pkghttp.WriteBadRequest(w, validationErr.Error())
		case errors.As(err, &lockedErr):
			pkghttp.WriteAccountLocked(w, lockedErr.TimeRemaining, models.LockedOut{TimeRemaining: lockedErr.TimeRemaining}.TimeRemainingMinutes())
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Current password is incorrect")
		default:
			writeServiceError(w, err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteUser deletes a user
//
// @Router /users/{id} [delete]
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	if err := h.service.DeleteUser(r.Context(), userID); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// checkUserAccess allows a user to reach their own record and admins to reach any
func (h *UserHandler) checkUserAccess(r *http.Request, requestedUserID string) error {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		return errors.New("user not found in context")
	}

	if claims.UserID == requestedUserID {
		return nil
	}

	if h.isAdmin(r) {
		return nil
	}

	return errors.New("insufficient permissions")
}

func (h *UserHandler) isAdmin(r *http.Request) bool {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		return false
	}

	user, err := h.service.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		return false
	}
	return user.Role == models.RoleAdmin
}

// parseIntParam parses an optional integer query value within [min, max]
func parseIntParam(value string, defaultVal, min, max int) (int, error) {
	if value == "" {
		return defaultVal, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	if n < min || n > max {
		return 0, errors.New("parameter out of range")
	}

	return n, nil
}
