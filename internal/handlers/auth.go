package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/consensus/internal/auth"
	"github.com/BradenHooton/consensus/internal/models"
	"github.com/BradenHooton/consensus/internal/query"
	"github.com/BradenHooton/consensus/internal/services"
	pkghttp "github.com/BradenHooton/consensus/pkg/http"
)

// AccountService defines the account operations behind the /auth routes
type AccountService interface {
	Login(ctx context.Context, username, password string, client services.ClientInfo) (*services.LoginResult, error)
	Logout(ctx context.Context, p *models.Principal, token string) error
	LogoutAll(ctx context.Context, p *models.Principal) (int64, error)
	ListUsers(ctx context.Context, params services.ListUsersParams) (*query.Result, error)
	CreateUser(ctx context.Context, actor *models.Principal, in services.CreateUserInput) (*models.User, error)
	UpdateUser(ctx context.Context, actor *models.Principal, id int64, in services.UpdateUserInput) error
	DeleteUser(ctx context.Context, actor *models.Principal, id int64) error
	ForgotPassword(ctx context.Context, email string) error
	ChangePassword(ctx context.Context, p *models.Principal, oldPassword, newPassword string) error
	EditProfile(ctx context.Context, p *models.Principal, in services.EditProfileInput) (*models.User, error)
}

// LoginObserver counts login outcomes
type LoginObserver interface {
	ObserveLogin(outcome string)
}

// Login outcomes reported to the LoginObserver
const (
	LoginSucceeded = "success"
	LoginRejected  = "invalid_credentials"
	LoginForbidden = "forbidden"
	LoginErrored   = "error"
)

// AuthHandler serves the session and account routes
type AuthHandler struct {
	service  AccountService
	ips      *pkghttp.IPResolver
	observer LoginObserver
	logger   *slog.Logger
}

func NewAuthHandler(service AccountService, ips *pkghttp.IPResolver, observer LoginObserver, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ips:      ips,
		observer: observer,
		logger:   logger,
	}
}

// Request DTOs

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=255"`
	Password string `json:"password" validate:"required,max=255"`
}

type CreateUserRequest struct {
	UserGroupID int64  `json:"userGroupId" validate:"required,gt=0"`
	Username    string `json:"username" validate:"required,max=255"`
	Password    string `json:"password" validate:"required,max=72"`
	FirstName   string `json:"firstName" validate:"required,max=255"`
	LastName    string `json:"lastName" validate:"omitempty,max=255"`
	Email       string `json:"email" validate:"required,email,max=255"`
	Address     string `json:"address" validate:"omitempty,max=512"`
	PhoneNumber string `json:"phoneNumber" validate:"omitempty,max=64"`
}

// UpdateUserRequest leaves the password unchanged when it is empty
type UpdateUserRequest struct {
	UserGroupID int64   `json:"userGroupId" validate:"required,gt=0"`
	Username    string  `json:"username" validate:"required,max=255"`
	Password    string  `json:"password" validate:"omitempty,max=72"`
	FirstName   string  `json:"firstName" validate:"required,max=255"`
	LastName    string  `json:"lastName" validate:"omitempty,max=255"`
	Email       string  `json:"email" validate:"required,email,max=255"`
	Address     *string `json:"address" validate:"omitempty,max=512"`
	PhoneNumber *string `json:"phoneNumber" validate:"omitempty,max=64"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,max=72"`
}

type EditProfileRequest struct {
	Username    string `json:"username" validate:"required,max=255"`
	Email       string `json:"email" validate:"required,email,max=255"`
	PhoneNumber string `json:"phoneNumber" validate:"omitempty,max=64"`
	Address     string `json:"address" validate:"omitempty,max=512"`
	Avatar      string `json:"avatar"`
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	client := services.ClientInfo{
		IPAddress: h.ips.ClientIP(r),
		UserAgent: pkghttp.UserAgent(r),
	}

	result, err := h.service.Login(r.Context(), req.Username, req.Password, client)
	if err != nil {
		h.observeLogin(err)
		h.writeError(w, r, err)
		return
	}

	h.observeLogin(nil)
	pkghttp.WriteSuccess(w, "Loggedin successful", result)
}

func (h *AuthHandler) observeLogin(err error) {
	if h.observer == nil {
		return
	}
	switch {
	case err == nil:
		h.observer.ObserveLogin(LoginSucceeded)
	case errors.Is(err, models.ErrUnauthenticated):
		h.observer.ObserveLogin(LoginRejected)
	case errors.Is(err, models.ErrForbidden):
		h.observer.ObserveLogin(LoginForbidden)
	case errors.Is(err, models.ErrValidation):
		// malformed request, not an attempt
	default:
		h.observer.ObserveLogin(LoginErrored)
	}
}

// Logout handles GET /auth/logout and revokes the presented token
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), auth.GetPrincipal(r.Context()), auth.GetToken(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	pkghttp.WriteSuccess(w, "Successfully Logout", nil)
}

// LogoutAll handles POST /auth/logout-all
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.LogoutAll(r.Context(), auth.GetPrincipal(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pkghttp.WriteSuccess(w, "Successfully logged out of all sessions", map[string]int64{"revoked": n})
}

// UserList handles GET /auth/userlist?limit=&offset=&keyword=&count=
func (h *AuthHandler) UserList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	count, err := query.ParseCountFlag(r.URL.Query().Get("count"))
	if err != nil {
		pkghttp.WriteServiceError(w, models.NewValidationError("count", "must be a boolean or a number"))
		return
	}

	params := services.ListUsersParams{
		Limit:   limit,
		Offset:  offset,
		Keyword: strings.TrimSpace(r.URL.Query().Get("keyword")),
		Count:   bool(count),
	}

	result, err := h.service.ListUsers(r.Context(), params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pkghttp.WriteSuccess(w, "Successfully get All user List", result)
}

// CreateUser handles POST /auth/create-user
func (h *AuthHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	user, err := h.service.CreateUser(r.Context(), auth.GetPrincipal(r.Context()), services.CreateUserInput{
		UserGroupID: req.UserGroupID,
		Username:    strings.TrimSpace(req.Username),
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       strings.TrimSpace(req.Email),
		Address:     req.Address,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pkghttp.WriteSuccess(w, "User saved successfully", models.PublicUser(user))
}

// UpdateUser handles PUT /auth/update-user/{id}
func (h *AuthHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	if err := auth.ForbidSelf(auth.GetPrincipal(r.Context()), id, auth.ActionEdit); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	var req UpdateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	err = h.service.UpdateUser(r.Context(), auth.GetPrincipal(r.Context()), id, services.UpdateUserInput{
		UserGroupID: req.UserGroupID,
		Username:    strings.TrimSpace(req.Username),
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       strings.TrimSpace(req.Email),
		Address:     req.Address,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pkghttp.WriteSuccess(w, "User updated successfully", nil)
}

// DeleteUser handles DELETE /auth/delete-user/{id}
func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	if err := h.service.DeleteUser(r.Context(), auth.GetPrincipal(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	pkghttp.WriteSuccess(w, "User Deleted successfully", nil)
}

// ForgotPassword handles POST /auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	pkghttp.WriteSuccess(w, "Your password has been sent to your email inbox.", nil)
}

// ChangePassword handles PUT /auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	err := h.service.ChangePassword(r.Context(), auth.GetPrincipal(r.Context()), req.OldPassword, req.NewPassword)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pkghttp.WriteSuccess(w, "Your password changed successfully", nil)
}

// EditProfile handles POST /auth/edit-profile
func (h *AuthHandler) EditProfile(w http.ResponseWriter, r *http.Request) {
	var req EditProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	user, err := h.service.EditProfile(r.Context(), auth.GetPrincipal(r.Context()), services.EditProfileInput{
		Username:    strings.TrimSpace(req.Username),
		Email:       strings.TrimSpace(req.Email),
		PhoneNumber: req.PhoneNumber,
		Address:     req.Address,
		Avatar:      req.Avatar,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pkghttp.WriteSuccess(w, "Successfully updated profile", models.PublicUser(user))
}

// writeError logs unexpected failures before mapping them to the envelope
func (h *AuthHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logError(h.logger, r, err)
	pkghttp.WriteServiceError(w, err)
}

func logError(logger *slog.Logger, r *http.Request, err error) {
	if logger == nil || models.IsDomainError(err) {
		return
	}
	logger.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
}

