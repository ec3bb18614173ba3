package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/pinmap/internal/auth"
	"github.com/onnwee/pinmap/internal/user"
	"github.com/onnwee/pinmap/internal/validate"
)

// TokenIssuer issues access tokens for authenticated users.
type TokenIssuer interface {
	GenerateAccessToken(username string) (string, error)
}

// UserHandlers holds dependencies for registration and login.
type UserHandlers struct {
	repo   user.Repository
	tokens TokenIssuer
}

// NewUserHandlers creates a new UserHandlers instance.
func NewUserHandlers(repo user.Repository, tokens TokenIssuer) *UserHandlers {
	return &UserHandlers{repo: repo, tokens: tokens}
}

// RegisterRequest is the body of POST /api/user/register.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,username"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LoginRequest is the body of POST /api/user/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the session identity and bearer token.
type LoginResponse struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Register handles POST /api/user/register.
func (h *UserHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeStructError(w, r, "Invalid registration", err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to hash password", "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to register user")
		return
	}

	u := &user.User{
		ID:           uuid.New().String(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.repo.Create(r.Context(), u); err != nil {
		if errors.Is(err, user.ErrDuplicateUser) {
			WriteError(w, r.Context(), http.StatusConflict, ErrCodeConflict, "Username or email already registered")
			return
		}
		slog.ErrorContext(r.Context(), "failed to create user", "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to register user")
		return
	}

	slog.InfoContext(r.Context(), "user registered", "username", u.Username)
	writeJSON(w, r.Context(), http.StatusCreated, u)
}

// Login handles POST /api/user/login.
// Unknown usernames and wrong passwords get the same response.
func (h *UserHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeStructError(w, r, "Invalid login", err)
		return
	}

	u, err := h.repo.GetByUsername(r.Context(), req.Username)
	if err != nil && !errors.Is(err, user.ErrUserNotFound) {
		slog.ErrorContext(r.Context(), "failed to load user", "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to log in")
		return
	}
	if u == nil || auth.CheckPassword(u.PasswordHash, req.Password) != nil {
		WriteError(w, r.Context(), http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid username or password")
		return
	}

	token, err := h.tokens.GenerateAccessToken(u.Username)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to issue token", "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to log in")
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, LoginResponse{Username: u.Username, Token: token})
}
