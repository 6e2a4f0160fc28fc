package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/faucetdb/turnstile/internal/model"
	"github.com/faucetdb/turnstile/internal/service"
)

// AuthHandler serves signup, login and session endpoints.
type AuthHandler struct {
	authSvc *service.AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authSvc *service.AuthService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{authSvc: authSvc, logger: logger.With("component", "handler")}
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Pending  bool   `json:"pending"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenLoginRequest struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
}

type confirmRequest struct {
	Token string `json:"token"`
}

type sessionResponse struct {
	Token     string      `json:"session_token"`
	TokenType string      `json:"token_type"`
	ExpiresAt int64       `json:"expires_at"`
	User      *model.User `json:"user"`
}

type pendingResponse struct {
	User    *model.User `json:"user"`
	Pending bool        `json:"pending"`
}

type meResponse struct {
	Claims service.Claims `json:"claims"`
	User   *model.User    `json:"user"`
}

// Signup creates an account. Active accounts are logged in immediately;
// pending accounts wait for email confirmation.
// POST /api/v1/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error(), "invalid_input")
		return
	}

	user, cookie, err := h.authSvc.Signup(r.Context(), service.SignupInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Pending:  req.Pending,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if cookie == nil {
		writeJSON(w, http.StatusCreated, pendingResponse{User: user, Pending: true})
		return
	}
	h.writeSession(w, http.StatusCreated, user, cookie)
}

// Login authenticates with email and password.
// POST /api/v1/auth/session
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error(), "invalid_input")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required", "invalid_input")
		return
	}

	user, cookie, err := h.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.writeSession(w, http.StatusOK, user, cookie)
}

// LoginWithToken exchanges a deployment-signed secret for a session.
// POST /api/v1/auth/session/token
func (h *AuthHandler) LoginWithToken(w http.ResponseWriter, r *http.Request) {
	var req tokenLoginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error(), "invalid_input")
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Secret) == "" {
		writeError(w, http.StatusBadRequest, "Email and secret are required", "invalid_input")
		return
	}

	user, cookie, err := h.authSvc.LoginWithToken(r.Context(), req.Email, req.Secret)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.writeSession(w, http.StatusOK, user, cookie)
}

// Logout clears the session cookie. Tokens are stateless, so a client that
// kept a copy can still use it until it expires.
// DELETE /api/v1/auth/session
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.authSvc.Issuer().ClearCookie())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Confirm activates a pending account from its verification token.
// POST /api/v1/auth/confirm
func (h *AuthHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error(), "invalid_input")
		return
	}

	user, cookie, err := h.authSvc.ConfirmEmail(r.Context(), req.Token)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.writeSession(w, http.StatusOK, user, cookie)
}

// Me returns the verified claims and the user they name.
// GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	user, err := h.authSvc.GetUser(r.Context(), claims.UID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{Claims: claims, User: user})
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, status int, user *model.User, cookie *http.Cookie) {
	claims, err := h.authSvc.Tokens().Decode(cookie.Value)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	http.SetCookie(w, cookie)
	writeJSON(w, status, sessionResponse{
		Token:     cookie.Value,
		TokenType: "bearer",
		ExpiresAt: claims.ExpiresAt,
		User:      user,
	})
}
