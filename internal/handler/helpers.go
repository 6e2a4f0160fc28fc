package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/faucetdb/turnstile/internal/config"
	"github.com/faucetdb/turnstile/internal/model"
	"github.com/faucetdb/turnstile/internal/server/middleware"
	"github.com/faucetdb/turnstile/internal/service"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope. reason may be empty.
func writeError(w http.ResponseWriter, code int, message, reason string) {
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Reason:  reason,
		},
	})
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryBool extracts a boolean query parameter. Returns false if the parameter
// is missing or not "true"/"1".
func queryBool(r *http.Request, key string) bool {
	val := r.URL.Query().Get(key)
	return val == "true" || val == "1"
}

// writeServiceError maps errors from the auth service to HTTP responses.
// Unknown errors are logged and reported as a generic 500.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var authErr *service.AuthError
	switch {
	case errors.As(err, &authErr):
		middleware.WriteAuthError(w, err)
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_input")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid email or password", "invalid_credentials")
	case errors.Is(err, service.ErrUserNotActive):
		writeError(w, http.StatusForbidden, "Account is not active", "user_not_active")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "Not allowed", "forbidden")
	case errors.Is(err, service.ErrEmailTaken), errors.Is(err, config.ErrConflict):
		writeError(w, http.StatusConflict, "Email already registered", "conflict")
	case errors.Is(err, config.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", "not_found")
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "internal")
	}
}

// requireClaims returns the claims attached by the Authenticate middleware,
// writing a 401 when they are absent.
func requireClaims(w http.ResponseWriter, r *http.Request) (service.Claims, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		middleware.WriteAuthError(w, service.ErrMissingCredential)
	}
	return claims, ok
}
