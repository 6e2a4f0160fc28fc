package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/faucetdb/turnstile/internal/model"
	"github.com/faucetdb/turnstile/internal/service"
)

// maxAPIKeyDays caps the lifetime a caller may request for a new key.
const maxAPIKeyDays = 3650

// APIKeyHandler serves the caller's own API keys.
type APIKeyHandler struct {
	authSvc *service.AuthService
	logger  *slog.Logger
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(authSvc *service.AuthService, logger *slog.Logger) *APIKeyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIKeyHandler{authSvc: authSvc, logger: logger.With("component", "handler")}
}

type createAPIKeyRequest struct {
	Label         string `json:"label"`
	ExpiresInDays int    `json:"expires_in_days"`
}

type createAPIKeyResponse struct {
	APIKey string        `json:"api_key"`
	Key    *model.APIKey `json:"key"`
}

// List returns the caller's API keys. Expired keys are omitted unless
// ?include_expired=true.
// GET /api/v1/auth/api-key
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	keys, err := h.authSvc.ListAPIKeys(r.Context(), claims.UID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if !queryBool(r, "include_expired") {
		now := time.Now()
		live := keys[:0]
		for _, k := range keys {
			if !k.ExpiredAt(now) {
				live = append(live, k)
			}
		}
		keys = live
	}
	if keys == nil {
		keys = []model.APIKey{}
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: keys,
		Meta:     &model.ResponseMeta{Count: len(keys)},
	})
}

// Create issues a new API key for the caller. The raw key appears only in
// this response.
// POST /api/v1/auth/api-key
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var req createAPIKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error(), "invalid_input")
		return
	}
	if req.ExpiresInDays < 0 || req.ExpiresInDays > maxAPIKeyDays {
		writeError(w, http.StatusBadRequest, "expires_in_days must be between 0 and 3650", "invalid_input")
		return
	}

	ttl := time.Duration(req.ExpiresInDays) * 24 * time.Hour
	raw, key, err := h.authSvc.CreateAPIKey(r.Context(), claims.UID, req.Label, ttl)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, createAPIKeyResponse{APIKey: raw, Key: key})
}

// Revoke deletes one of the caller's API keys.
// DELETE /api/v1/auth/api-key/{keyId}
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	keyID := chi.URLParam(r, "keyId")
	if err := h.authSvc.RevokeAPIKey(r.Context(), claims.UID, keyID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "id": keyID})
}
