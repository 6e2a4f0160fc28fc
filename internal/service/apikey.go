package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/faucetdb/turnstile/internal/config"
	"github.com/faucetdb/turnstile/internal/model"
)

const (
	// APIKeyPrefixTag starts every generated key, which makes keys easy to
	// spot in logs and secret scanners.
	APIKeyPrefixTag = "ts_"

	apiKeyRandomBytes = 32
	apiKeyDisplayLen  = 11
)

// GenerateAPIKey returns a new raw API key. It is shown to the owner once
// and never stored.
func GenerateAPIKey() (string, error) {
	b := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return APIKeyPrefixTag + hex.EncodeToString(b), nil
}

// HashAPIKey returns the hex SHA-256 of a raw key. It is unsalted so the
// hash can be used as the lookup key.
func HashAPIKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// APIKeyPrefix returns the displayable start of a raw key.
func APIKeyPrefix(raw string) string {
	if len(raw) <= apiKeyDisplayLen {
		return raw
	}
	return raw[:apiKeyDisplayLen]
}

// APIKeyStore is the persistence needed to verify API keys.
type APIKeyStore interface {
	GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error)
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
}

// APIKeyVerifier resolves raw API keys to claims.
type APIKeyVerifier struct {
	store   APIKeyStore
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewAPIKeyVerifier creates a verifier over store. metrics may be nil.
func NewAPIKeyVerifier(store APIKeyStore, metrics *Metrics, logger *slog.Logger) *APIKeyVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIKeyVerifier{
		store:   store,
		metrics: metrics,
		logger:  logger.With("component", "apikey"),
		now:     time.Now,
	}
}

// Verify looks up raw by its hash. An unknown key is KindAPIKeyNotFound; a
// key whose expiry is at or before now is KindAPIKeyExpired. On success the
// key's used_at is set to now. Failing to record use is logged and does not
// fail the request.
func (v *APIKeyVerifier) Verify(ctx context.Context, raw string) (Claims, error) {
	key, err := v.store.GetAPIKeyByHash(ctx, HashAPIKey(raw))
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return Claims{}, newAuthError(KindAPIKeyNotFound, err)
		}
		return Claims{}, newAuthError(KindInternal, fmt.Errorf("look up api key: %w", err))
	}

	now := v.now()
	if key.ExpiredAt(now) {
		return Claims{}, newAuthError(KindAPIKeyExpired, fmt.Errorf("expired at %s", key.ExpiresAt.UTC().Format(time.RFC3339)))
	}

	if err := v.store.TouchAPIKey(ctx, key.ID, now); err != nil {
		v.logger.Warn("failed to record api key use", "key_id", key.ID, "key_prefix", key.KeyPrefix, "error", err)
		v.metrics.touchFailed()
	}

	return Claims{
		UID:       key.UserID,
		IssuedAt:  now.Unix(),
		ExpiresAt: key.ExpiresAt.Unix(),
	}, nil
}
