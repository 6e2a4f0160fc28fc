package service

import (
	"context"
	"log/slog"
	"strings"
)

// CredentialVerifier verifies an opaque credential such as an API key.
type CredentialVerifier interface {
	Verify(ctx context.Context, credential string) (Claims, error)
}

// Resolver turns an untyped credential into claims. It tries the credential
// as a session token first and falls back to API-key lookup only when the
// input is not token-shaped.
type Resolver struct {
	tokens  *TokenCodec
	apiKeys CredentialVerifier
	metrics *Metrics
	logger  *slog.Logger
}

// NewResolver creates a resolver. metrics may be nil.
func NewResolver(tokens *TokenCodec, apiKeys CredentialVerifier, metrics *Metrics, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		tokens:  tokens,
		apiKeys: apiKeys,
		metrics: metrics,
		logger:  logger.With("component", "resolver"),
	}
}

// Resolve verifies credential. An expired session token is final and never
// reaches the API-key store.
func (r *Resolver) Resolve(ctx context.Context, credential string) (Claims, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		r.metrics.observeResolution(modeNone, ErrMissingCredential)
		return Claims{}, ErrMissingCredential
	}

	claims, err := r.tokens.Verify(credential)
	if err == nil {
		r.metrics.observeResolution(modeToken, nil)
		return claims, nil
	}

	switch kind := KindOf(err); kind {
	case KindNotAToken:
		claims, err = r.apiKeys.Verify(ctx, credential)
		r.metrics.observeResolution(modeAPIKey, err)
		if err != nil {
			r.logDenied(modeAPIKey, err)
			return Claims{}, err
		}
		return claims, nil
	case KindTokenExpired, KindSignatureInvalid, KindInvalidClaims:
		r.metrics.observeResolution(modeToken, err)
		r.logDenied(modeToken, err)
		return Claims{}, err
	case KindMissingCredential, KindAPIKeyNotFound, KindAPIKeyExpired, KindInternal:
		r.metrics.observeResolution(modeToken, err)
		r.logger.Error("unexpected token verification failure", "kind", kind.String(), "error", err)
		return Claims{}, err
	default:
		r.metrics.observeResolution(modeToken, err)
		return Claims{}, err
	}
}

func (r *Resolver) logDenied(mode string, err error) {
	kind := KindOf(err)
	if kind == KindInternal {
		r.logger.Error("credential verification failed", "mode", mode, "error", err)
		return
	}
	r.logger.Debug("credential rejected", "mode", mode, "reason", kind.String())
}
