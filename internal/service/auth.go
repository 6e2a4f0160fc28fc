package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/faucetdb/turnstile/internal/config"
	"github.com/faucetdb/turnstile/internal/model"
)

const (
	// DefaultAPIKeyTTL is the lifetime of a new API key when none is given.
	DefaultAPIKeyTTL = 365 * 24 * time.Hour

	// DefaultVerificationTTL is the longest lifetime a token may have and
	// still be exchanged for a session by LoginWithToken or ConfirmEmail.
	DefaultVerificationTTL = 24 * time.Hour

	// MinPasswordLen is the shortest accepted password.
	MinPasswordLen = 8
)

// ConfirmationSender delivers the confirmation token to a pending user.
type ConfirmationSender interface {
	SendConfirmation(ctx context.Context, user *model.User, token string) error
}

// LogSender records that a confirmation is pending without delivering it.
// The token itself is never logged.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) SendConfirmation(_ context.Context, user *model.User, _ string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("confirmation pending", "user_id", user.ID, "email", user.Email)
	return nil
}

// AuthOptions configures an AuthService.
type AuthOptions struct {
	SessionTTL      time.Duration
	APIKeyTTL       time.Duration
	VerificationTTL time.Duration
	CookieSecure    bool
	BcryptCost      int
}

// AuthService is the entry point for credential resolution and the account
// operations that issue credentials.
type AuthService struct {
	store    *config.Store
	tokens   *TokenCodec
	apiKeys  *APIKeyVerifier
	resolver *Resolver
	issuer   *SessionIssuer
	sender   ConfirmationSender
	opts     AuthOptions
	logger   *slog.Logger

	// dummyHash is compared against when the login email is unknown.
	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService wires the credential components over store. metrics may be
// nil. keys may be nil when the service is only used to manage API keys.
func NewAuthService(store *config.Store, keys *Keyring, opts AuthOptions, metrics *Metrics, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.APIKeyTTL <= 0 {
		opts.APIKeyTTL = DefaultAPIKeyTTL
	}
	// Verification tokens are issued in whole days.
	opts.VerificationTTL = time.Duration(verificationDays(opts.VerificationTTL)) * 24 * time.Hour
	if opts.BcryptCost == 0 {
		opts.BcryptCost = DefaultBcryptCost
	}

	tokens := NewTokenCodec(keys, opts.SessionTTL)
	apiKeys := NewAPIKeyVerifier(store, metrics, logger)
	return &AuthService{
		store:    store,
		tokens:   tokens,
		apiKeys:  apiKeys,
		resolver: NewResolver(tokens, apiKeys, metrics, logger),
		issuer:   NewSessionIssuer(tokens, opts.CookieSecure),
		sender:   LogSender{Logger: logger},
		opts:     opts,
		logger:   logger.With("component", "auth"),
	}
}

// SetConfirmationSender replaces the default LogSender.
func (s *AuthService) SetConfirmationSender(sender ConfirmationSender) {
	s.sender = sender
}

// Tokens returns the session token codec.
func (s *AuthService) Tokens() *TokenCodec { return s.tokens }

// Issuer returns the session issuer.
func (s *AuthService) Issuer() *SessionIssuer { return s.issuer }

// Resolve verifies an inbound credential.
func (s *AuthService) Resolve(ctx context.Context, credential string) (Claims, error) {
	return s.resolver.Resolve(ctx, credential)
}

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

// SignupInput is the data needed to create an account.
type SignupInput struct {
	Email    string
	Password string
	Name     string
	// Pending creates the user unconfirmed and sends a confirmation token
	// instead of logging them in.
	Pending bool
}

// Signup creates a user. Active users receive a session cookie; pending
// users receive nil and a confirmation token through the ConfirmationSender.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*model.User, *http.Cookie, error) {
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(in.Password) < MinPasswordLen {
		return nil, nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLen)
	}

	hash, err := HashPassword(in.Password, s.opts.BcryptCost)
	if err != nil {
		return nil, nil, err
	}

	user := &model.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Status:       model.UserStatusActive,
	}
	if in.Pending {
		user.Status = model.UserStatusPending
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, config.ErrConflict) {
			return nil, nil, ErrEmailTaken
		}
		return nil, nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user created", "user_id", user.ID, "status", user.Status)

	if in.Pending {
		token, err := s.issuer.VerificationToken(user.ID, verificationDays(s.opts.VerificationTTL))
		if err != nil {
			return nil, nil, err
		}
		if err := s.sender.SendConfirmation(ctx, user, token); err != nil {
			return nil, nil, fmt.Errorf("send confirmation: %w", err)
		}
		return user, nil, nil
	}

	cookie, err := s.issuer.SessionCookie(Claims{UID: user.ID})
	if err != nil {
		return nil, nil, err
	}
	return user, cookie, nil
}

// Login checks email and password and issues a session cookie.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, *http.Cookie, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			// Unknown emails cost one comparison, same as a wrong password.
			VerifyPassword(password, s.fallbackHash())
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("get user: %w", err)
	}
	hash := user.PasswordHash
	if hash == "" {
		hash = s.fallbackHash()
	}
	if !VerifyPassword(password, hash) || user.PasswordHash == "" {
		return nil, nil, ErrInvalidCredentials
	}
	return s.startSession(ctx, user)
}

// fallbackHash returns a bcrypt hash at the configured cost that no
// password submitted to Login can match.
func (s *AuthService) fallbackHash() string {
	s.dummyOnce.Do(func() {
		raw, err := GenerateAPIKey()
		if err == nil {
			s.dummyHash, err = HashPassword(raw, s.opts.BcryptCost)
		}
		if err != nil {
			s.logger.Warn("failed to build fallback password hash", "error", err)
		}
	})
	return s.dummyHash
}

// LoginWithToken issues a session for email when secret is a valid token,
// signed by this deployment, whose uid is that user. It is the exchange
// step for credentials established out of band.
func (s *AuthService) LoginWithToken(ctx context.Context, email, secret string) (*model.User, *http.Cookie, error) {
	claims, err := s.verifyExchangeToken(secret)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("get user: %w", err)
	}
	if user.ID != claims.UID {
		return nil, nil, ErrInvalidCredentials
	}
	return s.startSession(ctx, user)
}

// ConfirmEmail activates the pending user named by a verification token
// and logs them in.
func (s *AuthService) ConfirmEmail(ctx context.Context, token string) (*model.User, *http.Cookie, error) {
	claims, err := s.verifyExchangeToken(token)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.store.GetUser(ctx, claims.UID)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("get user: %w", err)
	}
	switch user.Status {
	case model.UserStatusPending:
		if err := s.store.UpdateUserStatus(ctx, user.ID, model.UserStatusActive); err != nil {
			return nil, nil, fmt.Errorf("activate user: %w", err)
		}
		user.Status = model.UserStatusActive
		s.logger.Info("user confirmed", "user_id", user.ID)
	case model.UserStatusActive:
		// Already confirmed; the link may be clicked twice.
	default:
		return nil, nil, ErrUserNotActive
	}
	return s.startSession(ctx, user)
}

// verifyExchangeToken accepts only tokens whose lifetime fits the
// verification window, so a session token cannot be traded for a new
// session.
func (s *AuthService) verifyExchangeToken(token string) (Claims, error) {
	claims, err := s.tokens.Verify(strings.TrimSpace(token))
	if err != nil {
		return Claims{}, err
	}
	if claims.ExpiresAt-claims.IssuedAt > int64(s.opts.VerificationTTL/time.Second) {
		return Claims{}, ErrInvalidCredentials
	}
	return claims, nil
}

func verificationDays(ttl time.Duration) int {
	if days := int(ttl / (24 * time.Hour)); days > 0 {
		return days
	}
	return 1
}

// GetUser returns the user named by claims.
func (s *AuthService) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.store.GetUser(ctx, id)
}

func (s *AuthService) startSession(ctx context.Context, user *model.User) (*model.User, *http.Cookie, error) {
	if !user.IsActive() {
		return nil, nil, ErrUserNotActive
	}
	cookie, err := s.issuer.SessionCookie(Claims{UID: user.ID})
	if err != nil {
		return nil, nil, err
	}
	if err := s.store.UpdateUserLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to update last login", "user_id", user.ID, "error", err)
	}
	return user, cookie, nil
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

// CreateAPIKey generates a key for userID. The raw key is returned once;
// only its hash is stored. A non-positive ttl uses the configured default.
func (s *AuthService) CreateAPIKey(ctx context.Context, userID, label string, ttl time.Duration) (string, *model.APIKey, error) {
	if ttl <= 0 {
		ttl = s.opts.APIKeyTTL
	}
	owner, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return "", nil, fmt.Errorf("get owner: %w", err)
	}
	if !owner.IsActive() {
		return "", nil, ErrUserNotActive
	}

	raw, err := GenerateAPIKey()
	if err != nil {
		return "", nil, err
	}
	key := &model.APIKey{
		KeyHash:   HashAPIKey(raw),
		KeyPrefix: APIKeyPrefix(raw),
		Label:     strings.TrimSpace(label),
		UserID:    userID,
		ExpiresAt: time.Now().Add(ttl).UTC().Truncate(time.Second),
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return "", nil, fmt.Errorf("create api key: %w", err)
	}
	s.logger.Info("api key created", "user_id", userID, "key_id", key.ID, "key_prefix", key.KeyPrefix)
	return raw, key, nil
}

// ListAPIKeys returns the keys owned by userID.
func (s *AuthService) ListAPIKeys(ctx context.Context, userID string) ([]model.APIKey, error) {
	return s.store.ListAPIKeysByUser(ctx, userID)
}

// RevokeAPIKey deletes keyID if it belongs to userID.
func (s *AuthService) RevokeAPIKey(ctx context.Context, userID, keyID string) error {
	key, err := s.store.GetAPIKey(ctx, keyID)
	if err != nil {
		return err
	}
	if key.UserID != userID {
		return ErrForbidden
	}
	if err := s.store.DeleteAPIKey(ctx, keyID); err != nil {
		return err
	}
	s.logger.Info("api key revoked", "user_id", userID, "key_id", keyID, "key_prefix", key.KeyPrefix)
	return nil
}

// NormalizeEmail lowercases and trims raw and rejects anything that is not
// a bare address.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	return email, nil
}
