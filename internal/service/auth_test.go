package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/faucetdb/turnstile/internal/config"
	"github.com/faucetdb/turnstile/internal/model"
)

type captureSender struct {
	user  *model.User
	token string
	err   error
}

func (c *captureSender) SendConfirmation(_ context.Context, user *model.User, token string) error {
	c.user = user
	c.token = token
	return c.err
}

func newTestAuth(t *testing.T) (*AuthService, *config.Store) {
	t.Helper()
	return newTestAuthWithOptions(t, AuthOptions{SessionTTL: time.Hour})
}

func newTestAuthWithOptions(t *testing.T, opts AuthOptions) (*AuthService, *config.Store) {
	t.Helper()
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	keys, err := NewKeyring(testSecret)
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	opts.BcryptCost = bcrypt.MinCost
	auth := NewAuthService(store, keys, opts, nil, nil)
	return auth, store
}

func signup(t *testing.T, auth *AuthService, email string) *model.User {
	t.Helper()
	user, _, err := auth.Signup(context.Background(), SignupInput{
		Email:    email,
		Password: "password123",
		Name:     "Test User",
	})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	return user
}

func TestSignupIssuesSession(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	user, cookie, err := auth.Signup(ctx, SignupInput{
		Email:    "  New.User@Example.com ",
		Password: "password123",
		Name:     "New User",
	})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if user.Email != "new.user@example.com" {
		t.Errorf("got email %q, want normalized", user.Email)
	}
	if user.PasswordHash == "password123" || !VerifyPassword("password123", user.PasswordHash) {
		t.Error("password not stored as a bcrypt hash")
	}
	if cookie == nil {
		t.Fatal("expected a session cookie for an active signup")
	}

	claims, err := auth.Resolve(ctx, cookie.Value)
	if err != nil {
		t.Fatalf("Resolve(cookie): %v", err)
	}
	if claims.UID != user.ID {
		t.Errorf("got uid %q, want %q", claims.UID, user.ID)
	}
}

func TestSignupValidation(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   SignupInput
	}{
		{"bad email", SignupInput{Email: "not-an-email", Password: "password123", Name: "x"}},
		{"display name email", SignupInput{Email: "Bob <bob@example.com>", Password: "password123", Name: "x"}},
		{"short password", SignupInput{Email: "a@example.com", Password: "short", Name: "x"}},
		{"missing name", SignupInput{Email: "a@example.com", Password: "password123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := auth.Signup(ctx, tt.in); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("got %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	auth, _ := newTestAuth(t)
	signup(t, auth, "dup@example.com")

	_, _, err := auth.Signup(context.Background(), SignupInput{
		Email: "DUP@example.com", Password: "password123", Name: "Again",
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("got %v, want ErrEmailTaken", err)
	}
}

func TestLogin(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()
	user := signup(t, auth, "login@example.com")

	got, cookie, err := auth.Login(ctx, "LOGIN@example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.ID != user.ID || cookie == nil {
		t.Fatalf("unexpected login result user=%v cookie=%v", got, cookie)
	}

	stored, _ := store.GetUser(ctx, user.ID)
	if stored.LastLoginAt == nil {
		t.Error("expected last_login_at to be recorded")
	}

	if _, _, err := auth.Login(ctx, "login@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := auth.Login(ctx, "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user: got %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginUnknownEmailComparesFallbackHash(t *testing.T) {
	auth, _ := newTestAuth(t)

	if _, _, err := auth.Login(context.Background(), "ghost@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("got %v, want ErrInvalidCredentials", err)
	}
	if auth.dummyHash == "" {
		t.Fatal("unknown email returned without a password comparison")
	}
	cost, err := bcrypt.Cost([]byte(auth.dummyHash))
	if err != nil {
		t.Fatalf("fallback hash is not bcrypt: %v", err)
	}
	if cost != bcrypt.MinCost {
		t.Errorf("got fallback cost %d, want the configured %d", cost, bcrypt.MinCost)
	}
}

func TestLoginRejectsDisabledUser(t *testing.T) {
	auth, store := newTestAuth(t)
	user := signup(t, auth, "disabled@example.com")
	if err := store.UpdateUserStatus(context.Background(), user.ID, model.UserStatusDisabled); err != nil {
		t.Fatalf("UpdateUserStatus: %v", err)
	}

	if _, _, err := auth.Login(context.Background(), "disabled@example.com", "password123"); !errors.Is(err, ErrUserNotActive) {
		t.Fatalf("got %v, want ErrUserNotActive", err)
	}
}

func TestPendingSignupAndConfirm(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()
	sender := &captureSender{}
	auth.SetConfirmationSender(sender)

	user, cookie, err := auth.Signup(ctx, SignupInput{
		Email: "pending@example.com", Password: "password123", Name: "Pending", Pending: true,
	})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if cookie != nil {
		t.Error("pending signup must not log the user in")
	}
	if user.Status != model.UserStatusPending {
		t.Errorf("got status %q, want pending", user.Status)
	}
	if sender.token == "" || sender.user.ID != user.ID {
		t.Fatal("expected confirmation token to be sent to the new user")
	}

	if _, _, err := auth.Login(ctx, "pending@example.com", "password123"); !errors.Is(err, ErrUserNotActive) {
		t.Errorf("login before confirm: got %v, want ErrUserNotActive", err)
	}

	confirmed, cookie, err := auth.ConfirmEmail(ctx, sender.token)
	if err != nil {
		t.Fatalf("ConfirmEmail: %v", err)
	}
	if confirmed.Status != model.UserStatusActive || cookie == nil {
		t.Fatalf("expected active user with session, got status=%q cookie=%v", confirmed.Status, cookie)
	}

	if _, _, err := auth.Login(ctx, "pending@example.com", "password123"); err != nil {
		t.Errorf("login after confirm: %v", err)
	}
}

func TestPendingSignupSenderFailure(t *testing.T) {
	auth, _ := newTestAuth(t)
	auth.SetConfirmationSender(&captureSender{err: errors.New("smtp down")})

	_, _, err := auth.Signup(context.Background(), SignupInput{
		Email: "bounce@example.com", Password: "password123", Name: "Bounce", Pending: true,
	})
	if err == nil {
		t.Fatal("expected error when the confirmation cannot be sent")
	}
}

func TestConfirmEmailRejectsBadToken(t *testing.T) {
	auth, _ := newTestAuth(t)
	if _, _, err := auth.ConfirmEmail(context.Background(), "garbage"); KindOf(err) != KindNotAToken {
		t.Fatalf("got %v, want not_a_token", err)
	}
}

func TestLoginWithToken(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()
	user := signup(t, auth, "token@example.com")
	other := signup(t, auth, "other@example.com")

	secret, err := auth.Issuer().VerificationToken(user.ID, 1)
	if err != nil {
		t.Fatalf("VerificationToken: %v", err)
	}

	got, cookie, err := auth.LoginWithToken(ctx, "token@example.com", secret)
	if err != nil {
		t.Fatalf("LoginWithToken: %v", err)
	}
	if got.ID != user.ID || cookie == nil {
		t.Fatal("expected session for the token's user")
	}

	if _, _, err := auth.LoginWithToken(ctx, other.Email, secret); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("mismatched email: got %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := auth.LoginWithToken(ctx, user.Email, secret+"x"); err == nil {
		t.Error("tampered secret accepted")
	}
}

func TestSessionTokenCannotBeExchanged(t *testing.T) {
	auth, _ := newTestAuthWithOptions(t, AuthOptions{SessionTTL: 30 * 24 * time.Hour})
	ctx := context.Background()
	user := signup(t, auth, "refresh@example.com")

	_, cookie, err := auth.Login(ctx, user.Email, "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, _, err := auth.LoginWithToken(ctx, user.Email, cookie.Value); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("LoginWithToken(session): got %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := auth.ConfirmEmail(ctx, cookie.Value); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("ConfirmEmail(session): got %v, want ErrInvalidCredentials", err)
	}

	// A verification token longer than the window is refused too.
	long, err := auth.Issuer().VerificationToken(user.ID, 2)
	if err != nil {
		t.Fatalf("VerificationToken: %v", err)
	}
	if _, _, err := auth.LoginWithToken(ctx, user.Email, long); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("two-day token: got %v, want ErrInvalidCredentials", err)
	}

	short, err := auth.Issuer().VerificationToken(user.ID, 1)
	if err != nil {
		t.Fatalf("VerificationToken: %v", err)
	}
	if _, _, err := auth.LoginWithToken(ctx, user.Email, short); err != nil {
		t.Errorf("one-day token: %v", err)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()
	owner := signup(t, auth, "owner@example.com")
	intruder := signup(t, auth, "intruder@example.com")

	raw, key, err := auth.CreateAPIKey(ctx, owner.ID, "ci", 0)
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if key.KeyHash != HashAPIKey(raw) {
		t.Error("stored hash does not match raw key")
	}
	if key.KeyPrefix != APIKeyPrefix(raw) {
		t.Errorf("got prefix %q, want %q", key.KeyPrefix, APIKeyPrefix(raw))
	}
	if d := time.Until(key.ExpiresAt); d < DefaultAPIKeyTTL-time.Minute || d > DefaultAPIKeyTTL {
		t.Errorf("unexpected default expiry in %v", d)
	}

	claims, err := auth.Resolve(ctx, raw)
	if err != nil {
		t.Fatalf("Resolve(api key): %v", err)
	}
	if claims.UID != owner.ID {
		t.Errorf("got uid %q, want %q", claims.UID, owner.ID)
	}

	keys, err := auth.ListAPIKeys(ctx, owner.ID)
	if err != nil {
		t.Fatalf("ListAPIKeys: %v", err)
	}
	if len(keys) != 1 || keys[0].UsedAt == nil {
		t.Fatalf("expected one key with used_at set, got %+v", keys)
	}

	if err := auth.RevokeAPIKey(ctx, intruder.ID, key.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("revoke by non-owner: got %v, want ErrForbidden", err)
	}
	if err := auth.RevokeAPIKey(ctx, owner.ID, key.ID); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}
	if _, err := auth.Resolve(ctx, raw); KindOf(err) != KindAPIKeyNotFound {
		t.Errorf("revoked key: got %v, want api_key_not_found", err)
	}
	if err := auth.RevokeAPIKey(ctx, owner.ID, key.ID); !errors.Is(err, config.ErrNotFound) {
		t.Errorf("second revoke: got %v, want ErrNotFound", err)
	}
}

func TestCreateAPIKeyUnknownOwner(t *testing.T) {
	auth, _ := newTestAuth(t)
	if _, _, err := auth.CreateAPIKey(context.Background(), "missing", "", time.Hour); !errors.Is(err, config.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestCreateAPIKeyRejectsInactiveOwner(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()
	user := signup(t, auth, "gone@example.com")
	if err := store.UpdateUserStatus(ctx, user.ID, model.UserStatusDisabled); err != nil {
		t.Fatalf("UpdateUserStatus: %v", err)
	}

	if _, _, err := auth.CreateAPIKey(ctx, user.ID, "late", 3650*24*time.Hour); !errors.Is(err, ErrUserNotActive) {
		t.Fatalf("got %v, want ErrUserNotActive", err)
	}
	keys, err := auth.ListAPIKeys(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListAPIKeys: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("got %d keys for a disabled owner, want 0", len(keys))
	}
}
