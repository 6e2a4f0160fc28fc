package service

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt"

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestCodec(t *testing.T, secrets ...string) *TokenCodec {
	t.Helper()
	if len(secrets) == 0 {
		secrets = []string{testSecret}
	}
	keys, err := NewKeyring(secrets[0], secrets[1:]...)
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	c := NewTokenCodec(keys, time.Hour)
	c.now = func() time.Time { return testNow }
	return c
}

// signRaw signs arbitrary claims with the test secret, bypassing Sign's
// defaults.
func signRaw(t *testing.T, method jwt.SigningMethod, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

func TestTokenRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	in := Claims{UID: "user-1", IssuedAt: testNow.Unix(), ExpiresAt: testNow.Add(time.Hour).Unix()}

	token, err := c.Sign(in)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("expected three segments, got %q", token)
	}

	got, err := c.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got != in {
		t.Errorf("got %+v, want %+v", got, in)
	}
}

func TestSignDefaults(t *testing.T) {
	c := newTestCodec(t)

	token, err := c.Sign(Claims{UID: "user-1"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	got, err := c.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.IssuedAt != testNow.Unix() {
		t.Errorf("iat: got %d, want %d", got.IssuedAt, testNow.Unix())
	}
	if got.ExpiresAt != testNow.Add(time.Hour).Unix() {
		t.Errorf("exp: got %d, want %d", got.ExpiresAt, testNow.Add(time.Hour).Unix())
	}
}

func TestSignRequiresUID(t *testing.T) {
	c := newTestCodec(t)
	if _, err := c.Sign(Claims{}); err == nil {
		t.Fatal("expected error for empty uid")
	}
}

func TestNewTokenCodecDefaultTTL(t *testing.T) {
	keys, _ := NewKeyring(testSecret)
	c := NewTokenCodec(keys, 0)
	if c.ttl != DefaultSessionTTL {
		t.Errorf("got ttl %v, want %v", c.ttl, DefaultSessionTTL)
	}
}

func TestVerifyTamperedSignature(t *testing.T) {
	c := newTestCodec(t)
	token, err := c.Sign(Claims{UID: "user-1"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	sigStart := strings.LastIndex(token, ".") + 1
	for i := sigStart; i < len(token); i++ {
		repl := byte('A')
		if token[i] == 'A' {
			repl = 'B'
		}
		tampered := token[:i] + string(repl) + token[i+1:]

		_, err := c.Verify(tampered)
		if KindOf(err) != KindSignatureInvalid {
			t.Errorf("signature char %d: got %v, want signature_invalid", i-sigStart, err)
		}
	}
}

func TestVerifyTamperedPayload(t *testing.T) {
	c := newTestCodec(t)
	token, err := c.Sign(Claims{UID: "user-1"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	parts := strings.Split(token, ".")
	for i := range parts[1] {
		repl := byte('A')
		if parts[1][i] == 'A' {
			repl = 'B'
		}
		payload := parts[1][:i] + string(repl) + parts[1][i+1:]
		tampered := parts[0] + "." + payload + "." + parts[2]

		if _, err := c.Verify(tampered); KindOf(err) != KindSignatureInvalid {
			t.Errorf("payload char %d: got %v, want signature_invalid", i, err)
		}
	}
}

func TestVerifyExpiryBoundary(t *testing.T) {
	c := newTestCodec(t)
	iat := testNow.Add(-time.Hour).Unix()

	atNow, _ := c.Sign(Claims{UID: "u", IssuedAt: iat, ExpiresAt: testNow.Unix()})
	if _, err := c.Verify(atNow); KindOf(err) != KindTokenExpired {
		t.Errorf("exp == now: got %v, want token_expired", err)
	}

	past, _ := c.Sign(Claims{UID: "u", IssuedAt: iat, ExpiresAt: testNow.Unix() - 1})
	if _, err := c.Verify(past); KindOf(err) != KindTokenExpired {
		t.Errorf("exp < now: got %v, want token_expired", err)
	}

	future, _ := c.Sign(Claims{UID: "u", IssuedAt: iat, ExpiresAt: testNow.Unix() + 1})
	if _, err := c.Verify(future); err != nil {
		t.Errorf("exp == now+1: unexpected error %v", err)
	}
}

func TestVerifyExpiredTamperedReportsSignature(t *testing.T) {
	c := newTestCodec(t)
	token, _ := c.Sign(Claims{UID: "u", IssuedAt: testNow.Add(-2 * time.Hour).Unix(), ExpiresAt: testNow.Add(-time.Hour).Unix()})

	other := newTestCodec(t, "another-secret")
	forged, _ := other.Sign(Claims{UID: "u", IssuedAt: testNow.Add(-2 * time.Hour).Unix(), ExpiresAt: testNow.Add(-time.Hour).Unix()})

	if _, err := c.Verify(token); KindOf(err) != KindTokenExpired {
		t.Errorf("expired: got %v, want token_expired", err)
	}
	if _, err := c.Verify(forged); KindOf(err) != KindSignatureInvalid {
		t.Errorf("expired and forged: got %v, want signature_invalid", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	token, _ := newTestCodec(t, "secret-a").Sign(Claims{UID: "u"})
	if _, err := newTestCodec(t, "secret-b").Verify(token); KindOf(err) != KindSignatureInvalid {
		t.Errorf("got %v, want signature_invalid", err)
	}
}

func TestVerifyRotatedSecret(t *testing.T) {
	old := newTestCodec(t, "old-secret")
	token, _ := old.Sign(Claims{UID: "u"})

	rotated := newTestCodec(t, "new-secret", "old-secret")
	if _, err := rotated.Verify(token); err != nil {
		t.Fatalf("token signed with previous secret rejected: %v", err)
	}

	// New tokens are signed with the current secret only.
	fresh, _ := rotated.Sign(Claims{UID: "u"})
	if _, err := old.Verify(fresh); KindOf(err) != KindSignatureInvalid {
		t.Errorf("got %v, want signature_invalid", err)
	}
}

func TestVerifyNotAToken(t *testing.T) {
	c := newTestCodec(t)
	for _, in := range []string{"abc123", "ts_0123456789abcdef", "a.b", "a.b.c.d", "%%%.%%%.%%%"} {
		if _, err := c.Verify(in); KindOf(err) != KindNotAToken {
			t.Errorf("%q: got %v, want not_a_token", in, err)
		}
	}
}

func TestVerifyWrongAlgorithm(t *testing.T) {
	c := newTestCodec(t)
	claims := tokenClaims{
		UID: "u",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(testNow),
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
		},
	}

	hs384 := signRaw(t, jwt.SigningMethodHS384, claims)
	if _, err := c.Verify(hs384); KindOf(err) != KindSignatureInvalid {
		t.Errorf("HS384: got %v, want signature_invalid", err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString(none): %v", err)
	}
	if _, err := c.Verify(none); KindOf(err) != KindSignatureInvalid {
		t.Errorf("alg none: got %v, want signature_invalid", err)
	}
}

func TestVerifyInvalidClaims(t *testing.T) {
	c := newTestCodec(t)
	tests := []struct {
		name   string
		claims tokenClaims
	}{
		{"missing uid", tokenClaims{RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(testNow),
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
		}}},
		{"missing exp", tokenClaims{UID: "u", RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(testNow),
		}}},
		{"issued in the future", tokenClaims{UID: "u", RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(testNow.Add(time.Hour)),
			ExpiresAt: jwt.NewNumericDate(testNow.Add(2 * time.Hour)),
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := signRaw(t, jwt.SigningMethodHS256, tt.claims)
			if _, err := c.Verify(token); KindOf(err) != KindInvalidClaims {
				t.Errorf("got %v, want invalid_claims", err)
			}
		})
	}
}

func TestDecodeSkipsChecks(t *testing.T) {
	c := newTestCodec(t)
	in := Claims{UID: "u", IssuedAt: testNow.Add(-2 * time.Hour).Unix(), ExpiresAt: testNow.Add(-time.Hour).Unix()}
	token, _ := c.Sign(in)

	got, err := c.Decode(token)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != in {
		t.Errorf("got %+v, want %+v", got, in)
	}

	if _, err := c.Decode("abc123"); KindOf(err) != KindNotAToken {
		t.Errorf("got %v, want not_a_token", err)
	}
}

func TestNewKeyring(t *testing.T) {
	if _, err := NewKeyring(""); err != ErrNoSigningSecret {
		t.Errorf("got %v, want ErrNoSigningSecret", err)
	}
	k, err := NewKeyring("current", "", "current", "previous")
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	if k.Size() != 2 {
		t.Errorf("got size %d, want 2", k.Size())
	}
}
