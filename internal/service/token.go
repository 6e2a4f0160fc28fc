package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionTTL is the lifetime of a session claim when none is set.
const DefaultSessionTTL = 30 * 24 * time.Hour

var errMissingUID = errors.New("uid claim is required")

// tokenClaims is the JWT payload: {uid, iat, exp}.
type tokenClaims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

// Validate implements jwt.ClaimsValidator.
func (c tokenClaims) Validate() error {
	if c.UID == "" {
		return errMissingUID
	}
	return nil
}

func (c tokenClaims) claims() Claims {
	out := Claims{UID: c.UID}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Unix()
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Unix()
	}
	return out
}

// TokenCodec signs and verifies HS256 session tokens.
type TokenCodec struct {
	keys *Keyring
	ttl  time.Duration
	now  func() time.Time
}

// NewTokenCodec returns a codec signing with keys. A non-positive ttl uses
// DefaultSessionTTL.
func NewTokenCodec(keys *Keyring, ttl time.Duration) *TokenCodec {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenCodec{keys: keys, ttl: ttl, now: time.Now}
}

// Sign produces a signed token for claims. A zero IssuedAt becomes now and a
// zero ExpiresAt becomes IssuedAt plus the session TTL.
func (c *TokenCodec) Sign(claims Claims) (string, error) {
	if claims.UID == "" {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, errMissingUID)
	}
	if claims.IssuedAt == 0 {
		claims.IssuedAt = c.now().Unix()
	}
	if claims.ExpiresAt == 0 {
		claims.ExpiresAt = claims.IssuedAt + int64(c.ttl/time.Second)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		UID: claims.UID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Unix(claims.IssuedAt, 0)),
			ExpiresAt: jwt.NewNumericDate(time.Unix(claims.ExpiresAt, 0)),
		},
	})

	var signed string
	err := c.keys.withSigningSecret(func(secret []byte) error {
		var err error
		signed, err = token.SignedString(secret)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature first and the claims second. The returned
// error is always an *AuthError:
//
//	KindNotAToken         the input does not carry a decodable JWT header
//	KindSignatureInvalid  bad payload or signature segment, wrong algorithm, or MAC mismatch
//	KindTokenExpired      valid signature, exp <= now
//	KindInvalidClaims     valid signature, any other claim problem
func (c *TokenCodec) Verify(token string) (Claims, error) {
	var tc tokenClaims
	err := c.keys.withVerificationKeys(func(set jwt.VerificationKeySet) error {
		_, err := c.parser().ParseWithClaims(token, &tc, func(*jwt.Token) (any, error) {
			return set, nil
		})
		return err
	})
	if err != nil {
		return Claims{}, c.classify(token, err)
	}
	return tc.claims(), nil
}

// Decode reads the claims without checking signature or expiry. Only use it
// on a token that already passed Verify, or for display.
func (c *TokenCodec) Decode(token string) (Claims, error) {
	var tc tokenClaims
	if _, _, err := c.parser().ParseUnverified(token, &tc); err != nil {
		return Claims{}, newAuthError(KindNotAToken, err)
	}
	return tc.claims(), nil
}

func (c *TokenCodec) parser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)
}

func (c *TokenCodec) classify(token string, err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		// Once the header reads as a JWT header, any later damage is tampering
		// and must not fall through to the API key path.
		if c.hasTokenHeader(token) {
			return newAuthError(KindSignatureInvalid, err)
		}
		return newAuthError(KindNotAToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return newAuthError(KindSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return newAuthError(KindTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenInvalidClaims):
		return newAuthError(KindInvalidClaims, err)
	default:
		return newAuthError(KindInternal, err)
	}
}

// hasTokenHeader reports whether token has three segments and the first
// decodes to a JSON object naming an algorithm.
func (c *TokenCodec) hasTokenHeader(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	raw, err := c.parser().DecodeSegment(parts[0])
	if err != nil {
		return false
	}
	var header map[string]any
	if err := json.Unmarshal(raw, &header); err != nil {
		return false
	}
	_, ok := header["alg"]
	return ok
}
