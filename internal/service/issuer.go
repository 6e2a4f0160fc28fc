package service

import (
	"fmt"
	"net/http"
	"time"
)

const (
	// SessionCookieName is the cookie carrying the session token.
	SessionCookieName = "auth"

	// sessionCookieLifetime is how long the browser keeps the cookie. It is
	// independent of the exp claim inside the token.
	sessionCookieLifetime = 365 * 24 * time.Hour

	defaultVerificationDays = 1
)

// SessionIssuer packages signed claims for transport.
type SessionIssuer struct {
	tokens *TokenCodec
	secure bool
}

// NewSessionIssuer creates an issuer. secure sets the Secure attribute on
// issued cookies.
func NewSessionIssuer(tokens *TokenCodec, secure bool) *SessionIssuer {
	return &SessionIssuer{tokens: tokens, secure: secure}
}

// SessionCookie signs claims and wraps the token in the session cookie.
func (i *SessionIssuer) SessionCookie(claims Claims) (*http.Cookie, error) {
	token, err := i.tokens.Sign(claims)
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  i.tokens.now().Add(sessionCookieLifetime),
		HttpOnly: true,
		Secure:   i.secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// ClearCookie returns a cookie that makes the browser drop the session.
func (i *SessionIssuer) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   i.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// VerificationToken signs a short-lived token for userID, used for email
// confirmation and similar out-of-band links. expireInDays <= 0 means one
// day.
func (i *SessionIssuer) VerificationToken(userID string, expireInDays int) (string, error) {
	if expireInDays <= 0 {
		expireInDays = defaultVerificationDays
	}
	iat := i.tokens.now().Unix()
	token, err := i.tokens.Sign(Claims{
		UID:       userID,
		IssuedAt:  iat,
		ExpiresAt: iat + int64(expireInDays)*int64(24*time.Hour/time.Second),
	})
	if err != nil {
		return "", fmt.Errorf("verification token: %w", err)
	}
	return token, nil
}
