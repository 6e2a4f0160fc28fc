package service

import (
	"net/http"
	"testing"
	"time"
)

func TestSessionCookie(t *testing.T) {
	codec := newTestCodec(t)
	issuer := NewSessionIssuer(codec, true)

	cookie, err := issuer.SessionCookie(Claims{UID: "user-1"})
	if err != nil {
		t.Fatalf("SessionCookie: %v", err)
	}
	if cookie.Name != "auth" {
		t.Errorf("got name %q, want auth", cookie.Name)
	}
	if !cookie.HttpOnly {
		t.Error("expected HttpOnly")
	}
	if !cookie.Secure {
		t.Error("expected Secure")
	}
	if cookie.Path != "/" {
		t.Errorf("got path %q, want /", cookie.Path)
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("got SameSite %v, want Lax", cookie.SameSite)
	}
	if want := testNow.Add(365 * 24 * time.Hour); !cookie.Expires.Equal(want) {
		t.Errorf("got expires %v, want %v", cookie.Expires, want)
	}

	claims, err := codec.Verify(cookie.Value)
	if err != nil {
		t.Fatalf("cookie value does not verify: %v", err)
	}
	if claims.UID != "user-1" {
		t.Errorf("got uid %q, want user-1", claims.UID)
	}
	// The cookie outlives the claim.
	if claims.Expiry().After(cookie.Expires) {
		t.Error("claim expiry should be before cookie expiry")
	}
}

func TestSessionCookieInsecure(t *testing.T) {
	cookie, err := NewSessionIssuer(newTestCodec(t), false).SessionCookie(Claims{UID: "u"})
	if err != nil {
		t.Fatalf("SessionCookie: %v", err)
	}
	if cookie.Secure {
		t.Error("expected Secure to follow configuration")
	}
}

func TestClearCookie(t *testing.T) {
	cookie := NewSessionIssuer(newTestCodec(t), false).ClearCookie()
	if cookie.Name != SessionCookieName || cookie.MaxAge != -1 || cookie.Value != "" {
		t.Errorf("unexpected clear cookie %+v", cookie)
	}
}

func TestVerificationToken(t *testing.T) {
	codec := newTestCodec(t)
	issuer := NewSessionIssuer(codec, false)
	day := int64(24 * 60 * 60)

	tests := []struct {
		days int
		want int64
	}{
		{0, day},
		{-5, day},
		{1, day},
		{7, 7 * day},
	}
	for _, tt := range tests {
		token, err := issuer.VerificationToken("user-1", tt.days)
		if err != nil {
			t.Fatalf("VerificationToken(%d): %v", tt.days, err)
		}
		claims, err := codec.Verify(token)
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if claims.UID != "user-1" {
			t.Errorf("got uid %q, want user-1", claims.UID)
		}
		if got := claims.ExpiresAt - claims.IssuedAt; got != tt.want {
			t.Errorf("days=%d: got lifetime %ds, want %ds", tt.days, got, tt.want)
		}
	}
}
