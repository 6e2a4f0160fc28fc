package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/faucetdb/turnstile/internal/config"
	"github.com/faucetdb/turnstile/internal/server/middleware"
	"github.com/faucetdb/turnstile/internal/service"
)

const (
	testJWTSecret = "test-secret-for-handler-tests"
	testPassword  = "supersecretpassword"
)

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store   *config.Store
	authSvc *service.AuthService
	router  chi.Router
}

// newTestEnv creates a fresh test environment with an in-memory store and a
// Chi router with the auth routes mounted behind the real Authenticate
// middleware.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := config.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	keys, err := service.NewKeyring(testJWTSecret)
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	authSvc := service.NewAuthService(store, keys, service.AuthOptions{
		SessionTTL: time.Hour,
		BcryptCost: bcrypt.MinCost,
	}, nil, nil)

	authHandler := NewAuthHandler(authSvc, nil)
	keyHandler := NewAPIKeyHandler(authSvc, nil)

	r := chi.NewRouter()
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.Signup)
		r.Post("/session", authHandler.Login)
		r.Post("/session/token", authHandler.LoginWithToken)
		r.Delete("/session", authHandler.Logout)
		r.Post("/confirm", authHandler.Confirm)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(authSvc, ""))
			r.Get("/me", authHandler.Me)
			r.Get("/api-key", keyHandler.List)
			r.Post("/api-key", keyHandler.Create)
			r.Delete("/api-key/{keyId}", keyHandler.Revoke)
		})
	})

	return &testEnv{store: store, authSvc: authSvc, router: r}
}

// signup creates an active account over HTTP and returns its session token.
func (e *testEnv) signup(t *testing.T, email string) sessionResponse {
	t.Helper()
	rr := e.do(t, "POST", "/api/v1/auth/signup", toJSON(t, map[string]string{
		"email":    email,
		"password": testPassword,
		"name":     "Test User",
	}), "")
	assertStatus(t, rr, http.StatusCreated)
	var resp sessionResponse
	decodeJSON(t, rr, &resp)
	return resp
}

// do executes an HTTP request against the test router and returns the
// recorder. credential, when set, is sent as a bearer token.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, credential string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

func errorReason(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Reason string `json:"reason"`
		} `json:"error"`
	}
	decodeJSON(t, rr, &resp)
	return resp.Error.Reason
}

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == service.SessionCookieName {
			return c
		}
	}
	return nil
}
