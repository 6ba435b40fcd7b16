package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"shelfdesk/internal/domain"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSessions struct {
	state   domain.AuthState
	session *domain.Session
}

func (s stubSessions) State() domain.AuthState         { return s.state }
func (s stubSessions) CurrentSession() *domain.Session { return s.session }

func signedIn() stubSessions {
	return stubSessions{
		state:   domain.AuthStateAuthenticated,
		session: &domain.Session{AccessToken: "t", User: domain.User{ID: "u1", Email: "ana@example.com"}},
	}
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// Feature: routing-guard, Property 1: Protected routes reject anonymous callers and keep the requested location
func TestProperty_ProtectedRoutesRejectAnonymous(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("anonymous requests get 401 with a login redirect to the original URI", prop.ForAll(
		func(pathSuffix string, method string) bool {
			handler := RequireSession(stubSessions{state: domain.AuthStateAnonymous}, zap.NewNop())(okHandler)

			path := "/api/products/" + pathSuffix + "?sort=price-asc"
			req := httptest.NewRequest(method, path, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				return false
			}

			location, err := url.Parse(w.Header().Get("Location"))
			if err != nil || location.Path != LoginPath {
				return false
			}
			if location.Query().Get("next") != req.URL.RequestURI() {
				t.Logf("FAIL: next=%q want %q", location.Query().Get("next"), req.URL.RequestURI())
				return false
			}

			var body ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				return false
			}
			return body.Error.Details["redirect"] == w.Header().Get("Location")
		},
		gen.Identifier(),
		gen.OneConstOf("GET", "POST", "PATCH", "DELETE"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRequireSession_LoadingIsUnavailable(t *testing.T) {
	reached := false
	handler := RequireSession(stubSessions{state: domain.AuthStateLoading}, zap.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { reached = true }))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products", nil))

	assert.False(t, reached)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRequireSession_AuthenticatedCarriesSession(t *testing.T) {
	var userID string
	handler := RequireSession(signedIn(), zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", userID)
}

func TestRequireAnonymous(t *testing.T) {
	t.Run("anonymous passes", func(t *testing.T) {
		handler := RequireAnonymous(stubSessions{state: domain.AuthStateAnonymous}, zap.NewNop())(okHandler)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("authenticated goes to default view", func(t *testing.T) {
		handler := RequireAnonymous(signedIn(), zap.NewNop())(okHandler)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, DefaultViewPath, w.Header().Get("Location"))
	})

	t.Run("authenticated goes back to next", func(t *testing.T) {
		handler := RequireAnonymous(signedIn(), zap.NewNop())(okHandler)
		w := httptest.NewRecorder()
		target := "/api/auth/login?next=" + url.QueryEscape("/api/products/7")
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, target, nil))
		assert.Equal(t, "/api/products/7", w.Header().Get("Location"))
	})

	t.Run("loading is unavailable", func(t *testing.T) {
		handler := RequireAnonymous(stubSessions{state: domain.AuthStateLoading}, zap.NewNop())(okHandler)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestSafeRedirect(t *testing.T) {
	cases := map[string]string{
		"":                     DefaultViewPath,
		"/api/products/3":      "/api/products/3",
		"/api/products?sort=x": "/api/products?sort=x",
		"//evil.example.com":   DefaultViewPath,
		"https://evil.example": DefaultViewPath,
		"/\\evil.example.com":  DefaultViewPath,
		"api/products":         DefaultViewPath,
	}
	for in, want := range cases {
		assert.Equal(t, want, SafeRedirect(in), in)
	}
}

func TestGetSession_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := GetSession(req.Context())
	require.False(t, ok)
	_, ok = GetUserID(req.Context())
	require.False(t, ok)
}
