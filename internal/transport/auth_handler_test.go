package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"shelfdesk/internal/domain"
	"shelfdesk/internal/middleware"
	"shelfdesk/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// rejection is a provider answer carrying the provider's raw message
type rejection struct{ msg string }

func (e *rejection) Error() string           { return "identity provider: " + e.msg }
func (e *rejection) ProviderMessage() string { return e.msg }

// stubProvider accepts a single account and records what it was sent
type stubProvider struct {
	mu       sync.Mutex
	email    string
	password string
	session  *domain.Session

	confirmSignup bool
	failWith      error

	metadata   map[string]any
	redirectTo string
	signedOut  bool
}

func (p *stubProvider) Session(ctx context.Context) (*domain.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session, nil
}

func (p *stubProvider) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return nil, p.failWith
	}
	if email != p.email || password != p.password {
		return nil, &rejection{msg: "Invalid login credentials"}
	}
	p.session = &domain.Session{
		AccessToken: "access",
		ExpiresAt:   time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		User:        domain.User{ID: "u1", Email: email},
	}
	return p.session, nil
}

func (p *stubProvider) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*domain.User, *domain.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if email == p.email {
		return nil, nil, &rejection{msg: "User already registered"}
	}
	p.metadata = metadata
	user := &domain.User{ID: "u2", Email: email, Metadata: metadata}
	if p.confirmSignup {
		return user, nil, nil
	}
	p.session = &domain.Session{AccessToken: "access", User: *user}
	return user, p.session, nil
}

func (p *stubProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signedOut = true
	p.session = nil
	return nil
}

func (p *stubProvider) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.redirectTo = redirectTo
	return nil
}

func (p *stubProvider) OnAuthStateChange(listener func(event domain.AuthEvent, session *domain.Session)) func() {
	return func() {}
}

func newAuthRouter(t *testing.T, provider *stubProvider, logger *zap.Logger) (chi.Router, service.SessionGateway) {
	t.Helper()
	gateway := service.NewSessionGateway(provider, service.NewTranslator(), "http://localhost:5173", logger)
	t.Cleanup(gateway.Close)

	r := chi.NewRouter()
	NewAuthHandler(gateway, logger).RegisterRoutes(r, passthrough, passthrough, passthrough)
	return r, gateway
}

func errorKind(t *testing.T, body string) string {
	t.Helper()
	var resp middleware.ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	kind, _ := resp.Error.Details["kind"].(string)
	return kind
}

// Feature: auth-api, Property 1: Login redirects only to local paths
func TestProperty_LoginRedirectStaysLocal(t *testing.T) {
	provider := &stubProvider{email: "ana@example.com", password: "Secret1"}
	r, _ := newAuthRouter(t, provider, zap.NewNop())

	properties := gopter.NewProperties(nil)

	properties.Property("redirect is next for local paths and the default view otherwise", prop.ForAll(
		func(segment string, external bool) bool {
			next := "/api/products/" + segment
			if external {
				next = "https://" + segment + ".example.com/"
			}

			w := doJSON(t, r, http.MethodPost, "/api/auth/login", map[string]any{
				"email":    "ana@example.com",
				"password": "Secret1",
				"next":     next,
			})
			if w.Code != http.StatusOK {
				return false
			}
			resp := decodeBody[LoginResponse](t, w)
			if external {
				return resp.Redirect == middleware.DefaultViewPath
			}
			return resp.Redirect == next
		},
		gen.Identifier(),
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestLogin(t *testing.T) {
	provider := &stubProvider{email: "ana@example.com", password: "Secret1"}
	r, _ := newAuthRouter(t, provider, zaptest.NewLogger(t))

	t.Run("success", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    "  ANA@example.com ",
			"password": "Secret1",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeBody[LoginResponse](t, w)
		assert.Equal(t, "u1", resp.User.ID)
		assert.Equal(t, middleware.DefaultViewPath, resp.Redirect)
		require.NotNil(t, resp.ExpiresAt)
		assert.Equal(t, 2030, resp.ExpiresAt.Year())
	})

	t.Run("wrong password", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    "ana@example.com",
			"password": "nope",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, string(service.AuthErrorInvalidCredentials), errorKind(t, w.Body.String()))
		assert.Contains(t, w.Body.String(), "Invalid credentials")
	})

	t.Run("malformed email", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    "ana",
			"password": "Secret1",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, validationFields(t, w), "email")
	})
}

func TestLogin_ProviderUnreachable(t *testing.T) {
	provider := &stubProvider{failWith: errors.New("dial tcp: connection refused")}
	r, _ := newAuthRouter(t, provider, zaptest.NewLogger(t))

	w := doJSON(t, r, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "ana@example.com",
		"password": "Secret1",
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestLogin_UntranslatedRejection(t *testing.T) {
	provider := &stubProvider{failWith: &rejection{msg: "Signups not allowed for this instance"}}
	r, _ := newAuthRouter(t, provider, zaptest.NewLogger(t))

	w := doJSON(t, r, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "ana@example.com",
		"password": "Secret1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Signups not allowed for this instance")
}

func TestRegister(t *testing.T) {
	validForm := func() map[string]any {
		return map[string]any{
			"name":            "Bea",
			"email":           "bea@example.com",
			"password":        "Secret1",
			"confirmPassword": "Secret1",
		}
	}

	t.Run("pending confirmation", func(t *testing.T) {
		provider := &stubProvider{email: "ana@example.com", confirmSignup: true}
		r, _ := newAuthRouter(t, provider, zaptest.NewLogger(t))

		w := doJSON(t, r, http.MethodPost, "/api/auth/register", validForm())
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		resp := decodeBody[RegisterResponse](t, w)
		assert.True(t, resp.PendingConfirmation)
		assert.Contains(t, resp.Message, "confirm")
		assert.Equal(t, map[string]any{"full_name": "Bea"}, provider.metadata)
	})

	t.Run("signed in immediately", func(t *testing.T) {
		provider := &stubProvider{email: "ana@example.com"}
		r, _ := newAuthRouter(t, provider, zaptest.NewLogger(t))

		w := doJSON(t, r, http.MethodPost, "/api/auth/register", validForm())
		require.Equal(t, http.StatusCreated, w.Code)
		assert.False(t, decodeBody[RegisterResponse](t, w).PendingConfirmation)
	})

	t.Run("already registered", func(t *testing.T) {
		provider := &stubProvider{email: "bea@example.com"}
		r, _ := newAuthRouter(t, provider, zaptest.NewLogger(t))

		w := doJSON(t, r, http.MethodPost, "/api/auth/register", validForm())
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, string(service.AuthErrorUserAlreadyRegistered), errorKind(t, w.Body.String()))
	})

	t.Run("form rules", func(t *testing.T) {
		r, _ := newAuthRouter(t, &stubProvider{}, zaptest.NewLogger(t))

		cases := map[string]struct {
			edit  func(map[string]any)
			field string
		}{
			"short name":           {func(f map[string]any) { f["name"] = "B" }, "name"},
			"short password":       {func(f map[string]any) { f["password"], f["confirmPassword"] = "Ab1", "Ab1" }, "password"},
			"no uppercase":         {func(f map[string]any) { f["password"], f["confirmPassword"] = "secret1", "secret1" }, "password"},
			"no lowercase":         {func(f map[string]any) { f["password"], f["confirmPassword"] = "SECRET1", "SECRET1" }, "password"},
			"confirmation differs": {func(f map[string]any) { f["confirmPassword"] = "Secret2" }, "confirmPassword"},
		}
		for name, tc := range cases {
			form := validForm()
			tc.edit(form)
			w := doJSON(t, r, http.MethodPost, "/api/auth/register", form)
			assert.Equal(t, http.StatusBadRequest, w.Code, name)
			assert.Contains(t, validationFields(t, w), tc.field, name)
		}
	})
}

func TestResetPassword(t *testing.T) {
	provider := &stubProvider{}
	r, _ := newAuthRouter(t, provider, zaptest.NewLogger(t))

	w := doJSON(t, r, http.MethodPost, "/api/auth/reset-password", map[string]any{"email": "ana@example.com"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "http://localhost:5173/reset-password", provider.redirectTo)

	provider.failWith = &rejection{msg: "For security purposes, you can only request this once every 60 seconds"}
	w = doJSON(t, r, http.MethodPost, "/api/auth/reset-password", map[string]any{"email": "ana@example.com"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestSessionAndLogout(t *testing.T) {
	provider := &stubProvider{
		session: &domain.Session{
			AccessToken: "access",
			ExpiresAt:   time.Now().Add(time.Hour),
			User:        domain.User{ID: "u1", Email: "ana@example.com"},
		},
	}
	r, gateway := newAuthRouter(t, provider, zaptest.NewLogger(t))

	w := doJSON(t, r, http.MethodGet, "/api/auth/session", nil)
	assert.Equal(t, domain.AuthStateLoading, decodeBody[SessionResponse](t, w).State)

	require.NoError(t, gateway.Init(context.Background()))

	w = doJSON(t, r, http.MethodGet, "/api/auth/session", nil)
	resp := decodeBody[SessionResponse](t, w)
	assert.Equal(t, domain.AuthStateAuthenticated, resp.State)
	require.NotNil(t, resp.User)
	assert.Equal(t, "u1", resp.User.ID)

	w = doJSON(t, r, http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, provider.signedOut)
}

func TestGuardsWrapAuthRoutes(t *testing.T) {
	gateway := service.NewSessionGateway(&stubProvider{}, service.NewTranslator(), "", zap.NewNop())
	defer gateway.Close()

	var guarded []string
	record := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				guarded = append(guarded, name+" "+r.URL.Path)
				w.WriteHeader(http.StatusTeapot)
			})
		}
	}

	r := chi.NewRouter()
	NewAuthHandler(gateway, zap.NewNop()).RegisterRoutes(r, record("session"), record("anonymous"), passthrough)

	for _, path := range []string{"/api/auth/login", "/api/auth/register", "/api/auth/reset-password", "/api/auth/logout"} {
		doJSON(t, r, http.MethodPost, path, nil)
	}
	assert.Equal(t, []string{
		"anonymous /api/auth/login",
		"anonymous /api/auth/register",
		"anonymous /api/auth/reset-password",
		"session /api/auth/logout",
	}, guarded)
}
