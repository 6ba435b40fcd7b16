package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"shelfdesk/internal/domain"

	"go.uber.org/zap"
)

type contextKey string

const sessionKey contextKey = "session"

const (
	// LoginPath is where anonymous callers are sent
	LoginPath = "/api/auth/login"
	// DefaultViewPath is where authenticated callers land
	DefaultViewPath = "/api/products"

	// loadingRetryAfter is the Retry-After hint, in seconds, while the session resolves
	loadingRetryAfter = "1"
)

// SessionSource reports the current auth state
type SessionSource interface {
	State() domain.AuthState
	CurrentSession() *domain.Session
}

// RequireSession admits only authenticated callers.
// While the session is still resolving the request is refused with 503;
// anonymous callers get 401 and a login location that preserves the requested URI.
func RequireSession(sessions SessionSource, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch sessions.State() {
			case domain.AuthStateLoading:
				logger.Debug("Session still loading", zap.String("path", r.URL.Path))
				w.Header().Set("Retry-After", loadingRetryAfter)
				RespondWithError(w, http.StatusServiceUnavailable, "session is loading")
				return

			case domain.AuthStateAuthenticated:
				session := sessions.CurrentSession()
				if session == nil {
					break
				}
				ctx := WithSession(r.Context(), session)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			redirect := LoginRedirect(r.URL.RequestURI())
			logger.Debug("Anonymous request to protected route",
				zap.String("path", r.URL.Path),
				zap.String("redirect", redirect),
			)
			w.Header().Set("Location", redirect)
			RespondWithErrorDetails(w, http.StatusUnauthorized, "authentication required", map[string]any{
				"redirect": redirect,
			})
		})
	}
}

// LoginRedirect builds the login location carrying the originally requested URI
func LoginRedirect(requestURI string) string {
	if requestURI == "" {
		return LoginPath
	}
	return LoginPath + "?next=" + url.QueryEscape(requestURI)
}

// SafeRedirect returns next when it is a local path, otherwise the default view
func SafeRedirect(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return DefaultViewPath
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return DefaultViewPath
	}
	return next
}

// WithSession stores the session in ctx
func WithSession(ctx context.Context, session *domain.Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// GetSession extracts the session from request context
func GetSession(ctx context.Context) (*domain.Session, bool) {
	session, ok := ctx.Value(sessionKey).(*domain.Session)
	return session, ok && session != nil
}

// GetUserID extracts the authenticated user ID from request context
func GetUserID(ctx context.Context) (string, bool) {
	session, ok := GetSession(ctx)
	if !ok || session.User.ID == "" {
		return "", false
	}
	return session.User.ID, true
}
