package middleware

import (
	"net/http"

	"shelfdesk/internal/domain"

	"go.uber.org/zap"
)

// RequireAnonymous admits callers that are not signed in.
// Authenticated callers are sent to the location in the next query parameter,
// or to the default view.
func RequireAnonymous(sessions SessionSource, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch sessions.State() {
			case domain.AuthStateLoading:
				w.Header().Set("Retry-After", loadingRetryAfter)
				RespondWithError(w, http.StatusServiceUnavailable, "session is loading")
				return

			case domain.AuthStateAuthenticated:
				redirect := SafeRedirect(r.URL.Query().Get("next"))
				logger.Debug("Authenticated request to public route",
					zap.String("path", r.URL.Path),
					zap.String("redirect", redirect),
				)
				w.Header().Set("Location", redirect)
				RespondWithErrorDetails(w, http.StatusSeeOther, "already signed in", map[string]any{
					"redirect": redirect,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
