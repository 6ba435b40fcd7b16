package domain

import "time"

// AuthState is the state of the session gateway
type AuthState string

const (
	AuthStateLoading       AuthState = "loading"
	AuthStateAuthenticated AuthState = "authenticated"
	AuthStateAnonymous     AuthState = "anonymous"
)

// AuthEvent names a session change reported by the identity provider
type AuthEvent string

const (
	AuthEventInitialSession   AuthEvent = "INITIAL_SESSION"
	AuthEventSignedIn         AuthEvent = "SIGNED_IN"
	AuthEventSignedOut        AuthEvent = "SIGNED_OUT"
	AuthEventTokenRefreshed   AuthEvent = "TOKEN_REFRESHED"
	AuthEventUserUpdated      AuthEvent = "USER_UPDATED"
	AuthEventPasswordRecovery AuthEvent = "PASSWORD_RECOVERY"
)

// User is the authenticated identity as reported by the identity provider
type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	Metadata         map[string]any `json:"user_metadata,omitempty"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	CreatedAt        *time.Time     `json:"created_at,omitempty"`
}

// Session holds the tokens of an authenticated user
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Expired reports whether the access token is no longer valid at reference
func (s *Session) Expired(reference time.Time) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	if reference.IsZero() {
		reference = time.Now()
	}
	return !s.ExpiresAt.After(reference)
}
