package service

import (
	"errors"
	"strings"
	"sync"
)

// AuthErrorKind classifies an identity provider failure
type AuthErrorKind string

const (
	AuthErrorInvalidCredentials    AuthErrorKind = "invalid_credentials"
	AuthErrorEmailNotConfirmed     AuthErrorKind = "email_not_confirmed"
	AuthErrorUserAlreadyRegistered AuthErrorKind = "user_already_registered"
	AuthErrorWeakPassword          AuthErrorKind = "weak_password"
	AuthErrorInvalidEmail          AuthErrorKind = "invalid_email"
	AuthErrorRateLimited           AuthErrorKind = "rate_limited"
	AuthErrorUnknown               AuthErrorKind = "unknown"
)

// AuthError is a translated, user-facing authentication failure
type AuthError struct {
	Kind            AuthErrorKind
	Message         string
	ProviderMessage string
	err             error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.err
}

// providerMessager is implemented by errors that carry the provider's raw message
type providerMessager interface {
	ProviderMessage() string
}

type translation struct {
	kind    AuthErrorKind
	message string
}

// Translator maps raw provider messages to user-facing ones.
// Unknown messages pass through unchanged.
type Translator struct {
	mu    sync.RWMutex
	table map[string]translation
}

// NewTranslator creates a translator preloaded with the provider's common messages
func NewTranslator() *Translator {
	t := &Translator{table: make(map[string]translation)}
	t.Register("Invalid login credentials", AuthErrorInvalidCredentials,
		"Invalid credentials. Check your email and password.")
	t.Register("Email not confirmed", AuthErrorEmailNotConfirmed,
		"Please confirm your email before signing in.")
	t.Register("User already registered", AuthErrorUserAlreadyRegistered,
		"This email is already registered.")
	t.Register("Password should be at least 6 characters", AuthErrorWeakPassword,
		"Password must be at least 6 characters long.")
	t.Register("Unable to validate email address: invalid format", AuthErrorInvalidEmail,
		"The email format is not valid.")
	t.Register("Signup requires a valid password", AuthErrorWeakPassword,
		"A password is required.")
	t.Register("Anonymous sign-ins are disabled", AuthErrorInvalidEmail,
		"Anonymous sign-up is disabled.")
	t.Register("Email rate limit exceeded", AuthErrorRateLimited,
		"Too many attempts. Wait a few minutes.")
	t.Register("For security purposes, you can only request this once every 60 seconds", AuthErrorRateLimited,
		"For security reasons, wait 60 seconds before trying again.")
	return t
}

// Register adds or replaces the translation of a provider message
func (t *Translator) Register(providerMessage string, kind AuthErrorKind, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.table[strings.TrimSpace(providerMessage)] = translation{kind: kind, message: message}
}

// Message returns the user-facing text for a provider message
func (t *Translator) Message(providerMessage string) string {
	_, msg := t.lookup(providerMessage)
	return msg
}

// Translate converts err into an *AuthError; nil stays nil
func (t *Translator) Translate(err error) error {
	if err == nil {
		return nil
	}

	raw := err.Error()
	var pm providerMessager
	if errors.As(err, &pm) {
		raw = pm.ProviderMessage()
	}

	kind, msg := t.lookup(raw)
	return &AuthError{
		Kind:            kind,
		Message:         msg,
		ProviderMessage: raw,
		err:             err,
	}
}

func (t *Translator) lookup(providerMessage string) (AuthErrorKind, string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if tr, ok := t.table[strings.TrimSpace(providerMessage)]; ok {
		return tr.kind, tr.message
	}
	return AuthErrorUnknown, providerMessage
}
