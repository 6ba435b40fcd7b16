package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"shelfdesk/internal/domain"

	"go.uber.org/zap"
)

// resetPasswordPath is appended to the site URL for password reset links
const resetPasswordPath = "/reset-password"

var ErrGatewayClosed = errors.New("session gateway is closed")

// IdentityProvider is the hosted identity service
type IdentityProvider interface {
	Session(ctx context.Context) (*domain.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*domain.User, *domain.Session, error)
	SignOut(ctx context.Context) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	OnAuthStateChange(listener func(event domain.AuthEvent, session *domain.Session)) (unsubscribe func())
}

// SessionListener receives session changes; session is nil when signed out
type SessionListener func(event domain.AuthEvent, session *domain.Session)

// SignUpResult is the outcome of a registration.
// PendingConfirmation means the user exists but is not signed in yet.
type SignUpResult struct {
	User                *domain.User
	Session             *domain.Session
	PendingConfirmation bool
}

// SessionGateway exposes the current session and the auth operations
type SessionGateway interface {
	Init(ctx context.Context) error
	CurrentSession() *domain.Session
	State() domain.AuthState
	User() *domain.User
	OnSessionChange(listener SessionListener) (unsubscribe func())
	SignIn(ctx context.Context, email, password string) (*domain.Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error)
	SignOut(ctx context.Context) error
	ResetPassword(ctx context.Context, email string) error
	Close()
}

type sessionGateway struct {
	provider   IdentityProvider
	translator *Translator
	siteURL    string
	logger     *zap.Logger

	mu          sync.Mutex
	state       domain.AuthState
	session     *domain.Session
	listeners   map[int]SessionListener
	nextID      int
	unsubscribe func()
	closed      bool
}

// NewSessionGateway creates a gateway in the loading state; call Init to resolve it
func NewSessionGateway(provider IdentityProvider, translator *Translator, siteURL string, logger *zap.Logger) SessionGateway {
	if translator == nil {
		translator = NewTranslator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &sessionGateway{
		provider:   provider,
		translator: translator,
		siteURL:    strings.TrimRight(siteURL, "/"),
		logger:     logger,
		state:      domain.AuthStateLoading,
		listeners:  make(map[int]SessionListener),
	}
}

// Init subscribes to provider changes and resolves the initial session.
// A provider failure leaves the gateway anonymous.
func (g *sessionGateway) Init(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrGatewayClosed
	}
	if g.unsubscribe != nil {
		g.mu.Unlock()
		return nil
	}
	g.unsubscribe = g.provider.OnAuthStateChange(g.handleProviderEvent)
	g.mu.Unlock()

	session, err := g.provider.Session(ctx)
	if err != nil {
		g.logger.Error("Failed to initialize session", zap.Error(err))
		session = nil
	}

	g.mu.Lock()
	if g.state != domain.AuthStateLoading {
		// a provider event already settled the state
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	g.apply(domain.AuthEventInitialSession, session)
	return nil
}

func (g *sessionGateway) handleProviderEvent(event domain.AuthEvent, session *domain.Session) {
	g.logger.Debug("Auth event", zap.String("event", string(event)))
	g.apply(event, session)
}

// apply is the only place state changes; listeners run outside the lock
func (g *sessionGateway) apply(event domain.AuthEvent, session *domain.Session) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.session = copySession(session)
	if session != nil {
		g.state = domain.AuthStateAuthenticated
	} else {
		g.state = domain.AuthStateAnonymous
	}

	ids := make([]int, 0, len(g.listeners))
	for id := range g.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]SessionListener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, g.listeners[id])
	}
	g.mu.Unlock()

	for _, l := range listeners {
		l(event, copySession(session))
	}
}

func (g *sessionGateway) CurrentSession() *domain.Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return copySession(g.session)
}

func (g *sessionGateway) State() domain.AuthState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *sessionGateway) User() *domain.User {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return nil
	}
	return &copySession(g.session).User
}

// OnSessionChange registers listener; the returned function is safe to call more than once
func (g *sessionGateway) OnSessionChange(listener SessionListener) (unsubscribe func()) {
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = listener
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.listeners, id)
			g.mu.Unlock()
		})
	}
}

// SignIn authenticates with normalized credentials
func (g *sessionGateway) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	session, err := g.provider.SignInWithPassword(ctx, normalizeEmail(email), password)
	if err != nil {
		return nil, g.translator.Translate(err)
	}
	return session, nil
}

// SignUp registers a user; the result is pending when the provider wants the email confirmed
func (g *sessionGateway) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	user, session, err := g.provider.SignUp(ctx, normalizeEmail(email), password, metadata)
	if err != nil {
		return nil, g.translator.Translate(err)
	}
	return &SignUpResult{
		User:                user,
		Session:             session,
		PendingConfirmation: session == nil,
	}, nil
}

func (g *sessionGateway) SignOut(ctx context.Context) error {
	if err := g.provider.SignOut(ctx); err != nil {
		return g.translator.Translate(err)
	}
	return nil
}

// ResetPassword starts the out-of-band reset flow for email
func (g *sessionGateway) ResetPassword(ctx context.Context, email string) error {
	redirectTo := ""
	if g.siteURL != "" {
		redirectTo = g.siteURL + resetPasswordPath
	}
	if err := g.provider.ResetPasswordForEmail(ctx, normalizeEmail(email), redirectTo); err != nil {
		return g.translator.Translate(err)
	}
	return nil
}

// Close detaches from the provider and drops all listeners
func (g *sessionGateway) Close() {
	g.mu.Lock()
	unsubscribe := g.unsubscribe
	g.unsubscribe = nil
	g.closed = true
	g.listeners = make(map[int]SessionListener)
	g.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func copySession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.User.Metadata != nil {
		c.User.Metadata = make(map[string]any, len(s.User.Metadata))
		for k, v := range s.User.Metadata {
			c.User.Metadata[k] = v
		}
	}
	return &c
}
