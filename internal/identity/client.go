// Package identity is a client for a hosted GoTrue-compatible auth API.
// It keeps the current session in local storage and reports every change to
// registered listeners, the same way the hosted provider's browser SDK does.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"shelfdesk/internal/domain"
	"shelfdesk/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 10 * time.Second

	// refreshTick is how often AutoRefresh looks at the session
	refreshTick = 30 * time.Second
	// refreshMargin is how long before expiry a session is refreshed
	refreshMargin = 3 * refreshTick
)

var (
	ErrNoSession      = errors.New("no active session")
	ErrNotConfigured  = errors.New("identity provider URL is not configured")
	errMissingToken   = errors.New("token response without access token")
	errEmptyUserReply = errors.New("signup response without user")
)

// Listener receives session changes; session is nil after sign-out
type Listener = func(event domain.AuthEvent, session *domain.Session)

// Config configures the identity client
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the identity provider and owns the current session
type Client struct {
	http     *fasthttp.Client
	baseURL  string
	apiKey   string
	timeout  time.Duration
	sessions repository.SessionRepository
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	current   *domain.Session
	loaded    bool
	listeners map[int]Listener
	nextID    int
}

// New creates an identity client persisting its session in sessions
func New(cfg Config, sessions repository.SessionRepository, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http: &fasthttp.Client{
			Name:                "shelfdesk",
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: 30 * time.Second,
		},
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		apiKey:    cfg.APIKey,
		timeout:   cfg.Timeout,
		sessions:  sessions,
		logger:    logger,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
}

// tokenResponse is the body of the token and (auto-confirmed) signup endpoints
type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	RefreshToken string       `json:"refresh_token"`
	User         *domain.User `json:"user"`
}

// Session returns the current session, restoring it from storage on first use.
// An expired restored session is refreshed; if that fails it is discarded.
func (c *Client) Session(ctx context.Context) (*domain.Session, error) {
	c.mu.Lock()
	if c.loaded {
		s := copySession(c.current)
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	stored, err := c.sessions.Get(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			c.setLoaded(nil)
			return nil, nil
		}
		return nil, err
	}

	if !stored.Expired(c.now()) {
		c.setLoaded(stored)
		return copySession(stored), nil
	}

	c.logger.Debug("Restored session expired, refreshing")
	refreshed, err := c.refresh(ctx, stored.RefreshToken)
	if err != nil {
		c.logger.Info("Dropping expired session", zap.Error(err))
		if delErr := c.sessions.Delete(ctx); delErr != nil {
			c.logger.Warn("Failed to delete expired session", zap.Error(delErr))
		}
		c.setLoaded(nil)
		return nil, nil
	}
	return refreshed, nil
}

// SignInWithPassword exchanges credentials for a session
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	var resp tokenResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, "/token?grant_type=password", "", body, &resp); err != nil {
		return nil, err
	}

	session, err := c.sessionFromToken(resp)
	if err != nil {
		return nil, err
	}
	if err := c.commit(ctx, domain.AuthEventSignedIn, session); err != nil {
		return nil, err
	}
	return copySession(session), nil
}

// SignUp registers a user. The session is nil while the email awaits confirmation.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*domain.User, *domain.Session, error) {
	payload := map[string]any{"email": email, "password": password}
	if len(metadata) > 0 {
		payload["data"] = metadata
	}

	var raw json.RawMessage
	if err := c.do(ctx, "/signup", "", payload, &raw); err != nil {
		return nil, nil, err
	}

	var token tokenResponse
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, nil, fmt.Errorf("failed to decode signup response: %w", err)
	}
	if token.AccessToken != "" {
		session, err := c.sessionFromToken(token)
		if err != nil {
			return nil, nil, err
		}
		if err := c.commit(ctx, domain.AuthEventSignedIn, session); err != nil {
			return nil, nil, err
		}
		user := session.User
		return &user, copySession(session), nil
	}

	var user domain.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, nil, fmt.Errorf("failed to decode signup user: %w", err)
	}
	if user.ID == "" {
		return nil, nil, errEmptyUserReply
	}
	return &user, nil, nil
}

// SignOut revokes the session at the provider and forgets it locally.
// A session the provider no longer knows about is still forgotten locally.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	current := copySession(c.current)
	c.mu.Unlock()

	if current != nil {
		err := c.do(ctx, "/logout", current.AccessToken, nil, nil)
		var perr *ProviderError
		if err != nil && !(errors.As(err, &perr) && (perr.Status == fasthttp.StatusUnauthorized || perr.Status == fasthttp.StatusNotFound)) {
			return err
		}
	}

	return c.commit(ctx, domain.AuthEventSignedOut, nil)
}

// ResetPasswordForEmail starts the out-of-band password reset flow
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	path := "/recover"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	return c.do(ctx, path, "", map[string]string{"email": email}, nil)
}

// RefreshSession exchanges the current refresh token for a new session
func (c *Client) RefreshSession(ctx context.Context) (*domain.Session, error) {
	c.mu.Lock()
	current := copySession(c.current)
	c.mu.Unlock()

	if current == nil || current.RefreshToken == "" {
		return nil, ErrNoSession
	}
	return c.refresh(ctx, current.RefreshToken)
}

// OnAuthStateChange registers l and returns a function removing it again
func (c *Client) OnAuthStateChange(l Listener) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// AutoRefresh refreshes the session shortly before it expires until ctx is done
func (c *Client) AutoRefresh(ctx context.Context) error {
	ticker := time.NewTicker(refreshTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.refreshIfDue(ctx)
		}
	}
}

func (c *Client) refreshIfDue(ctx context.Context) {
	c.mu.Lock()
	current := copySession(c.current)
	c.mu.Unlock()

	if current == nil || current.ExpiresAt.IsZero() {
		return
	}
	if current.ExpiresAt.Sub(c.now()) > refreshMargin {
		return
	}
	if _, err := c.refresh(ctx, current.RefreshToken); err != nil {
		c.logger.Warn("Session auto-refresh failed", zap.Error(err))
	}
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*domain.Session, error) {
	if refreshToken == "" {
		return nil, ErrNoSession
	}

	var resp tokenResponse
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, "/token?grant_type=refresh_token", "", body, &resp); err != nil {
		return nil, err
	}

	session, err := c.sessionFromToken(resp)
	if err != nil {
		return nil, err
	}
	if err := c.commit(ctx, domain.AuthEventTokenRefreshed, session); err != nil {
		return nil, err
	}
	return copySession(session), nil
}

// commit persists the new session, swaps it in and notifies listeners
func (c *Client) commit(ctx context.Context, event domain.AuthEvent, session *domain.Session) error {
	if session != nil {
		if err := c.sessions.Save(ctx, session); err != nil {
			return err
		}
	} else if err := c.sessions.Delete(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.current = copySession(session)
	c.loaded = true
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, c.listeners[id])
	}
	c.mu.Unlock()

	c.logger.Debug("Auth state changed", zap.String("event", string(event)))
	for _, l := range listeners {
		l(event, copySession(session))
	}
	return nil
}

func (c *Client) setLoaded(session *domain.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = copySession(session)
	c.loaded = true
}

func (c *Client) sessionFromToken(resp tokenResponse) (*domain.Session, error) {
	if resp.AccessToken == "" {
		return nil, errMissingToken
	}

	session := &domain.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
	}
	if resp.User != nil {
		session.User = *resp.User
	}

	switch {
	case resp.ExpiresAt > 0:
		session.ExpiresAt = time.Unix(resp.ExpiresAt, 0).UTC()
	case resp.ExpiresIn > 0:
		session.ExpiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
	default:
		if exp, ok := tokenExpiry(resp.AccessToken); ok {
			session.ExpiresAt = exp
		}
	}
	return session, nil
}

// tokenExpiry reads the exp claim without verifying the signature;
// the provider is the only party able to verify its own tokens.
func tokenExpiry(accessToken string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time.UTC(), true
}

// do POSTs body as JSON to the auth API and decodes the response into out
func (c *Client) do(ctx context.Context, path, bearer string, body any, out any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + "/auth/v1" + path)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("apikey", c.apiKey)
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+bearer)

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		req.SetBodyRaw(payload)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("failed to reach identity provider: %w", err)
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		return parseProviderError(status, resp.Body())
	}

	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode identity response: %w", err)
	}
	return nil
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
