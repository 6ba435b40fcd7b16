package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"shelfdesk/internal/domain"
	"shelfdesk/internal/storage"
)

// DefaultSessionKey is the storage key of the persisted auth session
const DefaultSessionKey = "auth-session"

var (
	ErrSessionNotFound = errors.New("session not found")
)

// SessionRepository persists the identity provider session between runs
type SessionRepository interface {
	Get(ctx context.Context) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context) error
}

type sessionRepository struct {
	kv  storage.KV
	key string
}

// NewSessionRepository creates a KV-backed session repository
func NewSessionRepository(kv storage.KV, key string) SessionRepository {
	if key == "" {
		key = DefaultSessionKey
	}
	return &sessionRepository{kv: kv, key: key}
}

func (r *sessionRepository) Get(ctx context.Context) (*domain.Session, error) {
	data, err := r.kv.Get(ctx, r.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

func (r *sessionRepository) Save(ctx context.Context, session *domain.Session) error {
	if session == nil || session.AccessToken == "" {
		return fmt.Errorf("refusing to persist an empty session")
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.kv.Put(ctx, r.key, payload); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

func (r *sessionRepository) Delete(ctx context.Context) error {
	if err := r.kv.Delete(ctx, r.key); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
