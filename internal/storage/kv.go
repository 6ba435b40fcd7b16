// Package storage provides the key-value drivers backing the local durable state.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

const (
	DriverBolt   = "bolt"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

var (
	ErrNotFound      = errors.New("key not found")
	ErrClosed        = errors.New("storage is closed")
	ErrUnknownDriver = errors.New("unknown storage driver")
)

// KV is a minimal key-value persistence boundary.
// Put replaces the value atomically: readers see either the old or the new value.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Memory is a process-local KV, used by tests and by the memory driver
type Memory struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemory creates an empty in-memory KV
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.data, key)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Options selects and configures a driver
type Options struct {
	Driver      string
	Path        string
	Bucket      string
	RedisClient RedisClient
	RedisPrefix string
}

// Open creates the KV selected by opts.Driver
func Open(opts Options) (KV, error) {
	switch opts.Driver {
	case "", DriverBolt:
		return OpenBolt(opts.Path, opts.Bucket)
	case DriverRedis:
		if opts.RedisClient == nil {
			return nil, fmt.Errorf("redis driver requires a client")
		}
		return NewRedis(opts.RedisClient, opts.RedisPrefix), nil
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}
