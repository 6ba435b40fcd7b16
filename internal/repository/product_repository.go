package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"shelfdesk/internal/domain"
	"shelfdesk/internal/storage"
)

// DefaultSnapshotKey is the fixed storage key of the catalog snapshot
const DefaultSnapshotKey = "productstore-products"

// snapshotVersion is bumped when the persisted layout changes
const snapshotVersion = 0

var (
	ErrSnapshotNotFound = errors.New("catalog snapshot not found")
	ErrSnapshotVersion  = errors.New("unsupported catalog snapshot version")
)

// ProductRepository persists the catalog snapshot (products and last fetch time)
type ProductRepository interface {
	Load(ctx context.Context) (*domain.Snapshot, error)
	Save(ctx context.Context, snapshot domain.Snapshot) error
	Clear(ctx context.Context) error
}

// persistedSnapshot is the on-disk envelope
type persistedSnapshot struct {
	State   domain.Snapshot `json:"state"`
	Version int             `json:"version"`
}

type productRepository struct {
	kv  storage.KV
	key string
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(kv storage.KV, key string) ProductRepository {
	if key == "" {
		key = DefaultSnapshotKey
	}
	return &productRepository{kv: kv, key: key}
}

// Load reads the snapshot written by the last Save
func (r *productRepository) Load(ctx context.Context) (*domain.Snapshot, error) {
	data, err := r.kv.Get(ctx, r.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to read catalog snapshot: %w", err)
	}

	var persisted persistedSnapshot
	if err := json.Unmarshal(data, &persisted); err != nil {
		return nil, fmt.Errorf("failed to decode catalog snapshot: %w", err)
	}
	if persisted.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrSnapshotVersion, persisted.Version)
	}
	if persisted.State.Products == nil {
		persisted.State.Products = []domain.Product{}
	}

	return &persisted.State, nil
}

// Save replaces the stored snapshot in one write
func (r *productRepository) Save(ctx context.Context, snapshot domain.Snapshot) error {
	if snapshot.Products == nil {
		snapshot.Products = []domain.Product{}
	}
	data, err := json.Marshal(persistedSnapshot{State: snapshot, Version: snapshotVersion})
	if err != nil {
		return fmt.Errorf("failed to encode catalog snapshot: %w", err)
	}
	if err := r.kv.Put(ctx, r.key, data); err != nil {
		return fmt.Errorf("failed to write catalog snapshot: %w", err)
	}
	return nil
}

// Clear removes the stored snapshot
func (r *productRepository) Clear(ctx context.Context) error {
	if err := r.kv.Delete(ctx, r.key); err != nil {
		return fmt.Errorf("failed to clear catalog snapshot: %w", err)
	}
	return nil
}
