package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"shelfdesk/internal/domain"
	"shelfdesk/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultFetchTimeout bounds a single remote catalog request
const DefaultFetchTimeout = 15 * time.Second

var (
	ErrProductNotFound = errors.New("product not found")
	ErrSuperseded      = errors.New("catalog request superseded by a newer one")
)

// ProductSource is the remote, read-only catalog
type ProductSource interface {
	FetchAll(ctx context.Context) ([]domain.Product, error)
}

// CatalogStore holds the local product collection and its load status
type CatalogStore interface {
	FetchProducts(ctx context.Context, force bool) error
	ResetToAPI(ctx context.Context) error
	GetProductByID(id string) (domain.Product, bool)
	AddProduct(ctx context.Context, fields domain.ProductFields) (domain.Product, error)
	UpdateProduct(ctx context.Context, id string, fields domain.ProductFields) (domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	ClearError()
	Clear(ctx context.Context) error
	SearchProducts(query string) []domain.Product
	FilterByCategory(category string) []domain.Product
	Categories() []string
	Stats() domain.Stats
	State() domain.CatalogState
	Products() []domain.Product
}

// CatalogOption customizes a catalog store
type CatalogOption func(*catalogStore)

// WithClock replaces the time source used for timestamps
func WithClock(now func() time.Time) CatalogOption {
	return func(s *catalogStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces the generator of new product identifiers
func WithIDGenerator(newID func() string) CatalogOption {
	return func(s *catalogStore) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithFetchTimeout bounds each remote request; zero keeps the default
func WithFetchTimeout(d time.Duration) CatalogOption {
	return func(s *catalogStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

type catalogStore struct {
	snapshots repository.ProductRepository
	source    ProductSource
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
	timeout   time.Duration

	mu        sync.RWMutex
	products  []domain.Product
	loading   bool
	errMsg    string
	lastFetch *time.Time
	// latest is the token of the most recently issued fetch or reset
	latest uint64
}

// NewCatalogStore creates a catalog store hydrated from the persisted snapshot.
// An unreadable snapshot is logged and the store starts empty.
func NewCatalogStore(
	ctx context.Context,
	snapshots repository.ProductRepository,
	source ProductSource,
	logger *zap.Logger,
	opts ...CatalogOption,
) (CatalogStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &catalogStore{
		snapshots: snapshots,
		source:    source,
		logger:    logger,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
		timeout:   DefaultFetchTimeout,
		products:  []domain.Product{},
	}
	for _, opt := range opts {
		opt(s)
	}

	snapshot, err := snapshots.Load(ctx)
	switch {
	case err == nil:
		s.products = cloneProducts(snapshot.Products)
		s.lastFetch = copyTime(snapshot.LastFetch)
		logger.Info("Catalog hydrated from local storage", zap.Int("products", len(s.products)))
	case errors.Is(err, repository.ErrSnapshotNotFound):
		logger.Info("No local catalog snapshot, starting empty")
	default:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("Ignoring unreadable catalog snapshot", zap.Error(err))
	}

	return s, nil
}

// FetchProducts loads the remote catalog unless the collection is already populated
func (s *catalogStore) FetchProducts(ctx context.Context, force bool) error {
	s.mu.Lock()
	if len(s.products) > 0 && !force {
		s.mu.Unlock()
		return nil
	}
	token := s.begin()
	s.mu.Unlock()

	return s.load(ctx, token, "failed to load products")
}

// ResetToAPI replaces the collection with the remote catalog regardless of its contents
func (s *catalogStore) ResetToAPI(ctx context.Context) error {
	s.mu.Lock()
	token := s.begin()
	s.mu.Unlock()

	return s.load(ctx, token, "failed to reset products")
}

// begin issues a new request token; callers hold the write lock
func (s *catalogStore) begin() uint64 {
	s.latest++
	s.loading = true
	s.errMsg = ""
	return s.latest
}

// load performs the remote request outside the lock and commits only if token is still the latest
func (s *catalogStore) load(ctx context.Context, token uint64, failure string) error {
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	products, err := s.source.FetchAll(fetchCtx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if token != s.latest {
		s.logger.Debug("Discarding stale catalog response",
			zap.Uint64("token", token),
			zap.Uint64("latest", s.latest),
		)
		return ErrSuperseded
	}

	if err != nil {
		err = fmt.Errorf("%s: %w", failure, err)
		s.loading = false
		s.errMsg = err.Error()
		s.logger.Warn("Catalog request failed", zap.Error(err))
		return err
	}

	fetchedAt := s.now().UTC()
	next := cloneProducts(products)
	if err := s.commit(ctx, next, &fetchedAt); err != nil {
		s.loading = false
		s.errMsg = err.Error()
		return err
	}
	s.loading = false

	s.logger.Info("Catalog replaced from remote source",
		zap.Int("products", len(next)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// GetProductByID looks a product up by its canonical identifier
func (s *catalogStore) GetProductByID(id string) (domain.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return domain.Product{}, false
	}
	return s.products[idx].Clone(), true
}

// AddProduct creates a product from fields and prepends it to the collection
func (s *catalogStore) AddProduct(ctx context.Context, fields domain.ProductFields) (domain.Product, error) {
	now := s.now().UTC()
	created, updated := now, now

	product := domain.Product{
		Rating:    0,
		CreatedAt: &created,
		UpdatedAt: &updated,
	}
	applyText(&product, fields)
	if fields.Price != nil {
		if v, ok := fields.Price.Float(); ok {
			product.Price = v
		}
	}
	if fields.Stock != nil {
		if v, ok := fields.Stock.Int(); ok {
			product.Stock = v
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product.ID = s.uniqueID()
	next := make([]domain.Product, 0, len(s.products)+1)
	next = append(next, product)
	next = append(next, s.products...)

	if err := s.commit(ctx, next, s.lastFetch); err != nil {
		return domain.Product{}, err
	}

	s.logger.Debug("Product added", zap.String("id", product.ID.String()))
	return product.Clone(), nil
}

// UpdateProduct merges fields into the matching product.
// Unusable price or stock values keep the previous value.
func (s *catalogStore) UpdateProduct(ctx context.Context, id string, fields domain.ProductFields) (domain.Product, error) {
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return domain.Product{}, ErrProductNotFound
	}

	product := s.products[idx].Clone()
	applyText(&product, fields)
	if fields.Price != nil {
		if v, ok := fields.Price.Float(); ok {
			product.Price = v
		}
	}
	if fields.Stock != nil {
		if v, ok := fields.Stock.Int(); ok {
			product.Stock = v
		}
	}
	product.UpdatedAt = &now

	next := make([]domain.Product, len(s.products))
	copy(next, s.products)
	next[idx] = product

	if err := s.commit(ctx, next, s.lastFetch); err != nil {
		return domain.Product{}, err
	}

	s.logger.Debug("Product updated", zap.String("id", product.ID.String()))
	return product.Clone(), nil
}

// DeleteProduct removes the matching product; an unknown id is not an error
func (s *catalogStore) DeleteProduct(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return nil
	}

	next := make([]domain.Product, 0, len(s.products)-1)
	next = append(next, s.products[:idx]...)
	next = append(next, s.products[idx+1:]...)

	if err := s.commit(ctx, next, s.lastFetch); err != nil {
		return err
	}

	s.logger.Debug("Product deleted", zap.String("id", id))
	return nil
}

// ClearError drops the outstanding error message
func (s *catalogStore) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = ""
}

// Clear empties the collection, removes the persisted snapshot and supersedes in-flight loads
func (s *catalogStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.snapshots.Clear(ctx); err != nil {
		return err
	}
	// requests issued before the clear must not repopulate the catalog
	s.latest++
	s.loading = false
	s.products = []domain.Product{}
	s.lastFetch = nil
	s.errMsg = ""

	s.logger.Info("Local catalog cleared")
	return nil
}

// SearchProducts matches query case-insensitively against title, brand, category and description
func (s *catalogStore) SearchProducts(query string) []domain.Product {
	term := strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	defer s.mu.RUnlock()

	if term == "" {
		return cloneProducts(s.products)
	}

	out := []domain.Product{}
	for _, p := range s.products {
		if containsFold(p.Title, term) ||
			containsFold(p.Brand, term) ||
			containsFold(p.Category, term) ||
			containsFold(p.Description, term) {
			out = append(out, p.Clone())
		}
	}
	return out
}

// FilterByCategory returns products whose category equals category, ignoring case
func (s *catalogStore) FilterByCategory(category string) []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if category == "" {
		return cloneProducts(s.products)
	}

	out := []domain.Product{}
	for _, p := range s.products {
		if p.Category != "" && strings.EqualFold(p.Category, category) {
			out = append(out, p.Clone())
		}
	}
	return out
}

// Categories returns the distinct non-empty categories, sorted
func (s *catalogStore) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	categories := []string{}
	for _, p := range s.products {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		categories = append(categories, p.Category)
	}
	sort.Strings(categories)
	return categories
}

// Stats aggregates the collection. Sums are exact decimals; AvgPrice is the plain mean.
func (s *catalogStore) Stats() domain.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.Stats{Total: len(s.products)}
	if stats.Total == 0 {
		return stats
	}

	totalValue := decimal.Zero
	priceSum := decimal.Zero
	for _, p := range s.products {
		price := decimal.NewFromFloat(p.Price)
		stats.TotalStock += p.Stock
		totalValue = totalValue.Add(price.Mul(decimal.NewFromInt(int64(p.Stock))))
		priceSum = priceSum.Add(price)
		if p.Stock < domain.LowStockThreshold {
			stats.LowStock++
		}
	}

	stats.TotalValue = totalValue.InexactFloat64()
	stats.AvgPrice = priceSum.InexactFloat64() / float64(stats.Total)
	return stats
}

// State returns a copy of the full catalog state
func (s *catalogStore) State() domain.CatalogState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return domain.CatalogState{
		Products:  cloneProducts(s.products),
		Loading:   s.loading,
		Error:     s.errMsg,
		LastFetch: copyTime(s.lastFetch),
	}
}

// Products returns a copy of the collection in display order
func (s *catalogStore) Products() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProducts(s.products)
}

// commit persists next and swaps it in; callers hold the write lock.
// A failed save leaves memory untouched.
func (s *catalogStore) commit(ctx context.Context, next []domain.Product, lastFetch *time.Time) error {
	snapshot := domain.Snapshot{Products: next, LastFetch: copyTime(lastFetch)}
	if err := s.snapshots.Save(ctx, snapshot); err != nil {
		s.logger.Error("Failed to persist catalog", zap.Error(err))
		return fmt.Errorf("failed to persist catalog: %w", err)
	}
	s.products = next
	s.lastFetch = copyTime(lastFetch)
	return nil
}

// indexOf finds id in the collection; callers hold a lock
func (s *catalogStore) indexOf(id string) int {
	id = strings.TrimSpace(id)
	if id == "" {
		return -1
	}
	for i, p := range s.products {
		if p.ID.String() == id {
			return i
		}
	}
	return -1
}

// uniqueID draws identifiers until one is unused; callers hold the write lock
func (s *catalogStore) uniqueID() domain.ProductID {
	for {
		id := domain.ProductID(s.newID())
		if id != "" && s.indexOf(id.String()) < 0 {
			return id
		}
	}
}

func applyText(p *domain.Product, fields domain.ProductFields) {
	if fields.Title != nil {
		p.Title = strings.TrimSpace(*fields.Title)
	}
	if fields.Description != nil {
		p.Description = *fields.Description
	}
	if fields.Brand != nil {
		p.Brand = strings.TrimSpace(*fields.Brand)
	}
	if fields.Category != nil {
		p.Category = strings.TrimSpace(*fields.Category)
	}
	if fields.Thumbnail != nil {
		p.Thumbnail = strings.TrimSpace(*fields.Thumbnail)
	}
	if fields.Tags != nil {
		p.Tags = append([]string(nil), fields.Tags...)
	}
	if fields.Images != nil {
		p.Images = append([]string(nil), fields.Images...)
	}
}

func containsFold(s, lowerTerm string) bool {
	return s != "" && strings.Contains(strings.ToLower(s), lowerTerm)
}

func cloneProducts(products []domain.Product) []domain.Product {
	out := make([]domain.Product, len(products))
	for i, p := range products {
		out[i] = p.Clone()
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
