package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/glassline/configurator/internal/core"
	"github.com/glassline/configurator/internal/repository"
)

const (
	defaultSnapshotTTL    = time.Minute
	defaultResyncInterval = 5 * time.Minute
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrLineNotFound    = errors.New("product line not found")
)

// Repository is the catalog store the service orchestrates over.
type Repository interface {
	LoadCatalog(ctx context.Context, lineID int64) (*core.Catalog, error)
	ProductLineID(ctx context.Context, productID int64) (int64, error)
	ListProductLines(ctx context.Context) ([]repository.ProductLineMeta, error)
	ListProductCandidates(ctx context.Context, lineID int64, filter map[string]int64) ([]repository.ProductCandidate, error)
}

type catalogInvalidationSubscriber interface {
	SubscribeCatalogInvalidation(ctx context.Context) (<-chan int64, error)
}

// Instrumentation receives service-level observations. The metrics package
// implements it; tests substitute a recorder.
type Instrumentation interface {
	SnapshotCacheHit()
	SnapshotCacheMiss()
	SnapshotInvalidated()
	ResolutionCompleted(outcome string)
	RulesApplied(count int)
	RecordSKUParse(status string)
}

// ResolveResult is a core resolution stamped with the service's monotonic
// sequence number, so callers issuing overlapping requests can drop
// completions that arrive out of order.
type ResolveResult struct {
	Sequence uint64 `json:"sequence"`
	core.Result
}

// ParseResult is a recovered SKU selection.
type ParseResult struct {
	ProductID int64          `json:"product_id"`
	Selection core.Selection `json:"selections"`
}

type snapshotEntry struct {
	catalog  *core.Catalog
	loadedAt time.Time
}

// Service caches validated catalog snapshots per product line and fronts the
// resolution core. Snapshots expire by TTL, are dropped eagerly on
// LISTEN/NOTIFY invalidation, and a resync ticker flushes everything as a
// safety net against missed notifications.
type Service struct {
	repo             Repository
	snapshotTTL      time.Duration
	resyncInterval   time.Duration
	dynamicNarrowing bool
	inst             Instrumentation

	sequence atomic.Uint64

	mu        sync.RWMutex
	snapshots map[int64]snapshotEntry
}

// Option configures a Service.
type Option func(*Service)

// WithSnapshotTTL sets how long a cached catalog snapshot stays fresh.
func WithSnapshotTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.snapshotTTL = ttl
		}
	}
}

// WithResyncInterval sets the cadence of the full cache flush.
func WithResyncInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.resyncInterval = interval
		}
	}
}

// WithDynamicNarrowing toggles inventory-backed narrowing of allowed options.
func WithDynamicNarrowing(enabled bool) Option {
	return func(s *Service) {
		s.dynamicNarrowing = enabled
	}
}

// WithInstrumentation attaches service-level observation hooks.
func WithInstrumentation(inst Instrumentation) Option {
	return func(s *Service) {
		s.inst = inst
	}
}

func New(ctx context.Context, repo Repository, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("repository is nil")
	}

	svc := &Service{
		repo:           repo,
		snapshotTTL:    defaultSnapshotTTL,
		resyncInterval: defaultResyncInterval,
		snapshots:      make(map[int64]snapshotEntry),
	}
	for _, opt := range opts {
		opt(svc)
	}

	if subscriber, ok := repo.(catalogInvalidationSubscriber); ok {
		if err := svc.startInvalidationListener(ctx, subscriber); err != nil {
			return nil, err
		}
	}

	return svc, nil
}

// ResolveConfiguration resolves one product configuration against the
// current catalog snapshot of the product's line.
func (s *Service) ResolveConfiguration(ctx context.Context, productID int64, selection core.Selection) (ResolveResult, error) {
	sequence := s.sequence.Add(1)

	lineID, err := s.repo.ProductLineID(ctx, productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ResolveResult{}, ErrProductNotFound
		}
		return ResolveResult{}, fmt.Errorf("resolve configuration: %w", err)
	}

	catalog, err := s.snapshot(ctx, lineID)
	if err != nil {
		return ResolveResult{}, err
	}

	result, err := core.Resolve(catalog, productID, selection, core.ResolveOptions{
		DynamicNarrowing: s.dynamicNarrowing,
	})
	if err != nil {
		if errors.Is(err, core.ErrProductNotFound) {
			return ResolveResult{}, ErrProductNotFound
		}
		return ResolveResult{}, fmt.Errorf("resolve configuration: %w", err)
	}

	s.observeResolution(result)

	return ResolveResult{Sequence: sequence, Result: result}, nil
}

// ParseSKU recovers the product and selection encoded in a SKU string. The
// owning product line is found by trying each line's snapshot; when several
// lines claim the SKU the longest base-fragment match wins, mirroring the
// in-catalog product matching rule.
func (s *Service) ParseSKU(ctx context.Context, sku string) (ParseResult, error) {
	if strings.TrimSpace(sku) == "" {
		s.observeSKUParse("invalid")
		return ParseResult{}, errors.New("sku is required")
	}

	lines, err := s.repo.ListProductLines(ctx)
	if err != nil {
		s.observeSKUParse("error")
		return ParseResult{}, fmt.Errorf("parse sku: %w", err)
	}

	var (
		best        core.ParseResult
		bestBaseLen = -1
	)
	for _, line := range lines {
		catalog, err := s.snapshot(ctx, line.ID)
		if err != nil {
			s.observeSKUParse("error")
			return ParseResult{}, err
		}
		parsed, err := core.ParseSKU(catalog, sku)
		if err != nil {
			if errors.Is(err, core.ErrProductNotFound) {
				continue
			}
			s.observeSKUParse("error")
			return ParseResult{}, fmt.Errorf("parse sku: %w", err)
		}
		if product, ok := catalog.Product(parsed.ProductID); ok && len(product.BaseSKU) > bestBaseLen {
			best = parsed
			bestBaseLen = len(product.BaseSKU)
		}
	}

	if bestBaseLen < 0 {
		s.observeSKUParse("not_found")
		return ParseResult{}, ErrProductNotFound
	}
	s.observeSKUParse("ok")
	return ParseResult{ProductID: best.ProductID, Selection: best.Selection}, nil
}

// ListCandidates returns the products of a line whose stored attributes
// contain every entry of the filter.
func (s *Service) ListCandidates(ctx context.Context, lineID int64, filter map[string]int64) ([]repository.ProductCandidate, error) {
	// The snapshot lookup doubles as the line existence check, so not-found
	// reporting stays consistent with resolution.
	if _, err := s.snapshot(ctx, lineID); err != nil {
		return nil, err
	}

	candidates, err := s.repo.ListProductCandidates(ctx, lineID, filter)
	if err != nil {
		return nil, fmt.Errorf("list candidates for line %d: %w", lineID, err)
	}
	return candidates, nil
}

// Snapshot returns the cached catalog for a line, loading and validating it
// on miss or expiry.
func (s *Service) Snapshot(ctx context.Context, lineID int64) (*core.Catalog, error) {
	return s.snapshot(ctx, lineID)
}

// Invalidate drops the cached snapshot for one line, or every snapshot when
// lineID is repository.InvalidateAll.
func (s *Service) Invalidate(lineID int64) {
	s.mu.Lock()
	if lineID == repository.InvalidateAll {
		s.snapshots = make(map[int64]snapshotEntry)
	} else {
		delete(s.snapshots, lineID)
	}
	s.mu.Unlock()

	if s.inst != nil {
		s.inst.SnapshotInvalidated()
	}
}

func (s *Service) snapshot(ctx context.Context, lineID int64) (*core.Catalog, error) {
	s.mu.RLock()
	entry, ok := s.snapshots[lineID]
	s.mu.RUnlock()

	if ok && time.Since(entry.loadedAt) < s.snapshotTTL {
		if s.inst != nil {
			s.inst.SnapshotCacheHit()
		}
		return entry.catalog, nil
	}
	if s.inst != nil {
		s.inst.SnapshotCacheMiss()
	}

	catalog, err := s.repo.LoadCatalog(ctx, lineID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLineNotFound
		}
		return nil, fmt.Errorf("load catalog for line %d: %w", lineID, err)
	}

	s.mu.Lock()
	s.snapshots[lineID] = snapshotEntry{catalog: catalog, loadedAt: time.Now()}
	s.mu.Unlock()

	return catalog, nil
}

func (s *Service) startInvalidationListener(ctx context.Context, subscriber catalogInvalidationSubscriber) error {
	invalidations, err := subscriber.SubscribeCatalogInvalidation(ctx)
	if err != nil {
		return fmt.Errorf("subscribe catalog invalidation: %w", err)
	}

	go func() {
		resyncTicker := time.NewTicker(s.resyncInterval)
		defer resyncTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-resyncTicker.C:
				if invalidations == nil {
					next, err := subscriber.SubscribeCatalogInvalidation(ctx)
					if err == nil {
						invalidations = next
					}
				}
				s.Invalidate(repository.InvalidateAll)
			case lineID, ok := <-invalidations:
				if !ok {
					next, err := subscriber.SubscribeCatalogInvalidation(ctx)
					if err != nil {
						invalidations = nil
						continue
					}
					invalidations = next
					continue
				}
				s.Invalidate(lineID)
			}
		}
	}()

	return nil
}

func (s *Service) observeResolution(result core.Result) {
	if s.inst == nil {
		return
	}
	s.inst.ResolutionCompleted(resolutionOutcome(result))
	s.inst.RulesApplied(len(result.AppliedRules))
}

func (s *Service) observeSKUParse(status string) {
	if s.inst == nil {
		return
	}
	s.inst.RecordSKUParse(status)
}

func resolutionOutcome(result core.Result) string {
	switch {
	case result.NoMatch:
		return "no_match"
	case result.Complete:
		return "complete"
	default:
		return "incomplete"
	}
}
