// Package catalog maintains a read-through cache of the tracker's schema
// element catalog.
//
// The cache holds one immutable Snapshot at a time. Refreshing produces a
// new Snapshot rather than mutating the old one, so concurrent validations
// never observe a half-updated catalog. The Reader is process-scoped state:
// constructed at startup and passed by handle to every component that
// validates against the catalog.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fieldgov/internal/schema"
)

// ErrUpstreamUnavailable means the catalog could not be listed. Callers
// must treat this as "cannot validate right now", never as "no duplicates
// exist".
var ErrUpstreamUnavailable = errors.New("catalog: upstream unavailable")

// Source lists the full schema element catalog from the external system.
type Source interface {
	ListElements(ctx context.Context) ([]schema.Element, error)
}

// Snapshot is an immutable view of the catalog at one fetch cycle.
type Snapshot struct {
	Elements  []schema.Element
	FetchedAt time.Time

	byNormalized map[string]*schema.Element
}

// NewSnapshot builds a snapshot with its normalized-name index.
func NewSnapshot(elements []schema.Element, fetchedAt time.Time) *Snapshot {
	s := &Snapshot{
		Elements:     elements,
		FetchedAt:    fetchedAt,
		byNormalized: make(map[string]*schema.Element, len(elements)),
	}
	for i := range s.Elements {
		s.byNormalized[s.Elements[i].NormalizedName] = &s.Elements[i]
	}
	return s
}

// Lookup returns the element with the given normalized name, if any.
func (s *Snapshot) Lookup(normalized string) (*schema.Element, bool) {
	e, ok := s.byNormalized[normalized]
	return e, ok
}

// Reader is a read-through TTL cache over a catalog Source.
type Reader struct {
	source  Source
	ttl     time.Duration
	logger  *zap.Logger
	metrics *Metrics

	mu   sync.Mutex
	snap *Snapshot
}

// NewReader creates a catalog reader. The metrics tracker is optional.
func NewReader(source Source, ttl time.Duration, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		source: source,
		ttl:    ttl,
		logger: logger,
	}
}

// SetMetrics sets the metrics tracker for this reader.
func (r *Reader) SetMetrics(m *Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
}

// Fetch returns the current catalog snapshot.
//
// The cached snapshot is served unless forceRefresh is set or the snapshot
// has exceeded the TTL; otherwise a full listing replaces the cache
// atomically. Returns ErrUpstreamUnavailable (wrapped) when the listing
// call fails.
func (r *Reader) Fetch(ctx context.Context, forceRefresh bool) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !forceRefresh && r.snap != nil && time.Since(r.snap.FetchedAt) < r.ttl {
		if r.metrics != nil {
			r.metrics.RecordHit()
		}
		return r.snap, nil
	}

	if r.metrics != nil {
		r.metrics.RecordMiss()
	}

	elements, err := r.source.ListElements(ctx)
	if err != nil {
		r.logger.Warn("catalog listing failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	snap := NewSnapshot(elements, time.Now())
	r.snap = snap

	r.logger.Debug("catalog refreshed",
		zap.Int("elements", len(elements)),
		zap.Bool("forced", forceRefresh),
	)

	return snap, nil
}

// Invalidate drops the cached snapshot so the next Fetch lists upstream.
func (r *Reader) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap = nil
}
