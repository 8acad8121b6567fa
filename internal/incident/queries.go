package incident

import (
	"context"
	"sync"
	"time"

	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/store"
)

// Queries serves incident lookups with a small TTL cache in front. Digest
// generation and dashboard polling hit the same date lists repeatedly;
// records never mutate after resolution, so short-lived staleness is fine.
type Queries struct {
	incidents *store.IncidentStore
	clock     clock.Clock
	ttl       time.Duration
	maxSize   int

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	fetchedAt time.Time
	records   []models.IncidentRecord
}

// NewQueries creates a query layer with the given cache TTL and size bound.
func NewQueries(incidents *store.IncidentStore, ttl time.Duration, maxSize int, clk clock.Clock) *Queries {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxSize <= 0 {
		maxSize = 64
	}
	return &Queries{
		incidents: incidents,
		clock:     clk,
		ttl:       ttl,
		maxSize:   maxSize,
		cache:     make(map[string]cacheEntry),
	}
}

// Get returns one incident by id. Single-record reads bypass the cache.
func (q *Queries) Get(ctx context.Context, incidentID string) (*models.IncidentRecord, error) {
	return q.incidents.Get(ctx, incidentID)
}

// ByDate returns the incidents logged on a date, cached.
func (q *Queries) ByDate(ctx context.Context, date string) ([]models.IncidentRecord, error) {
	return q.cached(ctx, "date:"+date, func(ctx context.Context) ([]models.IncidentRecord, error) {
		return q.incidents.ListByDate(ctx, date)
	})
}

// ByStage returns the incidents attributed to a stage, cached.
func (q *Queries) ByStage(ctx context.Context, stage string) ([]models.IncidentRecord, error) {
	return q.cached(ctx, "stage:"+stage, func(ctx context.Context) ([]models.IncidentRecord, error) {
		return q.incidents.ListByStage(ctx, stage)
	})
}

// Open returns unresolved incidents, cached.
func (q *Queries) Open(ctx context.Context) ([]models.IncidentRecord, error) {
	return q.cached(ctx, "open", func(ctx context.Context) ([]models.IncidentRecord, error) {
		return q.incidents.ListOpen(ctx)
	})
}

// Invalidate drops every cached list. Called after writes that must be
// visible immediately, like an operator resolving an incident.
func (q *Queries) Invalidate() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cache = make(map[string]cacheEntry)
}

func (q *Queries) cached(ctx context.Context, key string, fetch func(context.Context) ([]models.IncidentRecord, error)) ([]models.IncidentRecord, error) {
	now := q.clock.Now()

	q.mu.Lock()
	entry, ok := q.cache[key]
	q.mu.Unlock()
	if ok && now.Sub(entry.fetchedAt) < q.ttl {
		return entry.records, nil
	}

	records, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	if len(q.cache) >= q.maxSize {
		q.evictOldestLocked()
	}
	q.cache[key] = cacheEntry{fetchedAt: now, records: records}
	q.mu.Unlock()

	return records, nil
}

// evictOldestLocked removes the stalest entry. The cache is small enough
// that a linear scan beats maintaining an LRU list.
func (q *Queries) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for key, entry := range q.cache {
		if first || entry.fetchedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.fetchedAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(q.cache, oldestKey)
	}
}
