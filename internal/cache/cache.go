// Package cache holds the in-memory list snapshot of each gallery table and
// refetches it after a mutation marks it stale.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/clubsite/internal/records"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var errMissingLister = errors.New("cache: lister is required")

// Lister is the read half of the row store.
type Lister interface {
	List(ctx context.Context, table records.Table) ([]records.Record, error)
}

// Invalidator marks a table's snapshot stale.
type Invalidator interface {
	Invalidate(table records.Table)
}

// Reader serves table snapshots.
type Reader interface {
	Get(ctx context.Context, table records.Table) (Snapshot, error)
}

// Snapshot is the ordered row set last fetched for a table. The order is the
// store's; the cache never re-sorts.
type Snapshot struct {
	Table     records.Table
	Records   []records.Record
	FetchedAt time.Time
}

// Find returns the record with the given identifier.
func (s Snapshot) Find(id records.RecordID) (records.Record, bool) {
	for _, record := range s.Records {
		if record.ID == id {
			return record, true
		}
	}
	return records.Record{}, false
}

// FetchError reports that a table could not be loaded.
type FetchError struct {
	Table records.Table
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("cache: unable to load %s: %v", e.Table, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Config describes the cache dependencies.
type Config struct {
	Lister Lister
	Tables []records.Table
	Clock  func() time.Time
	Logger *zap.Logger
}

// ListCache is keyed by a closed set of tables fixed at construction. Each
// entry carries its own lock so that tables never block each other.
type ListCache struct {
	lister  Lister
	entries map[records.Table]*entry
	group   singleflight.Group
	clock   func() time.Time
	logger  *zap.Logger
}

type entry struct {
	mu         sync.RWMutex
	records    []records.Record
	fetchedAt  time.Time
	stale      bool
	generation uint64
}

// New builds a cache whose entries all start stale.
func New(cfg Config) (*ListCache, error) {
	if cfg.Lister == nil {
		return nil, errMissingLister
	}
	tables := cfg.Tables
	if len(tables) == 0 {
		tables = []records.Table{records.TableProjects, records.TableEvents}
	}
	entries := make(map[records.Table]*entry, len(tables))
	for _, table := range tables {
		if !table.Listable() {
			return nil, fmt.Errorf("cache: %w: %s", records.ErrTableNotListable, table)
		}
		entries[table] = &entry{stale: true}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListCache{
		lister:  cfg.Lister,
		entries: entries,
		clock:   clock,
		logger:  logger,
	}, nil
}

// Get returns the table snapshot, fetching it first when stale. Concurrent
// readers of the same stale generation share one fetch, which outlives the
// cancellation of any single reader.
func (c *ListCache) Get(ctx context.Context, table records.Table) (Snapshot, error) {
	current, ok := c.entries[table]
	if !ok {
		return Snapshot{}, &FetchError{Table: table, Err: records.ErrUnknownTable}
	}

	current.mu.RLock()
	if !current.stale {
		snapshot := current.snapshotLocked(table)
		current.mu.RUnlock()
		return snapshot, nil
	}
	generation := current.generation
	current.mu.RUnlock()

	key := table.String() + "#" + strconv.FormatUint(generation, 10)
	shared := context.WithoutCancel(ctx)
	results := c.group.DoChan(key, func() (any, error) {
		return c.fetch(shared, table, current, generation)
	})
	select {
	case <-ctx.Done():
		return Snapshot{}, &FetchError{Table: table, Err: ctx.Err()}
	case result := <-results:
		if result.Err != nil {
			return Snapshot{}, result.Err
		}
		return result.Val.(Snapshot), nil
	}
}

func (c *ListCache) fetch(ctx context.Context, table records.Table, target *entry, generation uint64) (Snapshot, error) {
	rows, err := c.lister.List(ctx, table)
	if err != nil {
		c.logger.Warn("cache refresh failed", zap.String("table", table.String()), zap.Error(err))
		return Snapshot{}, &FetchError{Table: table, Err: err}
	}

	fetchedAt := c.clock().UTC()
	stored := append([]records.Record(nil), rows...)

	// Rows read before an invalidation are handed to this fetch's readers only.
	// The entry keeps whatever a newer generation stored, or stays stale.
	target.mu.Lock()
	if target.generation == generation {
		target.records = stored
		target.fetchedAt = fetchedAt
		target.stale = false
	}
	target.mu.Unlock()

	c.logger.Debug("cache refreshed", zap.String("table", table.String()), zap.Int("records", len(stored)))
	return Snapshot{
		Table:     table,
		Records:   append([]records.Record(nil), stored...),
		FetchedAt: fetchedAt,
	}, nil
}

// Invalidate marks the table stale. Repeated invalidations before the next read
// coalesce into a single refetch.
func (c *ListCache) Invalidate(table records.Table) {
	current, ok := c.entries[table]
	if !ok {
		return
	}
	current.mu.Lock()
	current.stale = true
	current.generation++
	current.mu.Unlock()
}

// Peek returns the last fetched snapshot and whether it is stale, without fetching.
func (c *ListCache) Peek(table records.Table) (Snapshot, bool, bool) {
	current, ok := c.entries[table]
	if !ok {
		return Snapshot{}, false, false
	}
	current.mu.RLock()
	defer current.mu.RUnlock()
	return current.snapshotLocked(table), current.stale, true
}

func (e *entry) snapshotLocked(table records.Table) Snapshot {
	return Snapshot{
		Table:     table,
		Records:   append([]records.Record(nil), e.records...),
		FetchedAt: e.fetchedAt,
	}
}
