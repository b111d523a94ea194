// Package seenset owns the per-source record of item identities that were
// already judged new. It keeps a bounded window per source in memory and
// persists whole snapshots through a storage.Backend.
package seenset

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/samvad-hq/newswatch/internal/domain"
	"github.com/samvad-hq/newswatch/internal/identity"
	"github.com/samvad-hq/newswatch/internal/logger"
	"github.com/samvad-hq/newswatch/internal/storage"
)

// DefaultCap is used when no retention cap is configured.
const DefaultCap = 100

// FailureReporter receives persistence failures. Implemented by metrics.
type FailureReporter interface {
	StoreFailure(op string)
	StoreDegraded(degraded bool)
}

// Options configures a Store.
type Options struct {
	Cap        int
	SourceCaps map[string]int
	Logger     logger.Logger
	Reporter   FailureReporter
	Now        func() time.Time
}

// Store is the single owner of seen-set state. Mutations are expected from one
// goroutine; readers such as the status endpoint may run concurrently.
type Store struct {
	mu         sync.RWMutex
	backend    storage.Backend
	sources    map[string]*sourceSet
	cap        int
	sourceCaps map[string]int
	log        logger.Logger
	reporter   FailureReporter
	now        func() time.Time

	degraded bool
	lastErr  error

	// loadFailed is set until a flush replaces the state that could not be read.
	loadFailed bool
}

type sourceSet struct {
	// records are ordered oldest first.
	records   []domain.SeenRecord
	index     map[string]struct{}
	lastReset time.Time
}

// New builds a Store on top of backend. Call Load before use.
func New(backend storage.Backend, opts Options) *Store {
	if backend == nil {
		backend = storage.NewMemoryBackend()
	}
	if opts.Cap <= 0 {
		opts.Cap = DefaultCap
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	caps := make(map[string]int, len(opts.SourceCaps))
	for k, v := range opts.SourceCaps {
		if v > 0 {
			caps[k] = v
		}
	}
	return &Store{
		backend:    backend,
		sources:    make(map[string]*sourceSet),
		cap:        opts.Cap,
		sourceCaps: caps,
		log:        logger.Ensure(opts.Logger),
		reporter:   opts.Reporter,
		now:        opts.Now,
	}
}

// Load replaces in-memory state with the backend snapshot. A backend failure
// leaves the store empty and in degraded mode; the error is returned for the
// caller to report but the store stays usable.
func (s *Store) Load(ctx context.Context) error {
	st, err := s.backend.Load(ctx)
	if err != nil {
		s.mu.Lock()
		s.loadFailed = true
		s.mu.Unlock()
		s.markFailure("load", err)
		return err
	}

	now := s.now()
	sources := make(map[string]*sourceSet, len(st.Sources))
	for key, ss := range st.Sources {
		sources[key] = s.restoreSource(key, ss, now)
	}

	s.mu.Lock()
	s.sources = sources
	s.loadFailed = false
	s.mu.Unlock()

	s.log.InfoObj("seen-set loaded", "seenset_load", map[string]any{
		"backend":        s.backend.Name(),
		"schema_version": st.Version,
		"sources":        len(sources),
	})
	return nil
}

// restoreSource rebuilds one source window from its persisted form, filling
// in fields older writers did not record.
func (s *Store) restoreSource(key string, ss storage.SourceState, now time.Time) *sourceSet {
	set := &sourceSet{index: make(map[string]struct{}, len(ss.Items))}
	set.lastReset = ss.LastReset
	if set.lastReset.IsZero() {
		set.lastReset = now
	}

	// Persisted items are most recent first; walk backwards to rebuild oldest first.
	n := len(ss.Items)
	for i := n - 1; i >= 0; i-- {
		it := ss.Items[i]
		item := domain.Item{
			Title:       it.Title,
			URL:         it.URL,
			PublishedAt: it.PublishedAt,
			Categories:  append([]string(nil), it.Categories...),
			SourceKey:   key,
		}
		k := it.Key
		if k == "" {
			k = identity.Resolve(item)
		}
		if _, dup := set.index[k]; dup {
			continue
		}
		seenAt := it.FirstSeenAt
		if seenAt.IsZero() {
			// keep positional order: older entries get earlier synthetic timestamps
			seenAt = now.Add(-time.Duration(i+1) * time.Millisecond)
		}
		set.records = append(set.records, domain.SeenRecord{
			Key:         k,
			SourceKey:   key,
			FirstSeenAt: seenAt,
			Item:        item,
		})
		set.index[k] = struct{}{}
	}
	sortRecords(set.records)
	s.trim(key, set)
	return set
}

// Contains reports whether key was already recorded for sourceKey.
func (s *Store) Contains(sourceKey, key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.sources[sourceKey]
	if !ok {
		return false
	}
	_, ok = set.index[key]
	return ok
}

// Insert records key for sourceKey. It returns false when the key was already
// present. Entries beyond the retention cap are evicted oldest first.
func (s *Store) Insert(sourceKey, key string, item domain.Item, firstSeenAt time.Time) bool {
	if firstSeenAt.IsZero() {
		firstSeenAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sources[sourceKey]
	if !ok {
		set = &sourceSet{index: make(map[string]struct{}), lastReset: s.now()}
		s.sources[sourceKey] = set
	}
	if _, exists := set.index[key]; exists {
		return false
	}

	item.SourceKey = sourceKey
	item.Categories = append([]string(nil), item.Categories...)
	rec := domain.SeenRecord{Key: key, SourceKey: sourceKey, FirstSeenAt: firstSeenAt, Item: item}

	// Records stay sorted by FirstSeenAt; inserting after equal timestamps keeps arrival order.
	pos := sort.Search(len(set.records), func(i int) bool {
		return set.records[i].FirstSeenAt.After(firstSeenAt)
	})
	set.records = append(set.records, domain.SeenRecord{})
	copy(set.records[pos+1:], set.records[pos:])
	set.records[pos] = rec
	set.index[key] = struct{}{}

	s.trim(sourceKey, set)
	return true
}

func (s *Store) trim(sourceKey string, set *sourceSet) {
	limit := s.capFor(sourceKey)
	if len(set.records) <= limit {
		return
	}
	drop := len(set.records) - limit
	for _, rec := range set.records[:drop] {
		delete(set.index, rec.Key)
	}
	set.records = append([]domain.SeenRecord(nil), set.records[drop:]...)
}

func (s *Store) capFor(sourceKey string) int {
	if c, ok := s.sourceCaps[sourceKey]; ok {
		return c
	}
	return s.cap
}

// Recent returns the recently seen items for sourceKey, most recent first,
// bounded by the retention cap.
func (s *Store) Recent(sourceKey string) []domain.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.sources[sourceKey]
	if !ok {
		return nil
	}
	out := make([]domain.Item, 0, len(set.records))
	for i := len(set.records) - 1; i >= 0; i-- {
		item := set.records[i].Item
		item.Categories = append([]string(nil), item.Categories...)
		out = append(out, item)
	}
	return out
}

// Records returns the seen records for sourceKey, oldest first.
func (s *Store) Records(sourceKey string) []domain.SeenRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.sources[sourceKey]
	if !ok {
		return nil
	}
	return append([]domain.SeenRecord(nil), set.records...)
}

// Len returns the number of records held for sourceKey.
func (s *Store) Len(sourceKey string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if set, ok := s.sources[sourceKey]; ok {
		return len(set.records)
	}
	return 0
}

// Sources lists the known source keys in sorted order.
func (s *Store) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.sources))
	for k := range s.sources {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Flush persists the current state. On failure the store switches to degraded
// mode and keeps serving from memory; a later successful flush clears it.
func (s *Store) Flush(ctx context.Context) error {
	st := s.snapshot()
	if err := s.backend.Save(ctx, st); err != nil {
		s.markFailure("flush", err)
		return err
	}

	s.mu.Lock()
	replaced := s.loadFailed
	s.loadFailed = false
	s.mu.Unlock()
	if replaced {
		s.log.WarnObj("seen-set state that failed to load was overwritten; earlier history is gone", "seenset_replace", map[string]any{
			"backend": s.backend.Name(),
			"sources": len(st.Sources),
		})
	}

	s.markHealthy()
	return nil
}

func (s *Store) snapshot() storage.State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := storage.NewState()
	st.SavedAt = s.now()
	for key, set := range s.sources {
		items := make([]storage.RecordedItem, 0, len(set.records))
		for i := len(set.records) - 1; i >= 0; i-- {
			rec := set.records[i]
			items = append(items, storage.RecordedItem{
				Key:         rec.Key,
				Title:       rec.Item.Title,
				URL:         rec.Item.URL,
				PublishedAt: rec.Item.PublishedAt,
				Categories:  append([]string(nil), rec.Item.Categories...),
				FirstSeenAt: rec.FirstSeenAt,
			})
		}
		st.Sources[key] = storage.SourceState{Items: items, LastReset: set.lastReset}
	}
	return st
}

// Close flushes pending state and releases the backend.
func (s *Store) Close(ctx context.Context) error {
	flushErr := s.Flush(ctx)
	closeErr := s.backend.Close()
	return errors.Join(flushErr, closeErr)
}

// Degraded reports whether the last persistence attempt failed.
func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// LastError returns the most recent persistence error, if any.
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Backend returns the name of the durable backend.
func (s *Store) Backend() string {
	return s.backend.Name()
}

func (s *Store) markFailure(op string, err error) {
	s.mu.Lock()
	wasDegraded := s.degraded
	s.degraded = true
	s.lastErr = err
	s.mu.Unlock()

	if s.reporter != nil {
		s.reporter.StoreFailure(op)
		s.reporter.StoreDegraded(true)
	}
	s.log.WarnObj("seen-set persistence failed; continuing in memory, duplicate notifications may recur after restart", "seenset_failure", map[string]any{
		"op":               op,
		"backend":          s.backend.Name(),
		"error":            err.Error(),
		"already_degraded": wasDegraded,
	})
}

func (s *Store) markHealthy() {
	s.mu.Lock()
	wasDegraded := s.degraded
	s.degraded = false
	s.lastErr = nil
	s.mu.Unlock()

	if !wasDegraded {
		return
	}
	if s.reporter != nil {
		s.reporter.StoreDegraded(false)
	}
	s.log.InfoObj("seen-set persistence recovered", "backend", s.backend.Name())
}

func sortRecords(records []domain.SeenRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].FirstSeenAt.Before(records[j].FirstSeenAt)
	})
}
