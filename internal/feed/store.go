package feed

import (
	"context"
	"sync"
	"time"

	appLog "cecal/internal/log"
	"cecal/internal/model"
)

// Loader is anything that can produce a decoded feed. *Fetcher implements it.
type Loader interface {
	Fetch(ctx context.Context) (Result, error)
}

// Snapshot is an immutable view of the store. Callers must not modify
// the slices.
type Snapshot struct {
	Events    []model.Event `json:"eventos"`
	Skipped   []Skipped     `json:"skipped,omitempty"`
	Source    string        `json:"source,omitempty"`
	FetchedAt time.Time     `json:"fetched_at"`
	FromCache bool          `json:"from_cache"`
	Stale     bool          `json:"stale"`

	// LastError is the message of the latest failed refresh, empty after a
	// successful one.
	LastError   string    `json:"last_error,omitempty"`
	LastAttempt time.Time `json:"last_attempt"`
}

// Loaded reports whether any feed has ever been loaded.
func (s Snapshot) Loaded() bool {
	return !s.FetchedAt.IsZero()
}

// Store owns the in-memory event list. The list is only ever replaced as a
// whole after a successful load.
type Store struct {
	loader Loader

	refreshMu sync.Mutex

	mu   sync.RWMutex
	snap Snapshot
	byID map[string]int
}

func NewStore(loader Loader) *Store {
	return &Store{
		loader: loader,
		snap:   Snapshot{Events: []model.Event{}},
		byID:   map[string]int{},
	}
}

// Refresh loads the feed and swaps it in. On failure the previous events
// are kept and the error is recorded in the snapshot.
func (s *Store) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	attempt := time.Now()
	res, err := s.loader.Fetch(ctx)
	if err != nil {
		appLog.Error("store refresh failed", err)
		s.mu.Lock()
		s.snap.LastError = err.Error()
		s.snap.LastAttempt = attempt
		s.mu.Unlock()
		return err
	}

	s.Replace(res)

	s.mu.Lock()
	s.snap.LastAttempt = attempt
	s.mu.Unlock()

	appLog.Info("store refreshed", "events", len(res.Events), "skipped", len(res.Skipped), "from_cache", res.FromCache, "stale", res.Stale)
	return nil
}

// Replace installs res as the current snapshot.
func (s *Store) Replace(res Result) {
	events := res.Events
	if events == nil {
		events = []model.Event{}
	}
	byID := make(map[string]int, len(events))
	for i, ev := range events {
		if _, dup := byID[ev.ID]; dup {
			appLog.Warn("store: duplicate event id; keeping first", "id", ev.ID)
			continue
		}
		byID[ev.ID] = i
	}

	s.mu.Lock()
	s.snap = Snapshot{
		Events:      events,
		Skipped:     res.Skipped,
		Source:      res.Source,
		FetchedAt:   res.FetchedAt,
		FromCache:   res.FromCache,
		Stale:       res.Stale,
		LastAttempt: s.snap.LastAttempt,
	}
	s.byID = byID
	s.mu.Unlock()
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Events returns the current event list.
func (s *Store) Events() []model.Event {
	return s.Snapshot().Events
}

// Find looks up an event by id.
func (s *Store) Find(id string) (model.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return model.Event{}, false
	}
	return s.snap.Events[i], true
}
