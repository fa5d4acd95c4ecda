package users

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/promolabs/promobot/core/logger"
	"log/slog"
)

// ErrNotFound is returned when no record exists for the requested identifier.
var ErrNotFound = errors.New("users: record not found")

// Persister loads and saves complete record snapshots.
type Persister interface {
	LoadAll(ctx context.Context) ([]Record, error)
	SaveAll(ctx context.Context, records []Record) error
}

// Store is the single owner of all user records. Every read returns a deep
// copy and every mutation runs under the store mutex, so the
// import -> state-transition and approve/reject sequences are atomic per user.
type Store struct {
	mu      sync.Mutex
	records map[string]*Record
	dirty   bool

	persister  Persister
	flushEvery time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	flushing bool
}

// NewStore creates a store backed by the given persister. The persister may be
// nil, in which case records live only in memory (tests).
func NewStore(p Persister, flushEvery time.Duration) *Store {
	if flushEvery <= 0 {
		flushEvery = 30 * time.Second
	}
	return &Store{
		records:    make(map[string]*Record),
		persister:  p,
		flushEvery: flushEvery,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Load replaces the in-memory map with the persisted snapshot and starts the
// background flusher.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	records, err := s.persister.LoadAll(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.records = make(map[string]*Record, len(records))
	for i := range records {
		rec := records[i].Clone()
		s.records[rec.ID] = &rec
	}
	s.mu.Unlock()

	logger.Store.Info("records loaded",
		slog.String("event", "store.load"),
		slog.Int("records", len(records)),
	)

	s.mu.Lock()
	s.flushing = true
	s.mu.Unlock()
	go s.flushLoop()
	return nil
}

func (s *Store) flushLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.Flush(context.Background()); err != nil {
				logger.Store.Error("flush failed",
					slog.String("event", "store.flush"),
					slog.String("err", err.Error()),
				)
			}
		case <-s.stop:
			return
		}
	}
}

// Get returns a snapshot of the record if it exists.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return rec.Clone(), true
}

// Ensure creates the record in the unsubmitted state when absent and refreshes
// the contact channel either way. It returns a snapshot.
func (s *Store) Ensure(id string, channelID int64, displayName string) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		rec = NewRecord(id, channelID, displayName)
		s.records[id] = rec
		s.dirty = true
	} else {
		if channelID != 0 && rec.ChannelID != channelID {
			rec.ChannelID = channelID
			s.dirty = true
		}
		if displayName != "" && rec.DisplayName != displayName {
			rec.DisplayName = displayName
			s.dirty = true
		}
	}
	return rec.Clone()
}

// Update applies fn to an existing record under the store lock and returns the
// resulting snapshot. When fn returns an error the record is left untouched.
func (s *Store) Update(id string, fn func(*Record) error) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	scratch := rec.Clone()
	if err := fn(&scratch); err != nil {
		return Record{}, err
	}
	*rec = scratch
	s.dirty = true
	return rec.Clone(), nil
}

// Upsert creates the record if needed, then applies fn like Update.
func (s *Store) Upsert(id string, channelID int64, displayName string, fn func(*Record) error) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		rec = NewRecord(id, channelID, displayName)
	}
	scratch := rec.Clone()
	if channelID != 0 {
		scratch.ChannelID = channelID
	}
	if displayName != "" {
		scratch.DisplayName = displayName
	}
	if err := fn(&scratch); err != nil {
		return Record{}, err
	}
	if !ok {
		s.records[id] = rec
	}
	*rec = scratch
	s.dirty = true
	return rec.Clone(), nil
}

// List returns snapshots of all records matching the filter, ordered by id.
// A nil filter matches everything.
func (s *Store) List(filter func(Record) bool) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		snap := rec.Clone()
		if filter == nil || filter(snap) {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RecordPublish increments the publish counters after a successful publish.
func (s *Store) RecordPublish(id string) (Record, error) {
	return s.Update(id, func(r *Record) error {
		now := time.Now().UTC()
		r.PublishCount++
		r.LastPublishAt = &now
		return nil
	})
}

// Flush writes the current snapshot through the persister when dirty.
// A failed save keeps the dirty flag so the next cycle retries.
func (s *Store) Flush(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}

	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	snapshot := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		snapshot = append(snapshot, rec.Clone())
	}
	s.dirty = false
	s.mu.Unlock()

	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })

	start := time.Now()
	if err := s.persister.SaveAll(ctx, snapshot); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return err
	}
	logger.Store.Debug("snapshot saved",
		slog.String("event", "store.flush"),
		slog.Int("records", len(snapshot)),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// Close stops the background flusher and performs a final flush.
func (s *Store) Close(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.mu.Lock()
	flushing := s.flushing
	s.mu.Unlock()
	if flushing {
		<-s.done
	}
	return s.Flush(ctx)
}
