package users

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPersister struct {
	mu       sync.Mutex
	records  []Record
	saves    int
	failSave bool
}

func (m *memPersister) LoadAll(ctx context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...), nil
}

func (m *memPersister) SaveAll(ctx context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errors.New("save refused")
	}
	m.records = append([]Record(nil), records...)
	m.saves++
	return nil
}

func newTestStore(t *testing.T, p Persister) *Store {
	t.Helper()
	s := NewStore(p, time.Hour)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

func TestStoreEnsureCreatesUnsubmitted(t *testing.T) {
	s := newTestStore(t, &memPersister{})

	rec := s.Ensure("42", 100, "Alice")
	assert.Equal(t, "42", rec.ID)
	assert.Equal(t, int64(100), rec.ChannelID)
	assert.Equal(t, StateUnsubmitted, rec.State)
	assert.False(t, rec.HasContacts)

	// Repeat refreshes channel info without resetting state.
	_, err := s.Update("42", func(r *Record) error {
		r.State = StatePending
		return nil
	})
	require.NoError(t, err)

	again := s.Ensure("42", 200, "Alice B")
	assert.Equal(t, StatePending, again.State)
	assert.Equal(t, int64(200), again.ChannelID)
}

func TestStoreUpdateRollsBackOnError(t *testing.T) {
	s := newTestStore(t, &memPersister{})
	s.Ensure("7", 1, "Bob")

	_, err := s.Update("7", func(r *Record) error {
		r.State = StateApproved
		return errors.New("nope")
	})
	require.Error(t, err)

	rec, ok := s.Get("7")
	require.True(t, ok)
	assert.Equal(t, StateUnsubmitted, rec.State, "failed update must not commit")
}

func TestStoreUpdateUnknownID(t *testing.T) {
	s := newTestStore(t, &memPersister{})

	_, err := s.Update("missing", func(r *Record) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreSnapshotsAreIsolated(t *testing.T) {
	s := newTestStore(t, &memPersister{})
	s.Ensure("9", 1, "Carol")
	_, err := s.Update("9", func(r *Record) error {
		r.Contacts = []Contact{{Name: "X", Phones: []string{"+1"}, Source: SourceManual}}
		r.HasContacts = true
		return nil
	})
	require.NoError(t, err)

	rec, ok := s.Get("9")
	require.True(t, ok)
	rec.Contacts[0].Name = "mutated"
	rec.Contacts[0].Phones[0] = "+999"

	fresh, _ := s.Get("9")
	assert.Equal(t, "X", fresh.Contacts[0].Name)
	assert.Equal(t, "+1", fresh.Contacts[0].Phones[0])
}

func TestStoreListFilterSorted(t *testing.T) {
	s := newTestStore(t, &memPersister{})
	s.Ensure("b", 2, "B")
	s.Ensure("a", 1, "A")
	s.Ensure("c", 3, "C")
	_, err := s.Update("c", func(r *Record) error {
		r.State = StatePending
		return nil
	})
	require.NoError(t, err)

	all := s.List(nil)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
	assert.Equal(t, "c", all[2].ID)

	pending := s.List(func(r Record) bool { return r.State == StatePending })
	require.Len(t, pending, 1)
	assert.Equal(t, "c", pending[0].ID)
}

func TestStoreRecordPublish(t *testing.T) {
	s := newTestStore(t, &memPersister{})
	s.Ensure("5", 1, "Dan")

	rec, err := s.RecordPublish("5")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.PublishCount)
	require.NotNil(t, rec.LastPublishAt)

	rec, err = s.RecordPublish("5")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.PublishCount)

	_, err = s.RecordPublish("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreFlushOnlyWhenDirty(t *testing.T) {
	p := &memPersister{}
	s := newTestStore(t, p)
	ctx := context.Background()

	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 0, p.saves, "clean store must not write")

	s.Ensure("1", 1, "Eve")
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 1, p.saves)

	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 1, p.saves, "second flush without changes must not write")
}

func TestStoreFlushFailureKeepsDirty(t *testing.T) {
	p := &memPersister{failSave: true}
	s := NewStore(p, time.Hour)
	ctx := context.Background()

	s.Ensure("1", 1, "Eve")
	require.Error(t, s.Flush(ctx))

	p.mu.Lock()
	p.failSave = false
	p.mu.Unlock()

	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 1, p.saves, "data must survive a failed flush attempt")
	_ = s.Close(ctx)
}

func TestStoreLoadReplacesState(t *testing.T) {
	seeded := &memPersister{records: []Record{
		{ID: "10", ChannelID: 10, State: StateApproved, HasContacts: true},
		{ID: "11", ChannelID: 11, State: StatePending},
	}}
	s := newTestStore(t, seeded)
	require.NoError(t, s.Load(context.Background()))

	rec, ok := s.Get("10")
	require.True(t, ok)
	assert.Equal(t, StateApproved, rec.State)

	all := s.List(nil)
	assert.Len(t, all, 2)
}

func TestFilePersisterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	p, err := NewFilePersister(path)
	require.NoError(t, err)
	ctx := context.Background()

	// Missing file reads as empty.
	records, err := p.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	now := time.Now().UTC().Truncate(time.Second)
	in := []Record{{
		ID:          "77",
		ChannelID:   77,
		DisplayName: "Frank",
		Contacts: []Contact{{
			Name:   "Office",
			Phones: []string{"+7 900 000-00-00"},
			Emails: []string{"office@example.com"},
			Source: SourceImport,
		}},
		HasContacts: true,
		ImportedAt:  &now,
		State:       StatePending,
	}}
	require.NoError(t, p.SaveAll(ctx, in))

	out, err := p.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, in[0].ID, out[0].ID)
	assert.Equal(t, in[0].Contacts, out[0].Contacts)
	assert.Equal(t, StatePending, out[0].State)
	require.NotNil(t, out[0].ImportedAt)
	assert.True(t, out[0].ImportedAt.Equal(now))
}

func TestStoreCloseFlushesPending(t *testing.T) {
	p := &memPersister{}
	s := NewStore(p, time.Hour)
	require.NoError(t, s.Load(context.Background()))

	s.Ensure("3", 3, "Grace")
	require.NoError(t, s.Close(context.Background()))

	assert.Len(t, p.records, 1)
	assert.Equal(t, "3", p.records[0].ID)
}
