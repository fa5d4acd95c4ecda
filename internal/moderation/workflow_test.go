package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promolabs/promobot/internal/users"
)

const (
	opID       int64 = 9000
	strangerID int64 = 1
)

type fakeNotifier struct {
	received []string
	approved []string
	rejected []string
	fail     bool
}

func (f *fakeNotifier) ContactsReceived(_ context.Context, rec users.Record, _ []users.Contact) error {
	f.received = append(f.received, rec.ID)
	if f.fail {
		return assert.AnError
	}
	return nil
}

func (f *fakeNotifier) UserApproved(_ context.Context, rec users.Record) error {
	f.approved = append(f.approved, rec.ID)
	if f.fail {
		return assert.AnError
	}
	return nil
}

func (f *fakeNotifier) UserRejected(_ context.Context, rec users.Record) error {
	f.rejected = append(f.rejected, rec.ID)
	if f.fail {
		return assert.AnError
	}
	return nil
}

func newStore(t *testing.T) *users.Store {
	t.Helper()
	s := users.NewStore(nil, time.Hour)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func contactList(n int) []users.Contact {
	out := make([]users.Contact, 0, n)
	names := []string{"Anna", "Boris", "Clara", "Dmitri", "Elena", "Fedor"}
	for i := 0; i < n; i++ {
		out = append(out, users.Contact{
			Name:   names[i%len(names)],
			Phones: []string{"+7 900 000-000" + string(rune('0'+i))},
		})
	}
	return out
}

func submit(t *testing.T, im *Importer, id string) users.Record {
	t.Helper()
	sum, err := im.Import(context.Background(), id, 500, "User "+id, contactList(3), users.SourceManual)
	require.NoError(t, err)
	require.Equal(t, users.StatePending, sum.Record.State)
	return sum.Record
}

func TestImportCreatesPendingRecord(t *testing.T) {
	store := newStore(t)
	fn := &fakeNotifier{}
	im := NewImporter(store, fn, 3, 5)

	sum, err := im.Import(context.Background(), "u1", 500, "User One", contactList(4), users.SourceImport)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Accepted)
	assert.True(t, sum.Submitted)
	assert.Equal(t, users.StatePending, sum.Record.State)
	assert.True(t, sum.Record.HasContacts)
	require.NotNil(t, sum.Record.ImportedAt)
	assert.Equal(t, []string{"u1"}, fn.received)

	for _, c := range sum.Record.Contacts {
		assert.Equal(t, users.SourceImport, c.Source)
	}
}

func TestImportValidation(t *testing.T) {
	store := newStore(t)
	im := NewImporter(store, nil, 3, 5)
	ctx := context.Background()

	_, err := im.Import(ctx, "  ", 1, "", contactList(3), users.SourceManual)
	assert.ErrorIs(t, err, ErrInvalidUserID)

	_, err = im.Import(ctx, "u1", 1, "", contactList(3), users.ContactSource("carrier-pigeon"))
	assert.ErrorIs(t, err, ErrInvalidSource)

	_, err = im.Import(ctx, "u1", 1, "", contactList(2), users.SourceManual)
	assert.ErrorIs(t, err, ErrTooFewContacts)

	_, ok := store.Get("u1")
	assert.False(t, ok, "refused import must not create a record")
}

func TestImportDedupAndNormalization(t *testing.T) {
	store := newStore(t)
	im := NewImporter(store, nil, 3, 5)

	list := []users.Contact{
		{Name: " Anna ", Phones: []string{" +7 900 1 "}},
		{Name: "anna", Phones: []string{"+7 900 1"}}, // duplicate after trim+fold
		{Name: "Boris", Phones: []string{"+7 900 2"}},
		{Name: "Clara", Emails: []string{"clara@example.com"}},
		{Name: "Ghost"},                          // no reachable channel
		{Name: "", Phones: []string{"+7 900 3"}}, // no name
	}
	sum, err := im.Import(context.Background(), "u2", 1, "", list, users.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Accepted)
	assert.Equal(t, 3, sum.Dropped)
	assert.Equal(t, "Anna", sum.Record.Contacts[0].Name)
	assert.Equal(t, "+7 900 1", sum.Record.Contacts[0].Phones[0])
}

func TestImportBelowMinimumCountsAfterDedup(t *testing.T) {
	store := newStore(t)
	im := NewImporter(store, nil, 3, 5)

	list := []users.Contact{
		{Name: "Anna", Phones: []string{"+1"}},
		{Name: "Anna", Phones: []string{"+1"}},
		{Name: "Anna", Phones: []string{"+1"}},
	}
	_, err := im.Import(context.Background(), "u3", 1, "", list, users.SourceManual)
	assert.ErrorIs(t, err, ErrTooFewContacts)
}

func TestImportRejectedGoesBackToPending(t *testing.T) {
	store := newStore(t)
	fn := &fakeNotifier{}
	im := NewImporter(store, fn, 3, 5)
	wf := NewWorkflow(store, fn, []int64{opID})
	ctx := context.Background()

	submit(t, im, "u4")
	_, err := wf.Decide(ctx, opID, "u4", DecisionReject)
	require.NoError(t, err)

	sum, err := im.Import(ctx, "u4", 500, "", contactList(3), users.SourceManual)
	require.NoError(t, err)
	assert.True(t, sum.Submitted)
	assert.Equal(t, users.StatePending, sum.Record.State)
	assert.Nil(t, sum.Record.DecidedAt, "appeal clears the old verdict")
	assert.Empty(t, sum.Record.DecidedBy)
	assert.Equal(t, []string{"u4", "u4"}, fn.received)
}

func TestImportApprovedStaysApproved(t *testing.T) {
	store := newStore(t)
	fn := &fakeNotifier{}
	im := NewImporter(store, fn, 3, 5)
	wf := NewWorkflow(store, fn, []int64{opID})
	ctx := context.Background()

	submit(t, im, "u5")
	_, err := wf.Decide(ctx, opID, "u5", DecisionApprove)
	require.NoError(t, err)

	sum, err := im.Import(ctx, "u5", 500, "", contactList(4), users.SourceManual)
	require.NoError(t, err)
	assert.False(t, sum.Submitted)
	assert.Equal(t, users.StateApproved, sum.Record.State)
	assert.NotNil(t, sum.Record.DecidedAt)
	assert.Len(t, sum.Record.Contacts, 4, "approved re-import still refreshes data")
	assert.Equal(t, []string{"u5"}, fn.received, "no second review request")
}

func TestImportNotifierFailureDoesNotFailImport(t *testing.T) {
	store := newStore(t)
	fn := &fakeNotifier{fail: true}
	im := NewImporter(store, fn, 3, 5)

	sum, err := im.Import(context.Background(), "u6", 1, "", contactList(3), users.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, users.StatePending, sum.Record.State)
}

func TestDecideApprove(t *testing.T) {
	store := newStore(t)
	fn := &fakeNotifier{}
	im := NewImporter(store, fn, 3, 5)
	wf := NewWorkflow(store, fn, []int64{opID})
	ctx := context.Background()

	submit(t, im, "u7")
	res, err := wf.Decide(ctx, opID, "u7", DecisionApprove)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, users.StateApproved, res.Record.State)
	assert.Equal(t, "9000", res.Record.DecidedBy)
	require.NotNil(t, res.Record.DecidedAt)
	assert.Equal(t, []string{"u7"}, fn.approved)
	assert.Empty(t, fn.rejected)
}

func TestDecideRepeatIsNoop(t *testing.T) {
	store := newStore(t)
	fn := &fakeNotifier{}
	im := NewImporter(store, fn, 3, 5)
	wf := NewWorkflow(store, fn, []int64{opID})
	ctx := context.Background()

	submit(t, im, "u8")
	first, err := wf.Decide(ctx, opID, "u8", DecisionApprove)
	require.NoError(t, err)

	second, err := wf.Decide(ctx, opID, "u8", DecisionApprove)
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Equal(t, first.Record.DecidedAt, second.Record.DecidedAt, "repeat must not touch the verdict")
	assert.Equal(t, []string{"u8"}, fn.approved, "repeat must not re-notify")
}

func TestDecideConflictingVerdictRefused(t *testing.T) {
	store := newStore(t)
	fn := &fakeNotifier{}
	im := NewImporter(store, fn, 3, 5)
	wf := NewWorkflow(store, fn, []int64{opID})
	ctx := context.Background()

	submit(t, im, "u9")
	_, err := wf.Decide(ctx, opID, "u9", DecisionReject)
	require.NoError(t, err)

	_, err = wf.Decide(ctx, opID, "u9", DecisionApprove)
	assert.ErrorIs(t, err, ErrNotPending)

	rec, _ := store.Get("u9")
	assert.Equal(t, users.StateRejected, rec.State)
}

func TestDecideAuthorization(t *testing.T) {
	store := newStore(t)
	fn := &fakeNotifier{}
	im := NewImporter(store, fn, 3, 5)
	wf := NewWorkflow(store, fn, []int64{opID})
	ctx := context.Background()

	submit(t, im, "u10")
	_, err := wf.Decide(ctx, strangerID, "u10", DecisionApprove)
	assert.ErrorIs(t, err, ErrForbidden)

	rec, _ := store.Get("u10")
	assert.Equal(t, users.StatePending, rec.State, "refused verdict must not change state")
	assert.Empty(t, fn.approved)
}

func TestDecideUnknownAndUnsubmitted(t *testing.T) {
	store := newStore(t)
	wf := NewWorkflow(store, nil, []int64{opID})
	ctx := context.Background()

	_, err := wf.Decide(ctx, opID, "ghost", DecisionApprove)
	assert.ErrorIs(t, err, ErrUserUnknown)

	store.Ensure("u11", 1, "")
	_, err = wf.Decide(ctx, opID, "u11", DecisionApprove)
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestPendingListing(t *testing.T) {
	store := newStore(t)
	fn := &fakeNotifier{}
	im := NewImporter(store, fn, 3, 5)
	wf := NewWorkflow(store, fn, []int64{opID})
	ctx := context.Background()

	submit(t, im, "a")
	submit(t, im, "b")
	_, err := wf.Decide(ctx, opID, "a", DecisionApprove)
	require.NoError(t, err)

	pending := wf.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].ID)
}
