package moderation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promolabs/promobot/internal/users"
)

func TestGateAllowsApprovedWithContacts(t *testing.T) {
	store := newStore(t)
	im := NewImporter(store, nil, 3, 5)
	wf := NewWorkflow(store, nil, []int64{opID})
	gate := NewGate(store)
	ctx := context.Background()

	submit(t, im, "g1")
	_, err := wf.Decide(ctx, opID, "g1", DecisionApprove)
	require.NoError(t, err)

	rec, err := gate.AuthorizePublish("g1")
	require.NoError(t, err)
	assert.Equal(t, users.StateApproved, rec.State)
}

func TestGateRefusals(t *testing.T) {
	store := newStore(t)
	im := NewImporter(store, nil, 3, 5)
	wf := NewWorkflow(store, nil, []int64{opID})
	gate := NewGate(store)
	ctx := context.Background()

	_, err := gate.AuthorizePublish("ghost")
	assert.ErrorIs(t, err, ErrUserUnknown)

	submit(t, im, "g2")
	_, err = gate.AuthorizePublish("g2")
	assert.ErrorIs(t, err, ErrNotApproved, "pending is not enough")

	_, err = wf.Decide(ctx, opID, "g2", DecisionReject)
	require.NoError(t, err)
	_, err = gate.AuthorizePublish("g2")
	assert.ErrorIs(t, err, ErrNotApproved)

	// Approved but contacts wiped afterwards.
	submit(t, im, "g3")
	_, err = wf.Decide(ctx, opID, "g3", DecisionApprove)
	require.NoError(t, err)
	_, err = store.Update("g3", func(r *users.Record) error {
		r.Contacts = nil
		r.HasContacts = false
		return nil
	})
	require.NoError(t, err)
	_, err = gate.AuthorizePublish("g3")
	assert.ErrorIs(t, err, ErrNoContacts)
}

func TestGatePublishDoesNotMutate(t *testing.T) {
	store := newStore(t)
	im := NewImporter(store, nil, 3, 5)
	wf := NewWorkflow(store, nil, []int64{opID})
	gate := NewGate(store)
	ctx := context.Background()

	submit(t, im, "g4")
	_, err := wf.Decide(ctx, opID, "g4", DecisionApprove)
	require.NoError(t, err)

	before, _ := store.Get("g4")
	_, err = gate.AuthorizePublish("g4")
	require.NoError(t, err)
	after, _ := store.Get("g4")

	assert.Equal(t, before, after, "the gate is a pure check")
	assert.Zero(t, after.PublishCount)
}
