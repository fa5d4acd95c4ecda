package moderation

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/promolabs/promobot/core/logger"
	"github.com/promolabs/promobot/internal/users"
)

// Decision is an operator verdict on a pending record.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// DecideResult reports what a verdict did. Changed is false when the record
// already carried the same terminal state, which callers treat as success.
type DecideResult struct {
	Record  users.Record
	Changed bool
}

// Workflow applies operator verdicts to records in the moderation queue.
type Workflow struct {
	store     *users.Store
	notifier  Notifier
	operators []int64
}

func NewWorkflow(store *users.Store, notifier Notifier, operators []int64) *Workflow {
	return &Workflow{store: store, notifier: notifier, operators: operators}
}

// IsOperator reports whether the Telegram account may issue verdicts.
func (w *Workflow) IsOperator(id int64) bool {
	for _, op := range w.operators {
		if op == id {
			return true
		}
	}
	return false
}

// Decide applies a verdict to the record. Non-operators are refused before
// any state is touched. A repeated identical verdict is a no-op success so
// double-tapped buttons stay harmless; a conflicting verdict on an already
// decided record is refused.
func (w *Workflow) Decide(ctx context.Context, operatorID int64, userID string, d Decision) (DecideResult, error) {
	if !w.IsOperator(operatorID) {
		logger.SVCModeration.Warn("verdict refused",
			slog.String("event", "moderation.forbidden"),
			slog.String("record_id", userID),
			slog.Int64("operator_id", operatorID),
		)
		return DecideResult{}, ErrForbidden
	}

	target := users.StateApproved
	if d == DecisionReject {
		target = users.StateRejected
	}

	changed := false
	rec, err := w.store.Update(userID, func(r *users.Record) error {
		if r.State == target {
			return nil
		}
		if r.State != users.StatePending {
			return ErrNotPending
		}
		now := time.Now().UTC()
		r.State = target
		r.DecidedAt = &now
		r.DecidedBy = strconv.FormatInt(operatorID, 10)
		changed = true
		return nil
	})
	if err != nil {
		if err == users.ErrNotFound {
			return DecideResult{}, ErrUserUnknown
		}
		return DecideResult{}, err
	}

	if !changed {
		logger.SVCModeration.Info("verdict repeated",
			slog.String("event", "moderation.noop"),
			slog.String("record_id", rec.ID),
			slog.String("decision", string(d)),
		)
		return DecideResult{Record: rec}, nil
	}

	logger.SVCModeration.Info("verdict applied",
		slog.String("event", "moderation.decided"),
		slog.String("record_id", rec.ID),
		slog.String("decision", string(d)),
		slog.Int64("operator_id", operatorID),
	)

	if w.notifier != nil {
		var nerr error
		if target == users.StateApproved {
			nerr = w.notifier.UserApproved(ctx, rec)
		} else {
			nerr = w.notifier.UserRejected(ctx, rec)
		}
		if nerr != nil {
			logger.SVCModeration.Warn("verdict notification failed",
				slog.String("event", "moderation.notify_failed"),
				slog.String("record_id", rec.ID),
				slog.Any("err", nerr),
			)
		}
	}

	return DecideResult{Record: rec, Changed: true}, nil
}

// Pending lists records waiting for a verdict, ordered by id.
func (w *Workflow) Pending() []users.Record {
	return w.store.List(func(r users.Record) bool { return r.State == users.StatePending })
}
