package syncer

import (
	"context"
	"errors"
	"fmt"

	"fintrack/internal/core"
	"fintrack/internal/queue"
	"fintrack/internal/remote"
)

// ErrPayloadMismatch means a queued payload is not the record type its
// entity tag names.
var ErrPayloadMismatch = errors.New("payload does not match entity")

type replayFunc func(ctx context.Context, store remote.Store, userID string, op queue.QueuedOperation) error

// dispatch has one entry per entity.
var dispatch = map[core.Entity]replayFunc{
	core.EntityExpense:   replay[*core.Expense],
	core.EntityCategory:  replay[*core.Category],
	core.EntityBudget:    replay[*core.Budget],
	core.EntityRecurring: replay[*core.Recurring],
	core.EntityIncome:    replay[*core.Income],
	core.EntityCard:      replay[*core.Card],
	core.EntityBank:      replay[*core.Bank],
	core.EntityEWallet:   replay[*core.EWallet],
	core.EntityRepayment: replay[*core.Repayment],
}

func replay[T core.Record](ctx context.Context, store remote.Store, userID string, op queue.QueuedOperation) error {
	switch op.Type {
	case queue.OpCreate, queue.OpUpdate:
		rec, ok := op.Record()
		if !ok {
			return fmt.Errorf("%s %s: %w", op.Type, op.Entity, ErrPayloadMismatch)
		}
		typed, ok := rec.(T)
		if !ok {
			return fmt.Errorf("%s %s carries %T: %w", op.Type, op.Entity, rec, ErrPayloadMismatch)
		}
		if op.Type == queue.OpCreate {
			_, err := store.Create(ctx, userID, typed)
			return err
		}
		return store.Update(ctx, userID, typed)
	case queue.OpDelete:
		id := op.TargetID()
		if id == "" {
			return fmt.Errorf("delete %s: %w", op.Entity, core.ErrMissingID)
		}
		return store.Delete(ctx, userID, op.Entity, id)
	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
}

func replayOperation(ctx context.Context, store remote.Store, userID string, op queue.QueuedOperation) error {
	fn, ok := dispatch[op.Entity]
	if !ok {
		return fmt.Errorf("no handler for entity %q", op.Entity)
	}
	return fn(ctx, store, userID, op)
}
