// Package worker applies record-changed events to the expense sheet mirror.
package worker

import (
	"context"
	"errors"
	"fmt"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

// DocumentReader is the read side of the document store.
type DocumentReader interface {
	Get(ctx context.Context, userID string, entity core.Entity, id string) (core.Record, error)
	List(ctx context.Context, userID string, entity core.Entity) ([]core.Record, error)
}

// MirrorWorker keeps the sheet mirror in step with the expenses in the
// document store.
type MirrorWorker struct {
	docs   DocumentReader
	mirror sheets.Mirror
	logger *log.Logger
}

func NewMirrorWorker(docs DocumentReader, mirror sheets.Mirror, logger *log.Logger) *MirrorWorker {
	if logger == nil {
		logger = log.Default(log.ComponentWorker)
	}
	return &MirrorWorker{
		docs:   docs,
		mirror: mirror,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleRecordChanged mirrors one expense change. Events for other entities
// are accepted and ignored. The document is re-read rather than trusted from
// the message, so a create that was deleted meanwhile removes the row.
func (w *MirrorWorker) HandleRecordChanged(ctx context.Context, msg *amqp.RecordChangedMessage) error {
	if msg.Entity != core.EntityExpense {
		return nil
	}

	if msg.Op == amqp.OpDeleted {
		if err := w.mirror.DeleteExpense(ctx, msg.UserID, msg.ID); err != nil {
			return fmt.Errorf("delete mirrored expense: %w", err)
		}
		return nil
	}

	rec, err := w.docs.Get(ctx, msg.UserID, core.EntityExpense, msg.ID)
	if errors.Is(err, storage.ErrNotFound) {
		w.logger.InfoContext(ctx, "Expense gone before mirroring, removing row",
			log.FieldUserID, msg.UserID,
			log.FieldRecordID, msg.ID)
		return w.mirror.DeleteExpense(ctx, msg.UserID, msg.ID)
	}
	if err != nil {
		return fmt.Errorf("get expense from storage: %w", err)
	}
	expense, ok := rec.(*core.Expense)
	if !ok {
		return fmt.Errorf("document %s is %T, not an expense", msg.ID, rec)
	}

	ref, err := w.mirror.UpsertExpense(ctx, msg.UserID, expense)
	if err != nil {
		return fmt.Errorf("mirror expense: %w", err)
	}
	w.logger.InfoContext(ctx, "Expense mirrored",
		log.FieldUserID, msg.UserID,
		log.FieldRecordID, msg.ID,
		log.FieldSheetsRef, ref)
	return nil
}

// ResyncUser mirrors every live expense of userID. It backs up the event
// path when messages were lost. Failures are collected; the rest still run.
func (w *MirrorWorker) ResyncUser(ctx context.Context, userID string) (int, error) {
	recs, err := w.docs.List(ctx, userID, core.EntityExpense)
	if err != nil {
		return 0, fmt.Errorf("list expenses: %w", err)
	}

	var errs []error
	synced := 0
	for _, rec := range recs {
		expense, ok := rec.(*core.Expense)
		if !ok {
			continue
		}
		if _, err := w.mirror.UpsertExpense(ctx, userID, expense); err != nil {
			errs = append(errs, fmt.Errorf("expense %s: %w", expense.ID, err))
			continue
		}
		synced++
	}
	w.logger.InfoContext(ctx, "Resync complete",
		log.FieldUserID, userID,
		"synced", synced,
		"failed", len(errs))
	return synced, errors.Join(errs...)
}
