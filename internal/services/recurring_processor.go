package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

// DocumentStore is the slice of the server document store the processor uses.
type DocumentStore interface {
	Create(ctx context.Context, userID string, rec core.Record) (string, error)
	Update(ctx context.Context, userID string, rec core.Record) error
	List(ctx context.Context, userID string, entity core.Entity) ([]core.Record, error)
	Users(ctx context.Context, entity core.Entity) ([]string, error)
}

// RecurringProcessor turns due recurring payments into expenses.
type RecurringProcessor struct {
	store     DocumentStore
	publisher amqp.Publisher
	logger    *log.Logger
}

// NewRecurringProcessor wires the processor. publisher may be nil.
func NewRecurringProcessor(store DocumentStore, publisher amqp.Publisher, logger *log.Logger) *RecurringProcessor {
	if logger == nil {
		logger = log.Default(log.ComponentWorker)
	}
	return &RecurringProcessor{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// ExpenseID is the id of the expense generated by recurring r on day. Using
// a fixed id makes a repeated run on the same day overwrite, not duplicate.
func ExpenseID(r *core.Recurring, day core.Date) string {
	return fmt.Sprintf("%s-%s", r.ID, day)
}

// ProcessAll runs ProcessDue for every user owning a recurring payment.
func (p *RecurringProcessor) ProcessAll(ctx context.Context, now time.Time) (int, error) {
	users, err := p.store.Users(ctx, core.EntityRecurring)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	total := 0
	var errs []error
	for _, u := range users {
		n, err := p.ProcessDue(ctx, u, now)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", u, err))
		}
	}
	return total, errors.Join(errs...)
}

// ProcessDue creates an expense for each of userID's due recurring payments
// and records the execution date. It returns the number of expenses created.
// A failure on one payment is logged and does not stop the others.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, userID string, now time.Time) (int, error) {
	recs, err := p.store.List(ctx, userID, core.EntityRecurring)
	if err != nil {
		return 0, fmt.Errorf("failed to get recurring payments: %w", err)
	}

	today := core.DateOf(now)
	processed := 0
	for _, rec := range recs {
		r, ok := rec.(*core.Recurring)
		if !ok {
			continue
		}
		due, err := IsRecurringDue(r, now)
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to check if recurring payment is due",
				log.FieldUserID, userID,
				log.FieldRecordID, r.ID,
				log.FieldError, err)
			continue
		}
		if !due {
			continue
		}

		expense := &core.Expense{
			ID:          ExpenseID(r, today),
			Date:        today,
			Description: r.Description,
			Amount:      r.Amount,
			CategoryID:  r.CategoryID,
		}
		if _, err := p.store.Create(ctx, userID, expense); err != nil {
			p.logger.ErrorContext(ctx, "Failed to create expense from recurring payment",
				log.FieldUserID, userID,
				log.FieldRecordID, r.ID,
				log.FieldError, err)
			continue
		}
		p.publish(ctx, userID, expense.ID)

		updated := *r
		updated.LastExecution = today
		if err := p.store.Update(ctx, userID, &updated); err != nil {
			// The expense exists; its fixed id keeps the next run from duplicating it.
			p.logger.ErrorContext(ctx, "Failed to update last execution date",
				log.FieldUserID, userID,
				log.FieldRecordID, r.ID,
				log.FieldError, err)
		}

		processed++
		p.logger.InfoContext(ctx, "Created expense from recurring payment",
			log.FieldUserID, userID,
			log.FieldRecordID, r.ID,
			log.FieldAmount, r.Amount.Cents,
			"frequency", r.Frequency)
	}

	p.logger.InfoContext(ctx, "Recurring payment processing complete",
		log.FieldUserID, userID,
		"processed", processed,
		"total_checked", len(recs))
	return processed, nil
}

func (p *RecurringProcessor) publish(ctx context.Context, userID, id string) {
	if p.publisher == nil {
		return
	}
	msg := amqp.NewRecordChangedMessage(userID, core.EntityExpense, id, amqp.OpCreated)
	if err := p.publisher.PublishRecordChanged(ctx, msg); err != nil {
		p.logger.WarnContext(ctx, "Failed to publish record changed event",
			log.FieldRecordID, id,
			log.FieldError, err)
	}
}
