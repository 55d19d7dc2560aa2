package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/log"
)

var errCorruptDeadLetters = errors.New("dead-letter list is corrupt")

// DeadLetter is an operation that exhausted its retries.
type DeadLetter struct {
	Operation QueuedOperation `json:"operation"`
	LastError string          `json:"lastError,omitempty"`
	DroppedAt time.Time       `json:"droppedAt"`
}

// DeadLetters returns the exhausted operations, oldest first.
func (q *Queue) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loadDead(ctx)
}

// ClearDeadLetters empties the dead-letter list.
func (q *Queue) ClearDeadLetters(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.store.RemoveItem(ctx, q.config.DeadLetterKey); err != nil {
		return fmt.Errorf("clear dead letters: %w", err)
	}
	return nil
}

// Requeue moves a dead letter back onto the queue with a fresh retry budget.
// The operation is enqueued before it leaves the dead-letter list, so a
// failure part way leaves it in at least one of them.
func (q *Queue) Requeue(ctx context.Context, id string) (string, error) {
	q.mu.Lock()
	dead, err := q.loadDead(ctx)
	q.mu.Unlock()
	if err != nil {
		return "", err
	}
	idx := deadIndex(dead, id)
	if idx < 0 {
		return "", fmt.Errorf("dead letter %s not found", id)
	}

	newID, err := q.Enqueue(ctx, dead[idx].Operation)
	if err != nil {
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	dead, err = q.loadDead(ctx)
	if err == nil {
		if idx = deadIndex(dead, id); idx >= 0 {
			dead = append(dead[:idx], dead[idx+1:]...)
			err = q.saveDead(ctx, dead)
		}
	}
	if err != nil {
		q.logger.WarnContext(ctx, "Requeued operation is still listed as dead",
			log.FieldQueueID, id, log.FieldError, err)
		return newID, fmt.Errorf("remove dead letter %s: %w", id, err)
	}
	return newID, nil
}

func deadIndex(dead []DeadLetter, id string) int {
	for i, d := range dead {
		if d.Operation.ID == id {
			return i
		}
	}
	return -1
}

// deadLetter appends op to the dead-letter list. Callers hold q.mu.
func (q *Queue) deadLetter(ctx context.Context, op QueuedOperation, cause error) error {
	dead, err := q.loadDead(ctx)
	switch {
	case errors.Is(err, errCorruptDeadLetters):
		q.logger.WarnContext(ctx, "Dead-letter list unreadable, starting a new one", log.FieldError, err)
		dead = nil
	case err != nil:
		return err
	}
	dead = append(dead, DeadLetter{
		Operation: op,
		LastError: errText(cause),
		DroppedAt: q.now().UTC(),
	})
	return q.saveDead(ctx, dead)
}

func (q *Queue) loadDead(ctx context.Context) ([]DeadLetter, error) {
	raw, ok, err := q.store.GetItem(ctx, q.config.DeadLetterKey)
	if err != nil {
		return nil, fmt.Errorf("read dead letters: %w", err)
	}
	if !ok || raw == "" {
		return []DeadLetter{}, nil
	}
	var dead []DeadLetter
	if err := json.Unmarshal([]byte(raw), &dead); err != nil {
		return []DeadLetter{}, fmt.Errorf("%w: %v", errCorruptDeadLetters, err)
	}
	return dead, nil
}

func (q *Queue) saveDead(ctx context.Context, dead []DeadLetter) error {
	data, err := json.Marshal(dead)
	if err != nil {
		return fmt.Errorf("encode dead letters: %w", err)
	}
	if err := q.store.SetItem(ctx, q.config.DeadLetterKey, string(data)); err != nil {
		return fmt.Errorf("persist dead letters: %w", err)
	}
	return nil
}
