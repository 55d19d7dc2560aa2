// Package queue persists pending mutations so they can be replayed once the
// remote store is reachable again.
//
// The whole queue is stored as one JSON array under a single local-storage
// key and is read and rewritten in full on every change.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/localstore"
	"fintrack/internal/log"
	"fintrack/internal/notify"

	"github.com/google/uuid"
)

const (
	// StorageKey holds the serialized queue array.
	StorageKey = "fintrack.offlineQueue"
	// DeadLetterKey holds operations dropped after exhausting their retries.
	DeadLetterKey = "fintrack.deadLetter"
	// MaxRetry is the number of failed replays after which an operation is dropped.
	MaxRetry = 3
)

// ErrCorruptQueue is returned by All when the stored value cannot be decoded.
// The queue is then treated as empty.
var ErrCorruptQueue = errors.New("offline queue is corrupt")

// Config holds configuration for the queue
type Config struct {
	// Key is the local storage key (default: StorageKey)
	Key string
	// DeadLetterKey is where exhausted operations go (default: DeadLetterKey)
	DeadLetterKey string
	// MaxRetry is the retry limit (default: MaxRetry)
	MaxRetry int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Key:           StorageKey,
		DeadLetterKey: DeadLetterKey,
		MaxRetry:      MaxRetry,
	}
}

// Result counts the outcome of one pass over the queue.
type Result struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Executor replays one operation. A false result or a non-nil error counts
// as a failed attempt.
type Executor func(ctx context.Context, op QueuedOperation) (bool, error)

// Queue is the durable FIFO of pending operations.
type Queue struct {
	store  localstore.Storage
	config Config
	logger *log.Logger
	now    func() time.Time
	newID  func() string

	mu        sync.Mutex
	observers notify.Registry[int]
}

// New creates a queue over store. Zero config fields take their defaults.
func New(store localstore.Storage, config Config, logger *log.Logger) *Queue {
	def := DefaultConfig()
	if config.Key == "" {
		config.Key = def.Key
	}
	if config.DeadLetterKey == "" {
		config.DeadLetterKey = def.DeadLetterKey
	}
	if config.MaxRetry <= 0 {
		config.MaxRetry = def.MaxRetry
	}
	if logger == nil {
		logger = log.Default(log.ComponentQueue)
	}

	q := &Queue{
		store:  store,
		config: config,
		logger: logger.WithComponent(log.ComponentQueue),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	q.observers.OnPanic = func(rec any) {
		q.logger.Error("Queue observer panicked", log.FieldError, notify.PanicError(rec))
	}
	return q
}

// MaxRetry returns the configured retry limit.
func (q *Queue) MaxRetry() int { return q.config.MaxRetry }

// Subscribe registers fn to receive the queue length after every persisted
// change. The returned function unsubscribes.
func (q *Queue) Subscribe(fn func(count int)) func() {
	return q.observers.Subscribe(fn)
}

// Enqueue appends op with a fresh id, the current time and a zero retry
// count. Repeated failures of one logical mutation produce distinct entries.
func (q *Queue) Enqueue(ctx context.Context, op QueuedOperation) (string, error) {
	if err := op.Validate(); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}

	q.mu.Lock()
	ops, err := q.loadForWrite(ctx)
	if err != nil {
		q.mu.Unlock()
		return "", err
	}
	op.ID = q.newID()
	op.Timestamp = q.now().UTC()
	op.RetryCount = 0
	ops = append(ops, op)
	err = q.save(ctx, ops)
	q.mu.Unlock()
	if err != nil {
		return "", err
	}

	q.logger.InfoContext(ctx, "Operation queued",
		log.FieldQueueID, op.ID,
		log.FieldOperation, op.Type,
		log.FieldEntity, op.Entity,
		log.FieldQueueSize, len(ops))
	q.observers.Notify(len(ops))
	return op.ID, nil
}

// All returns the current queue. A missing key yields an empty slice; an
// undecodable value yields an empty slice and ErrCorruptQueue.
func (q *Queue) All(ctx context.Context) ([]QueuedOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Dequeue removes the entry with id. Missing ids are a no-op.
func (q *Queue) Dequeue(ctx context.Context, id string) error {
	q.mu.Lock()
	ops, err := q.loadForWrite(ctx)
	if err != nil {
		q.mu.Unlock()
		return err
	}
	idx := indexOf(ops, id)
	if idx < 0 {
		q.mu.Unlock()
		return nil
	}
	ops = append(ops[:idx], ops[idx+1:]...)
	err = q.save(ctx, ops)
	q.mu.Unlock()
	if err != nil {
		return err
	}

	q.observers.Notify(len(ops))
	return nil
}

// IncrementRetry records a failed attempt for id. It reports whether the
// operation may still be retried; once the retry limit is reached the entry
// is removed, dead-lettered and false is returned. Missing ids return false.
func (q *Queue) IncrementRetry(ctx context.Context, id string) (bool, error) {
	return q.RecordFailure(ctx, id, nil)
}

// RecordFailure is IncrementRetry with the cause kept on the dead letter.
func (q *Queue) RecordFailure(ctx context.Context, id string, cause error) (bool, error) {
	q.mu.Lock()
	ops, err := q.loadForWrite(ctx)
	if err != nil {
		q.mu.Unlock()
		return false, err
	}
	idx := indexOf(ops, id)
	if idx < 0 {
		q.mu.Unlock()
		return false, nil
	}

	count, retry := nextRetry(ops[idx].RetryCount, q.config.MaxRetry)
	ops[idx].RetryCount = count
	dropped := ops[idx]
	if !retry {
		// Dead-letter first so a failed write never loses the operation.
		if err := q.deadLetter(ctx, dropped, cause); err != nil {
			q.mu.Unlock()
			return false, err
		}
		ops = append(ops[:idx], ops[idx+1:]...)
	}
	err = q.save(ctx, ops)
	q.mu.Unlock()

	if !retry {
		q.logger.WarnContext(ctx, "Operation dropped after max retries",
			log.FieldQueueID, dropped.ID,
			log.FieldOperation, dropped.Type,
			log.FieldEntity, dropped.Entity,
			log.FieldRetryCount, count,
			log.FieldError, errText(cause))
	}
	if err != nil {
		return retry, err
	}
	q.observers.Notify(len(ops))
	return retry, nil
}

// nextRetry returns the incremented retry count and whether the operation
// may be retried again.
func nextRetry(retryCount, max int) (int, bool) {
	next := retryCount + 1
	return next, next < max
}

// Pending reports whether an operation for the record entity/id is waiting
// to be replayed. A corrupt queue has nothing pending.
func (q *Queue) Pending(ctx context.Context, entity core.Entity, id string) (bool, error) {
	ops, err := q.All(ctx)
	if err != nil && !errors.Is(err, ErrCorruptQueue) {
		return false, err
	}
	for _, op := range ops {
		if op.Entity == entity && op.TargetID() == id {
			return true, nil
		}
	}
	return false, nil
}

// Count returns the current queue length.
func (q *Queue) Count(ctx context.Context) (int, error) {
	ops, err := q.All(ctx)
	if errors.Is(err, ErrCorruptQueue) {
		return 0, nil
	}
	return len(ops), err
}

// Clear empties the queue. Cleared operations are not recoverable.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	err := q.store.RemoveItem(ctx, q.config.Key)
	q.mu.Unlock()
	if err != nil {
		q.logger.ErrorContext(ctx, "Failed to clear queue", log.FieldError, err)
		return fmt.Errorf("clear queue: %w", err)
	}
	q.logger.InfoContext(ctx, "Queue cleared")
	q.observers.Notify(0)
	return nil
}

// ProcessQueue makes one pass over a snapshot of the queue in insertion
// order. Successful operations are dequeued; failed ones have their retry
// count incremented and count as failed only when that drops them.
// Storage errors abort the pass and are returned with the partial result.
func (q *Queue) ProcessQueue(ctx context.Context, exec Executor) (Result, error) {
	var res Result
	ops, err := q.All(ctx)
	if err != nil && !errors.Is(err, ErrCorruptQueue) {
		return res, err
	}

	for _, op := range ops {
		ok, execErr := exec(ctx, op)
		if ok && execErr == nil {
			if err := q.Dequeue(ctx, op.ID); err != nil {
				return res, err
			}
			res.Success++
			continue
		}
		if execErr == nil {
			execErr = errors.New("executor reported failure")
		}
		retry, err := q.RecordFailure(ctx, op.ID, execErr)
		if err != nil {
			return res, err
		}
		if !retry {
			res.Failed++
		}
	}
	return res, nil
}

func (q *Queue) load(ctx context.Context) ([]QueuedOperation, error) {
	raw, ok, err := q.store.GetItem(ctx, q.config.Key)
	if err != nil {
		return []QueuedOperation{}, fmt.Errorf("read queue: %w", err)
	}
	if !ok || raw == "" {
		return []QueuedOperation{}, nil
	}

	var ops []QueuedOperation
	if err := json.Unmarshal([]byte(raw), &ops); err != nil {
		q.logger.ErrorContext(ctx, "Stored queue is corrupt, treating as empty", log.FieldError, err)
		return []QueuedOperation{}, fmt.Errorf("%w: %v", ErrCorruptQueue, err)
	}
	if ops == nil {
		ops = []QueuedOperation{}
	}
	return ops, nil
}

// loadForWrite is load for writers. A corrupt value is treated as empty so
// the queue can recover; a read failure is returned so nothing is written
// over operations that could not be seen.
func (q *Queue) loadForWrite(ctx context.Context) ([]QueuedOperation, error) {
	ops, err := q.load(ctx)
	if err != nil && !errors.Is(err, ErrCorruptQueue) {
		q.logger.ErrorContext(ctx, "Failed to read queue", log.FieldError, err)
		return nil, err
	}
	return ops, nil
}

func (q *Queue) save(ctx context.Context, ops []QueuedOperation) error {
	data, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	if err := q.store.SetItem(ctx, q.config.Key, string(data)); err != nil {
		q.logger.ErrorContext(ctx, "Failed to persist queue", log.FieldError, err)
		return fmt.Errorf("persist queue: %w", err)
	}
	return nil
}

func indexOf(ops []QueuedOperation, id string) int {
	for i, op := range ops {
		if op.ID == id {
			return i
		}
	}
	return -1
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
