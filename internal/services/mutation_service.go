package services

import (
	"context"
	"errors"
	"fmt"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/queue"
	"fintrack/internal/remote"

	"github.com/google/uuid"
)

// ErrDefinitive wraps remote errors that retrying cannot fix, such as a
// permission or validation rejection. The local change has been rolled back.
var ErrDefinitive = errors.New("rejected by server")

// Outcome reports where a mutation ended up.
type Outcome struct {
	ID      string `json:"id"`
	Synced  bool   `json:"synced"`
	Queued  bool   `json:"queued"`
	QueueID string `json:"queueId,omitempty"`
}

// Message is the short user-facing summary of an outcome.
func (o Outcome) Message() string {
	switch {
	case o.Synced:
		return "saved"
	case o.Queued:
		return "saved offline, will sync when back online"
	default:
		return "not saved"
	}
}

// Connectivity is the part of the network monitor the service consults.
type Connectivity interface {
	IsOnline() bool
}

// MutationService applies mutations optimistically to the local cache, then
// to the remote store. Transient remote failures are queued for the sync
// engine; definitive ones are rolled back.
type MutationService struct {
	cache   *LocalCache
	remote  remote.Store
	queue   *queue.Queue
	network Connectivity
	userID  string
	logger  *log.Logger
	newID   func() string
}

// NewMutationService wires the service. network may be nil, in which case the
// remote call is always attempted.
func NewMutationService(cache *LocalCache, store remote.Store, q *queue.Queue, network Connectivity, userID string, logger *log.Logger) *MutationService {
	if logger == nil {
		logger = log.Default(log.ComponentMutation)
	}
	return &MutationService{
		cache:   cache,
		remote:  store,
		queue:   q,
		network: network,
		userID:  userID,
		logger:  logger.WithComponent(log.ComponentMutation),
		newID:   uuid.NewString,
	}
}

// Create stores a new record. An empty id is replaced with a generated one
// so a queued create replays under the same id.
func (s *MutationService) Create(ctx context.Context, rec core.Identifiable) (Outcome, error) {
	if rec.RecordID() == "" {
		rec.SetRecordID(s.newID())
	}
	if err := rec.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("create %s: %w", rec.EntityKind(), err)
	}

	prev, err := s.cache.Put(ctx, rec)
	if err != nil {
		return Outcome{}, err
	}
	rollback := s.restore(rec.EntityKind(), rec.RecordID(), prev)

	remoteErr := s.skipReason(ctx, rec.EntityKind(), rec.RecordID())
	if remoteErr == nil {
		_, remoteErr = s.remote.Create(ctx, s.userID, rec)
	}
	return s.settle(ctx, queue.NewCreate(rec), remoteErr, rollback)
}

// Update replaces an existing record.
func (s *MutationService) Update(ctx context.Context, rec core.Record) (Outcome, error) {
	if rec.RecordID() == "" {
		return Outcome{}, fmt.Errorf("update %s: %w", rec.EntityKind(), core.ErrMissingID)
	}
	if err := rec.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("update %s: %w", rec.EntityKind(), err)
	}

	prev, err := s.cache.Put(ctx, rec)
	if err != nil {
		return Outcome{}, err
	}
	rollback := s.restore(rec.EntityKind(), rec.RecordID(), prev)

	remoteErr := s.skipReason(ctx, rec.EntityKind(), rec.RecordID())
	if remoteErr == nil {
		remoteErr = s.remote.Update(ctx, s.userID, rec)
	}
	return s.settle(ctx, queue.NewUpdate(rec), remoteErr, rollback)
}

// Delete removes a record.
func (s *MutationService) Delete(ctx context.Context, entity core.Entity, id string) (Outcome, error) {
	if !entity.Valid() {
		return Outcome{}, fmt.Errorf("delete: unknown entity %q", entity)
	}
	if id == "" {
		return Outcome{}, fmt.Errorf("delete %s: %w", entity, core.ErrMissingID)
	}

	prev, err := s.cache.Remove(ctx, entity, id)
	if err != nil {
		return Outcome{}, err
	}
	rollback := func(ctx context.Context) error {
		if prev == nil {
			return nil
		}
		_, err := s.cache.Put(ctx, prev)
		return err
	}

	remoteErr := s.skipReason(ctx, entity, id)
	if remoteErr == nil {
		remoteErr = s.remote.Delete(ctx, s.userID, entity, id)
	}
	return s.settle(ctx, queue.NewDelete(entity, id), remoteErr, rollback)
}

// The remote call is skipped, and the mutation queued, when the monitor
// reports offline or when an earlier change to the same record is still
// queued. Both stand in for transient remote errors.
var (
	errOfflineSkip  = errors.New("offline")
	errQueuedBehind = errors.New("an earlier change to this record is waiting to sync")
)

func (s *MutationService) online() bool {
	return s.network == nil || s.network.IsOnline()
}

// skipReason returns why the remote call must not be made now, or nil.
// Queued operations replay in order, so a record with one pending has every
// later change queued behind it.
func (s *MutationService) skipReason(ctx context.Context, entity core.Entity, id string) error {
	if !s.online() {
		return errOfflineSkip
	}
	pending, err := s.queue.Pending(ctx, entity, id)
	if err != nil {
		s.logger.WarnContext(ctx, "Could not check queue, mutation will be queued",
			log.NewFields().WithRecord(s.userID, string(entity), id).WithError(err).ToSlice()...)
		return errQueuedBehind
	}
	if pending {
		return errQueuedBehind
	}
	return nil
}

func (s *MutationService) restore(entity core.Entity, id string, prev core.Record) func(context.Context) error {
	return func(ctx context.Context) error {
		if prev != nil {
			_, err := s.cache.Put(ctx, prev)
			return err
		}
		_, err := s.cache.Remove(ctx, entity, id)
		return err
	}
}

func (s *MutationService) settle(ctx context.Context, op queue.QueuedOperation, remoteErr error, rollback func(context.Context) error) (Outcome, error) {
	id := op.TargetID()
	fields := log.NewFields().
		WithRecord(s.userID, string(op.Entity), id).
		WithOperation(string(op.Type))

	if remoteErr == nil {
		s.logger.InfoContext(ctx, "Mutation synced", fields.ToSlice()...)
		return Outcome{ID: id, Synced: true}, nil
	}

	if remote.IsDefinitive(remoteErr) {
		if rerr := rollback(ctx); rerr != nil {
			s.logger.ErrorContext(ctx, "Rollback failed", fields.WithError(rerr).ToSlice()...)
			return Outcome{ID: id}, errors.Join(fmt.Errorf("%w: %w", ErrDefinitive, remoteErr), rerr)
		}
		s.logger.WarnContext(ctx, "Mutation rejected, local change rolled back", fields.WithError(remoteErr).ToSlice()...)
		return Outcome{ID: id}, fmt.Errorf("%w: %w", ErrDefinitive, remoteErr)
	}

	queueID, err := s.queue.Enqueue(ctx, op)
	if err != nil {
		return Outcome{ID: id}, fmt.Errorf("queue %s %s: %w", op.Type, op.Entity, err)
	}
	s.logger.InfoContext(ctx, "Mutation saved offline",
		fields.WithError(remoteErr).WithQueued(queueID, 0).ToSlice()...)
	return Outcome{ID: id, Queued: true, QueueID: queueID}, nil
}
