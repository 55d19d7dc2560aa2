// Package syncer drains the offline queue against the remote store when the
// network comes back.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fintrack/internal/localstore"
	"fintrack/internal/log"
	"fintrack/internal/metrics"
	"fintrack/internal/notify"
	"fintrack/internal/queue"
	"fintrack/internal/remote"

	"github.com/looplab/fsm"
)

const (
	StateIdle    = "idle"
	StateSyncing = "syncing"

	eventStart  = "start"
	eventFinish = "finish"

	// AutoSyncKey holds the persisted auto-sync preference.
	AutoSyncKey = "fintrack.autoSync"

	TriggerAuto   = "auto"
	TriggerManual = "manual"
)

// ErrOffline is returned when a sync is requested while the monitor reports
// no connectivity.
var ErrOffline = errors.New("cannot sync while offline")

// SyncProgress is broadcast after every replayed operation.
type SyncProgress struct {
	Total      int  `json:"total"`
	Completed  int  `json:"completed"`
	Failed     int  `json:"failed"`
	InProgress bool `json:"inProgress"`
}

// Connectivity is the part of the network monitor the engine needs.
type Connectivity interface {
	IsOnline() bool
	Subscribe(fn func(online bool)) func()
}

// Engine replays queued operations one at a time, in FIFO order.
type Engine struct {
	queue   *queue.Queue
	monitor Connectivity
	store   remote.Store
	prefs   localstore.Storage
	userID  string
	logger  *log.Logger

	machine  *fsm.FSM
	progress notify.Registry[SyncProgress]

	mu          sync.Mutex
	unsubscribe []func()
	background  sync.WaitGroup
	baseCtx     context.Context
}

// New builds an engine for userID. Call Init before relying on auto-sync.
func New(q *queue.Queue, monitor Connectivity, store remote.Store, prefs localstore.Storage, userID string, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default(log.ComponentSync)
	}
	e := &Engine{
		queue:   q,
		monitor: monitor,
		store:   store,
		prefs:   prefs,
		userID:  userID,
		logger:  logger.WithComponent(log.ComponentSync),
		baseCtx: context.Background(),
	}
	e.machine = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventStart, Src: []string{StateIdle}, Dst: StateSyncing},
			{Name: eventFinish, Src: []string{StateSyncing}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, ev *fsm.Event) {
				e.logger.Debug("Sync state changed", "from", ev.Src, "to", ev.Dst)
			},
		},
	)
	e.progress.OnPanic = func(rec any) {
		e.logger.Error("Progress listener panicked", log.FieldError, notify.PanicError(rec))
	}
	return e
}

// Init subscribes to connectivity transitions and queue size changes.
// ctx is used for syncs started automatically.
func (e *Engine) Init(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.unsubscribe) > 0 {
		return
	}
	e.baseCtx = context.WithoutCancel(ctx)
	e.unsubscribe = append(e.unsubscribe,
		e.monitor.Subscribe(e.onConnectivity),
		e.queue.Subscribe(metrics.SetQueueDepth),
	)
	if n, err := e.queue.Count(ctx); err == nil {
		metrics.SetQueueDepth(n)
	}
	metrics.SetOnline(e.monitor.IsOnline())
}

// Dispose unsubscribes and waits for any automatic sync still running.
func (e *Engine) Dispose() {
	e.mu.Lock()
	unsubs := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	e.background.Wait()
}

// Subscribe registers fn for progress broadcasts.
func (e *Engine) Subscribe(fn func(SyncProgress)) func() {
	return e.progress.Subscribe(fn)
}

// State returns "idle" or "syncing".
func (e *Engine) State() string { return e.machine.Current() }

// Syncing reports whether a pass is running.
func (e *Engine) Syncing() bool { return e.machine.Is(StateSyncing) }

// AutoSyncEnabled reads the persisted preference, defaulting to true.
func (e *Engine) AutoSyncEnabled(ctx context.Context) (bool, error) {
	return localstore.GetBool(ctx, e.prefs, AutoSyncKey, true)
}

// SetAutoSync persists the auto-sync preference.
func (e *Engine) SetAutoSync(ctx context.Context, enabled bool) error {
	if err := localstore.SetBool(ctx, e.prefs, AutoSyncKey, enabled); err != nil {
		return fmt.Errorf("save auto-sync preference: %w", err)
	}
	return nil
}

// SyncAll drains the queue once. A call made while a pass is running
// returns a zero result and no error. Offline calls return ErrOffline.
func (e *Engine) SyncAll(ctx context.Context) (queue.Result, error) {
	return e.run(ctx, TriggerAuto)
}

// ManualSync is SyncAll started by the user.
func (e *Engine) ManualSync(ctx context.Context) (queue.Result, error) {
	return e.run(ctx, TriggerManual)
}

func (e *Engine) run(ctx context.Context, trigger string) (res queue.Result, err error) {
	if e.Syncing() {
		e.logger.DebugContext(ctx, "Sync already running, ignoring request", "trigger", trigger)
		return queue.Result{}, nil
	}
	if !e.monitor.IsOnline() {
		return queue.Result{}, ErrOffline
	}
	if ferr := e.machine.Event(ctx, eventStart); ferr != nil {
		// Lost the race with another caller.
		return queue.Result{}, nil
	}

	started := time.Now()
	progress := SyncProgress{InProgress: true}
	defer func() {
		if ferr := e.machine.Event(context.WithoutCancel(ctx), eventFinish); ferr != nil {
			e.logger.ErrorContext(ctx, "Failed to leave syncing state", log.FieldError, ferr)
		}
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.ObserveSyncRun(trigger, outcome, time.Since(started))
		progress.InProgress = false
		e.progress.Notify(progress)
	}()

	ops, lerr := e.queue.All(ctx)
	if lerr != nil && !errors.Is(lerr, queue.ErrCorruptQueue) {
		return res, lerr
	}
	progress.Total = len(ops)

	e.logger.InfoContext(ctx, "Sync started",
		"trigger", trigger,
		log.FieldQueueSize, len(ops))

	var storeErrs []error
	for _, op := range ops {
		if ctx.Err() != nil {
			break
		}
		replayErr := replayOperation(ctx, e.store, e.userID, op)
		if replayErr == nil {
			if derr := e.queue.Dequeue(ctx, op.ID); derr != nil {
				storeErrs = append(storeErrs, derr)
			}
			res.Success++
			progress.Completed++
			metrics.IncSyncOperation(string(op.Entity), "synced")
			e.progress.Notify(progress)
			continue
		}

		if ctx.Err() != nil {
			// Interrupted, not rejected: leave the retry count alone.
			break
		}

		e.logger.WarnContext(ctx, "Replay failed",
			log.FieldQueueID, op.ID,
			log.FieldOperation, op.Type,
			log.FieldEntity, op.Entity,
			log.FieldRetryCount, op.RetryCount+1,
			log.FieldError, replayErr)

		retry, rerr := e.queue.RecordFailure(ctx, op.ID, replayErr)
		switch {
		case rerr != nil:
			// The outcome is unknown, so it is neither retried nor dropped.
			storeErrs = append(storeErrs, rerr)
		case !retry:
			res.Failed++
			progress.Failed++
			metrics.IncSyncOperation(string(op.Entity), "dropped")
		default:
			metrics.IncSyncOperation(string(op.Entity), "retried")
		}
		e.progress.Notify(progress)
	}

	if cerr := ctx.Err(); cerr != nil {
		storeErrs = append(storeErrs, cerr)
	}

	e.logger.InfoContext(ctx, "Sync finished",
		"trigger", trigger,
		"success", res.Success,
		"failed", res.Failed,
		"duration", time.Since(started))

	return res, errors.Join(storeErrs...)
}

func (e *Engine) onConnectivity(online bool) {
	metrics.SetOnline(online)
	if !online {
		return
	}

	e.mu.Lock()
	ctx := e.baseCtx
	e.mu.Unlock()

	enabled, err := e.AutoSyncEnabled(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "Could not read auto-sync preference", log.FieldError, err)
		return
	}
	if !enabled {
		return
	}
	n, err := e.queue.Count(ctx)
	if err != nil || n == 0 {
		return
	}

	e.background.Add(1)
	go func() {
		defer e.background.Done()
		if _, err := e.SyncAll(ctx); err != nil && !errors.Is(err, ErrOffline) {
			e.logger.ErrorContext(ctx, "Automatic sync failed", log.FieldError, err)
		}
	}()
}
