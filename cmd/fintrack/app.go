package main

import (
	"context"
	"errors"
	"fmt"

	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/network"
	"fintrack/internal/queue"
	"fintrack/internal/remote"
	"fintrack/internal/services"
	"fintrack/internal/storage"
	"fintrack/internal/syncer"

	"github.com/spf13/cobra"
)

// app is everything a client command needs, wired over one local database.
type app struct {
	cfg    config.ClientConfig
	logger *log.Logger

	store     *storage.SQLiteRepository
	monitor   *network.Monitor
	remote    *remote.HTTPClient
	queue     *queue.Queue
	cache     *services.LocalCache
	mutations *services.MutationService
	engine    *syncer.Engine
}

// loadClientConfig reads and validates the client configuration. A missing
// required variable fails here, before anything else is touched.
func loadClientConfig() (config.ClientConfig, error) {
	cfg, err := config.LoadClient(flagConfig)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newApp(initialOnline bool) (*app, error) {
	cfg, err := loadClientConfig()
	if err != nil {
		return nil, err
	}
	logger := cli.SetupLogger(cfg.Log.Level)

	store, err := cli.OpenStorage(logger, cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, store: store}
	a.monitor = network.NewMonitor(initialOnline, logger)
	a.remote = remote.NewHTTPClient(cfg.Server.URL, cfg.Server.APIToken,
		remote.WithTimeout(cfg.Timeout()),
		remote.WithReporter(remote.ReporterFunc(func(online bool) {
			a.monitor.SetOnline(online)
		})),
	)
	a.queue = queue.New(store, queue.Config{MaxRetry: cfg.Sync.MaxRetries}, logger)
	a.cache = services.NewLocalCache(store)
	a.mutations = services.NewMutationService(a.cache, a.remote, a.queue, a.monitor, cfg.Server.UserID, logger)
	a.engine = syncer.New(a.queue, a.monitor, a.remote, store, cfg.Server.UserID, logger)
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close local database", log.FieldError, err)
	}
}

// withApp adapts a handler that needs the wired client to cobra's RunE.
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}

// probe runs the manual connectivity check against the server root and
// feeds the result into the monitor.
func (a *app) probe(ctx context.Context) bool {
	p := network.Prober{Timeout: a.cfg.ProbeTimeout()}
	return a.monitor.CheckConnectivity(ctx, p, a.remote.BaseURL()+"/", true)
}

// refresh replaces the cached entity with the server's copy, keeping
// changes still waiting in the queue. Transient failures leave the cache
// alone and report stale=true.
func (a *app) refresh(ctx context.Context, entity core.Entity) (recs []core.Record, stale bool, err error) {
	if a.monitor.IsOnline() {
		remoteRecs, rerr := a.remote.List(ctx, a.cfg.Server.UserID, entity)
		switch {
		case rerr == nil:
			pending, qerr := a.queue.All(ctx)
			if qerr != nil && !errors.Is(qerr, queue.ErrCorruptQueue) {
				// Without the queue the server copy would hide unsynced changes.
				a.logger.WarnContext(ctx, "Queue unreadable, keeping cached records", log.FieldError, qerr)
				break
			}
			recs, err = a.cache.Reconcile(ctx, entity, remoteRecs, pending)
			if err != nil {
				return nil, false, err
			}
			return recs, false, nil
		case remote.IsDefinitive(rerr):
			return nil, false, rerr
		default:
			a.logger.DebugContext(ctx, "Using cached records", log.FieldEntity, entity, log.FieldError, rerr)
		}
	}
	recs, err = a.cache.List(ctx, entity)
	if err != nil {
		return nil, true, err
	}
	return recs, true, nil
}

// dataset is the snapshot the budget and summary commands work on.
type dataset struct {
	expenses   []*core.Expense
	incomes    []*core.Income
	budgets    []*core.Budget
	categories []*core.Category
	repayments []*core.Repayment
	stale      bool
}

func (a *app) loadDataset(ctx context.Context, entities ...core.Entity) (*dataset, error) {
	ds := &dataset{}
	for _, entity := range entities {
		recs, stale, err := a.refresh(ctx, entity)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", entity, err)
		}
		ds.stale = ds.stale || stale
		switch entity {
		case core.EntityExpense:
			ds.expenses = recordsOf[*core.Expense](recs)
		case core.EntityIncome:
			ds.incomes = recordsOf[*core.Income](recs)
		case core.EntityBudget:
			ds.budgets = recordsOf[*core.Budget](recs)
		case core.EntityCategory:
			ds.categories = recordsOf[*core.Category](recs)
		case core.EntityRepayment:
			ds.repayments = recordsOf[*core.Repayment](recs)
		}
	}
	if ds.stale {
		printWarning("server unreachable, showing locally cached data")
	}
	return ds, nil
}

func recordsOf[T core.Record](recs []core.Record) []T {
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		if t, ok := r.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// reportMutation prints the outcome of a mutation, or explains a rejection.
func reportMutation(verb string, entity core.Entity, out services.Outcome, err error) error {
	if err != nil {
		if errors.Is(err, services.ErrDefinitive) {
			return fmt.Errorf("%s %s rejected by server, local change rolled back: %w", verb, entity, err)
		}
		return err
	}
	if flagJSON {
		return writeJSON(stdout, out)
	}
	if out.Queued {
		printWarning("%s %s: %s (queue id %s)", entity, out.ID, out.Message(), out.QueueID)
		return nil
	}
	printSuccess("%s %s: %s", entity, out.ID, out.Message())
	return nil
}
