package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fintrack/internal/log"
	"fintrack/internal/metrics"
	"fintrack/internal/syncer"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Watch connectivity and sync queued changes automatically",
	Long: `Run in the foreground, replaying queued operations whenever the server
becomes reachable again.

Connectivity comes from host reachability checks every sync.probe_interval,
from the outcome of the daemon's own requests, and from operators:
SIGUSR1 forces online and SIGUSR2 forces offline until the next check.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadClientConfig()
		if err != nil {
			return err
		}

		// Seed the monitor from the platform indicator before wiring anything.
		host, err := dialTarget(cfg.Server.URL)
		if err != nil {
			return err
		}
		initial := reachable(ctx, host, cfg.ProbeTimeout())

		a, err := newApp(initial)
		if err != nil {
			return err
		}
		defer a.Close()
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		return runDaemon(ctx, a, host, metricsAddr)
	},
}

func init() {
	daemonCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. 127.0.0.1:9310)")
}

func runDaemon(ctx context.Context, a *app, host, metricsAddr string) error {
	logger := a.logger.WithComponent(log.ComponentSync)

	a.monitor.Init()
	defer a.monitor.Dispose()
	a.engine.Init(ctx)
	defer a.engine.Dispose()

	unsubscribe := a.engine.Subscribe(func(p syncer.SyncProgress) {
		if p.InProgress {
			logger.Debug("Sync progress", "completed", p.Completed, "failed", p.Failed, "total", p.Total)
			return
		}
		logger.Info("Sync finished", "completed", p.Completed, "failed", p.Failed, "total", p.Total)
	})
	defer unsubscribe()

	signals := make(chan bool, 1)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.monitor.Run(gctx, signals)
		return nil
	})
	g.Go(func() error {
		watchReachability(gctx, host, a.cfg.ProbeInterval(), a.cfg.ProbeTimeout(), a.monitor.IsOnline, signals)
		return nil
	})
	g.Go(func() error {
		forwardOperatorSignals(gctx, signals)
		return nil
	})
	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info("Daemon started",
		"server", a.remote.BaseURL(),
		log.FieldOnline, a.monitor.IsOnline(),
		"probe_interval", a.cfg.ProbeInterval())

	// Changes queued while no daemon was running are drained right away.
	if a.monitor.IsOnline() {
		if enabled, _ := a.engine.AutoSyncEnabled(ctx); enabled {
			if res, err := a.engine.SyncAll(ctx); err != nil {
				logger.Warn("Startup sync failed", log.FieldError, err)
			} else if res.Success+res.Failed > 0 {
				logger.Info("Startup sync done", "success", res.Success, "failed", res.Failed)
			}
		}
	}

	err := g.Wait()
	logger.Info("Daemon stopped")
	return err
}

// dialTarget turns the server URL into a host:port for reachability checks.
func dialTarget(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

func reachable(ctx context.Context, host string, timeout time.Duration) bool {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// watchReachability is the daemon's platform indicator. It emits a signal
// whenever reachability of host disagrees with current(), which also
// recovers from an offline report made by a failed request.
func watchReachability(ctx context.Context, host string, interval, timeout time.Duration, current func() bool, out chan<- bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		now := reachable(ctx, host, timeout)
		if now == current() {
			continue
		}
		select {
		case out <- now:
		case <-ctx.Done():
			return
		}
	}
}

func forwardOperatorSignals(ctx context.Context, out chan<- bool) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			select {
			case out <- sig == syscall.SIGUSR1:
			case <-ctx.Done():
				return
			}
		}
	}
}
