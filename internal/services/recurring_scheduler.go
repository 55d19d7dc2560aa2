package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fintrack/internal/log"
)

// RecurringSchedulerConfig holds configuration for the recurring scheduler.
type RecurringSchedulerConfig struct {
	// Interval between runs (default: 1h).
	Interval time.Duration
}

func DefaultRecurringSchedulerConfig() RecurringSchedulerConfig {
	return RecurringSchedulerConfig{Interval: time.Hour}
}

// Runner is satisfied by RecurringProcessor.
type Runner interface {
	ProcessAll(ctx context.Context, now time.Time) (int, error)
}

// RecurringScheduler runs a Runner immediately on Start and then on every
// tick until Stop or ctx cancellation.
type RecurringScheduler struct {
	runner Runner
	config RecurringSchedulerConfig
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewRecurringScheduler(runner Runner, config RecurringSchedulerConfig, logger *log.Logger) *RecurringScheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultRecurringSchedulerConfig().Interval
	}
	if logger == nil {
		logger = log.Default(log.ComponentWorker)
	}
	return &RecurringScheduler{
		runner: runner,
		config: config,
		logger: logger.WithComponent(log.ComponentWorker),
		now:    time.Now,
	}
}

// Start begins the loop. Returns an error if already running.
func (s *RecurringScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("recurring scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.runLoop(ctx, s.stopCh, s.doneCh)

	s.logger.InfoContext(ctx, "Recurring scheduler started", "interval", s.config.Interval)
	return nil
}

// Stop signals the loop and waits for the current run to finish.
func (s *RecurringScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.running = false
	s.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		s.logger.InfoContext(ctx, "Recurring scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Recurring scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *RecurringScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *RecurringScheduler) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *RecurringScheduler) runOnce(ctx context.Context) {
	n, err := s.runner.ProcessAll(ctx, s.now())
	if err != nil {
		s.logger.ErrorContext(ctx, "Recurring run finished with errors",
			"processed", n,
			log.FieldError, err)
		return
	}
	s.logger.DebugContext(ctx, "Recurring run finished", "processed", n)
}
