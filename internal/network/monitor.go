// Package network tracks whether the remote store is reachable and tells
// subscribers about online/offline transitions.
package network

import (
	"context"
	"sync"

	"fintrack/internal/log"
	"fintrack/internal/notify"
)

// Monitor holds the current connectivity state. Platform signals arrive via
// SetOnline or Run; listeners are called synchronously on each transition.
type Monitor struct {
	mu        sync.RWMutex
	online    bool
	started   bool
	listeners notify.Registry[bool]
	logger    *log.Logger
}

// NewMonitor creates a monitor seeded with the platform's initial indicator.
func NewMonitor(initialOnline bool, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.Default(log.ComponentNetwork)
	}
	m := &Monitor{
		online: initialOnline,
		logger: logger.WithComponent(log.ComponentNetwork),
	}
	m.listeners.OnPanic = func(rec any) {
		m.logger.Error("Network listener panicked", log.FieldError, notify.PanicError(rec))
	}
	return m
}

// Init marks the monitor as started. It is idempotent.
func (m *Monitor) Init() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.logger.Info("Network monitor started", log.FieldOnline, m.online)
}

// Dispose stops delivering notifications. Subscriptions made before Dispose
// are kept but no longer fire.
func (m *Monitor) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
}

// IsOnline reports the last known state.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// SetOnline records a platform signal. Only a change of state is a
// transition; listeners run in subscription order before SetOnline returns.
// It reports whether a transition happened.
func (m *Monitor) SetOnline(online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	started := m.started
	m.mu.Unlock()

	m.logger.Info("Connectivity changed", log.FieldOnline, online)
	if started {
		m.listeners.Notify(online)
	}
	return true
}

// Subscribe registers fn for transitions and returns an unsubscribe function.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	return m.listeners.Subscribe(fn)
}

// Run feeds signals into SetOnline until ctx is done or signals is closed.
func (m *Monitor) Run(ctx context.Context, signals <-chan bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-signals:
			if !ok {
				return
			}
			m.SetOnline(online)
		}
	}
}
