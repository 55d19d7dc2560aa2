// Package remote talks to the hosted document store.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"fintrack/internal/core"
)

// Store is the per-user document API the client replays operations against.
type Store interface {
	Create(ctx context.Context, userID string, rec core.Record) (string, error)
	Update(ctx context.Context, userID string, rec core.Record) error
	Delete(ctx context.Context, userID string, entity core.Entity, id string) error
	List(ctx context.Context, userID string, entity core.Entity) ([]core.Record, error)
}

// ConnectivityReporter receives reachability observations from transport calls.
type ConnectivityReporter interface {
	ReportOnline(online bool)
}

// ReporterFunc adapts a function to ConnectivityReporter.
type ReporterFunc func(online bool)

func (f ReporterFunc) ReportOnline(online bool) { f(online) }

// StatusError is a non-2xx response from the server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = http.StatusText(e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, msg)
}

var definitiveMarkers = []string{
	"permission",
	"denied",
	"unauthorized",
	"forbidden",
	"invalid",
	"validation",
}

// IsDefinitive reports whether err will fail again on retry: permission and
// validation failures, recognised by HTTP 4xx status or by markers in the
// error text. Network errors, timeouts and 5xx responses are transient.
func IsDefinitive(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusRequestTimeout, se.Code == http.StatusTooManyRequests:
			return false
		case se.Code >= 400 && se.Code < 500:
			return true
		case se.Code >= 500:
			return false
		}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range definitiveMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsTransient is the complement of IsDefinitive for non-nil errors.
func IsTransient(err error) bool {
	return err != nil && !IsDefinitive(err)
}
