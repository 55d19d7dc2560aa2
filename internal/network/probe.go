package network

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// DefaultProbeTimeout bounds a connectivity probe.
const DefaultProbeTimeout = 5 * time.Second

// Prober performs a best-effort reachability check with a HEAD request.
// It is for manual checks only and never drives transitions by itself.
type Prober struct {
	Client  *http.Client
	Timeout time.Duration
}

// Probe reports whether url answered at all. Any HTTP status counts as
// reachable; transport errors and timeouts do not.
func (p Prober) Probe(ctx context.Context, url string) (bool, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, fmt.Errorf("build probe request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	return true, nil
}

// CheckConnectivity probes url and, when apply is true, feeds the result into
// the monitor as a signal.
func (m *Monitor) CheckConnectivity(ctx context.Context, p Prober, url string, apply bool) bool {
	ok, err := p.Probe(ctx, url)
	if err != nil {
		m.logger.DebugContext(ctx, "Connectivity probe failed", "url", url, "error", err)
	}
	if apply {
		m.SetOnline(ok)
	}
	return ok
}
