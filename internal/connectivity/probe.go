package connectivity

import (
	"context"
	"io"
	"net/http"
	"time"
)

const (
	defaultProbeInterval = 5 * time.Second
	defaultProbeTimeout  = 3 * time.Second
)

// Probe is a Source that polls an HTTP health endpoint.
type Probe struct {
	URL      string
	Client   *http.Client
	Interval time.Duration
	Timeout  time.Duration
	// FailuresBeforeOffline is the number of consecutive failed checks needed to
	// report offline. Values below 1 mean 1.
	FailuresBeforeOffline int
}

// Run implements Source. The first check happens immediately.
func (p *Probe) Run(ctx context.Context, observe func(online bool)) error {
	interval := p.Interval
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	threshold := p.FailuresBeforeOffline
	if threshold < 1 {
		threshold = 1
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		if p.Check(ctx) {
			failures = 0
			observe(true)
		} else {
			failures++
			if failures >= threshold {
				observe(false)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Check performs one health request and reports whether it returned 2xx.
func (p *Probe) Check(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return false
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			// Best-effort body close.
			_ = cerr
		}
	}()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return false
	}
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
