package router

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Prober confirms that an endpoint answers its health path within a bounded
// timeout. The route store uses it for strict-mode registration and for the
// live confirmation inside ActiveEndpoints.
type Prober interface {
	Probe(ctx context.Context, baseURL string) error
}

// HTTPProber probes endpoints over HTTP.
type HTTPProber struct {
	client *http.Client
	path   string
}

// NewHTTPProber creates a prober hitting the given health path. The timeout
// bounds each probe regardless of the caller's context.
func NewHTTPProber(path string, timeout time.Duration) *HTTPProber {
	if path == "" {
		path = "/health"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProber{
		client: &http.Client{Timeout: timeout},
		path:   path,
	}
}

// Probe issues a GET against baseURL+path and treats any 2xx answer as live.
func (p *HTTPProber) Probe(ctx context.Context, baseURL string) error {
	target := strings.TrimSuffix(baseURL, "/") + p.path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("invalid probe target %s: %w", target, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s failed: %w", target, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("probe %s returned status %d", target, resp.StatusCode)
	}
	return nil
}
