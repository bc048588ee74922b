package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/specialistvlad/assetgrid/internal/ctxlog"
)

// DefaultHTTPTimeout applies when no timeout is configured.
const DefaultHTTPTimeout = 30 * time.Second

// HTTP fetches resources with GET requests relative to a base URL.
type HTTP struct {
	base   *url.URL
	client *http.Client
}

// NewHTTP returns an HTTP source. timeout is a Go duration string; empty
// means DefaultHTTPTimeout.
func NewHTTP(baseURL, timeout string) (*HTTP, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme '%s'", base.Scheme)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	d := DefaultHTTPTimeout
	if timeout != "" {
		if d, err = time.ParseDuration(timeout); err != nil {
			return nil, fmt.Errorf("failed to parse timeout: %w", err)
		}
	}

	client := &http.Client{
		Timeout: d,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	return &HTTP{base: base, client: client}, nil
}

// Fetch downloads the resource at key.
func (h *HTTP) Fetch(ctx context.Context, key string) ([]byte, error) {
	ref, err := url.Parse(strings.TrimPrefix(key, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid asset key '%s': %w", key, err)
	}
	target := h.base.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Fetching asset over HTTP.", "url", target.String())

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", target, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("GET %s: unexpected status %s", target, resp.Status)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", target, err)
	}
	return b, nil
}

// Close releases idle connections.
func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
