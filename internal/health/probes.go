// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Reachability is the network reachability check used by the network probe.
type Reachability interface {
	Reachable(ctx context.Context) error
}

// ReachabilityFunc adapts a function to Reachability.
type ReachabilityFunc func(ctx context.Context) error

func (f ReachabilityFunc) Reachable(ctx context.Context) error { return f(ctx) }

// NetworkProbe reports the network service from a reachability check.
func NetworkProbe(r Reachability) Probe {
	return ProbeFunc{ID: ServiceNetwork, Fn: func(ctx context.Context) ServiceHealth {
		if err := r.Reachable(ctx); err != nil {
			return Failed(err)
		}
		return Healthy()
	}}
}

// HTTPReachability issues a HEAD request against a well-known URL.
type HTTPReachability struct {
	URL    string
	Client *http.Client
}

// NewHTTPReachability creates a reachability check for url.
func NewHTTPReachability(url string) *HTTPReachability {
	return &HTTPReachability{URL: url, Client: http.DefaultClient}
}

var errNoURL = errors.New("reachability url not configured")

func (r *HTTPReachability) Reachable(ctx context.Context) error {
	if r.URL == "" {
		return errNoURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.URL, nil)
	if err != nil {
		return fmt.Errorf("build reachability request: %w", err)
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("reach %s: %w", r.URL, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("reach %s: status %d", r.URL, resp.StatusCode)
	}
	return nil
}
