// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/clubsync/internal/health"
	"github.com/ManuGH/clubsync/internal/integration"
)

func newStatusCommand() *cobra.Command {
	var (
		addr    string
		asJSON  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running daemon",
		Long:  "Query a running daemon's diagnostics API and print its mode, sync state, queue and service health.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			body, err := fetchStatus(ctx, baseURL(addr))
			if err != nil {
				return err
			}
			if asJSON {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			var snap integration.Snapshot
			if err := json.Unmarshal(body, &snap); err != nil {
				return fmt.Errorf("decode status: %w", err)
			}
			return printStatus(cmd.OutOrStdout(), snap)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8088", "daemon API address")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON snapshot")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

func baseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/")
	}
	return "http://" + addr
}

func fetchStatus(ctx context.Context, base string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/v1/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s: %w", base, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status request failed: %s", resp.Status)
	}
	return body, nil
}

func printStatus(w io.Writer, snap integration.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "status\t%s\n", snap.Status.State)
	fmt.Fprintf(tw, "mode\t%s\n", snap.Mode)
	fmt.Fprintf(tw, "sync\t%s\n", snap.Sync.State)
	if !snap.Sync.LastCompletedAt.IsZero() {
		fmt.Fprintf(tw, "last sync\t%s\n", snap.Sync.LastCompletedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(tw, "health\t%s\n", snap.OverallHealth)
	fmt.Fprintf(tw, "pending operations\t%d\n", len(snap.PendingOperations))
	fmt.Fprintf(tw, "errors\t%d current, %d critical, %d failed operations\n",
		len(snap.CurrentErrors), len(snap.CriticalErrors), len(snap.FailedOperations))

	for _, svc := range health.AllServices() {
		h := snap.ServiceHealth.Get(svc)
		line := string(h.State)
		switch {
		case h.Reason != "":
			line += " (" + h.Reason + ")"
		case h.Cause != "":
			line += " (" + h.Cause + ")"
		}
		fmt.Fprintf(tw, "  %s\t%s\n", svc, line)
	}
	return tw.Flush()
}
