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

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/compresr/lingua-gateway/internal/gateway"
	"github.com/compresr/lingua-gateway/internal/store"
)

func newStatsCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show savings of a running gateway",
		Long: `Query /stats on a running gateway. The endpoint only answers
loopback clients, so run this on the gateway host.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := fetchStats(cmd.Context(), addr)
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:8080", "gateway base URL")
	return cmd
}

func fetchStats(ctx context.Context, addr string) (*gateway.StatsResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := strings.TrimRight(addr, "/") + "/stats"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var stats gateway.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &stats, nil
}

func printStats(w io.Writer, s *gateway.StatsResponse) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Version:\t%s\n", s.Version)
	fmt.Fprintf(tw, "Engine:\t%s\n", s.Engine)
	fmt.Fprintf(tw, "Uptime:\t%s\n", s.Uptime)
	fmt.Fprintf(tw, "Requests:\t%s (%s compressed)\n",
		humanize.Comma(int64(s.Savings.TotalRequests)), humanize.Comma(int64(s.Savings.CompressedRequests)))
	fmt.Fprintf(tw, "Fragments:\t%s\n", humanize.Comma(int64(s.Savings.Fragments)))
	fmt.Fprintf(tw, "Tokens:\t%s -> %s (%.1f%% saved)\n",
		humanize.Comma(int64(s.Savings.TokensBefore)), humanize.Comma(int64(s.Savings.TokensAfter)), s.Savings.TokenSavedPct)
	if l := s.Savings.Ledger; l != nil {
		fmt.Fprintf(tw, "Ledger:\t%s requests, %s tokens saved (%.1f%%)\n",
			humanize.Comma(int64(l.Requests)), humanize.Comma(int64(l.Saved())), l.SavedPercent())
	}
	_ = tw.Flush()
}

func newSavingsCmd() *cobra.Command {
	var dbPath string
	var limit int
	cmd := &cobra.Command{
		Use:   "savings",
		Short: "Print recent entries from a SQLite savings ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dbPath == "" {
				return fmt.Errorf("--db is required")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ledger, err := store.OpenSQLite(ctx, dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = ledger.Close() }()
			return printSavings(ctx, cmd.OutOrStdout(), ledger, limit)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the savings database")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}

func printSavings(ctx context.Context, w io.Writer, ledger store.Store, limit int) error {
	totals, err := ledger.Totals(ctx)
	if err != nil {
		return err
	}
	records, err := ledger.Recent(ctx, limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tREQUEST\tMODEL\tFRAGMENTS\tBEFORE\tAFTER\tSAVED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			humanize.Time(r.Timestamp), r.RequestID, r.Model, r.Fragments,
			humanize.Comma(int64(r.TokensBefore)), humanize.Comma(int64(r.TokensAfter)), humanize.Comma(int64(r.Saved())))
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\n%s requests, %s -> %s tokens (%.1f%% saved)\n",
		humanize.Comma(int64(totals.Requests)),
		humanize.Comma(int64(totals.TokensBefore)),
		humanize.Comma(int64(totals.TokensAfter)),
		totals.SavedPercent())
	return nil
}
