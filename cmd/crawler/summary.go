package main

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/petmar2017/wealth-advisor-scraper/internal/crawler"
)

// printSummary prints final run statistics.
func printSummary(w io.Writer, agg *crawler.AggregateResult, saved string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Crawl Summary ===")
	fmt.Fprintf(w, "Run ID:              %s\n", agg.RunID)
	fmt.Fprintf(w, "Duration:            %s\n", agg.FinishedAt.Sub(agg.StartedAt).Round(time.Second))
	fmt.Fprintf(w, "Total Advisors:      %d\n", len(agg.Records))
	fmt.Fprintf(w, "Blocking Encounters: %d\n", agg.BlockingEncounters)
	fmt.Fprintf(w, "Pairs:               %d (%d not completed)\n", len(agg.Pairs), len(agg.FailedPairs()))
	if agg.Interrupted {
		fmt.Fprintln(w, "Status:              interrupted (partial results)")
	}
	fmt.Fprintf(w, "Saved As:            %s\n", saved)

	byTarget := agg.RecordsByTarget()
	if len(byTarget) > 0 {
		fmt.Fprintln(w, "\nAdvisors by target:")
		for _, name := range sortedKeys(byTarget) {
			fmt.Fprintf(w, "  %-20s %d\n", name, byTarget[name])
		}
	}

	if len(agg.DiscoveredURLs) > 0 {
		fmt.Fprintln(w, "\nDiscovered URLs:")
		for _, name := range sortedKeys(agg.DiscoveredURLs) {
			fmt.Fprintf(w, "  %-20s %s\n", name, agg.DiscoveredURLs[name])
		}
	}

	if failed := agg.FailedPairs(); len(failed) > 0 {
		fmt.Fprintln(w, "\nPairs not completed:")
		for _, p := range failed {
			fmt.Fprintf(w, "  %s / %s: %s %s\n", p.Target, p.Filter, p.Status, p.Error)
		}
	}
	fmt.Fprintln(w, "=====================")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
