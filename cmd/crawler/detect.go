package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/petmar2017/wealth-advisor-scraper/internal/config"
	"github.com/petmar2017/wealth-advisor-scraper/internal/crawler"
)

func newDetectCmd() *cobra.Command {
	var (
		targetNames []string
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Check each target's entry page for blocking",
		Long:  "Open every target's entry URL with only the blocking guard active and report what it found.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(cmd.Context(), targetNames, jsonOutput)
		},
	}

	cmd.Flags().StringSliceVarP(&targetNames, "targets", "t", nil, "Target names to check")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")

	return cmd
}

func runDetect(ctx context.Context, targetNames []string, jsonOutput bool) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	// detection only needs the guard
	cfg.Crawler.BlockingGuard = true
	cfg.Crawler.URLDiscovery = false

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := a.shutdown.Context(ctx)
	defer stop()

	tcs := cfg.Targets
	if len(targetNames) > 0 {
		tcs = config.SelectTargets(cfg.Targets, targetNames)
	}
	targets := toTargets(tcs)

	c := a.controller()
	a.seedDiscovered(ctx, c, targets)

	results, err := c.Detect(ctx, targets)
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(results); encErr != nil {
			return encErr
		}
	} else {
		printDetect(os.Stdout, results, c.Guard().Encounters())
	}
	return err
}

func printDetect(w io.Writer, results []crawler.DetectResult, encounters int) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Blocking Detection ===")
	for _, r := range results {
		switch {
		case r.Error != "":
			fmt.Fprintf(w, "  %-20s error: %s\n", r.Target, r.Error)
		case r.Passed && r.Encounters == 0:
			fmt.Fprintf(w, "  %-20s clean\n", r.Target)
		case r.Passed:
			fmt.Fprintf(w, "  %-20s blocked, recovered\n", r.Target)
		default:
			fmt.Fprintf(w, "  %-20s blocked\n", r.Target)
		}
	}
	fmt.Fprintf(w, "Total blocking encounters: %d\n", encounters)
	fmt.Fprintln(w, "==========================")
}
