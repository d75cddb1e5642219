package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/petmar2017/wealth-advisor-scraper/internal/config"
	"github.com/petmar2017/wealth-advisor-scraper/internal/crawler"
	"github.com/petmar2017/wealth-advisor-scraper/internal/storage"
)

// Run modes.
const (
	ModeTest     = "test"
	ModeFull     = "full"
	ModeSpecific = "specific"
)

// snapshotPrefix is the base name of every saved export.
const snapshotPrefix = "wealth_advisors"

var defaultSpecificStates = []string{"New York", "New Jersey", "California"}

// RunOptions holds options for the run command.
type RunOptions struct {
	Mode      string
	States    []string
	Targets   []string
	OutputDir string
	Format    string
	NoBar     bool
}

func newRunCmd() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Crawl advisor directories",
		Long:  "Crawl every selected (target, state) pair and save the extracted advisor records.",
		Example: `  # One pair (first target, New York)
  crawler run --mode=test

  # Every configured target and state
  crawler run --mode=full

  # Selected states for every target
  crawler run --mode=specific --states="Texas,Ohio"

  # Selected targets
  crawler run --mode=full --targets="UBS,Morgan Stanley"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", ModeTest, "Run mode: 'test', 'full' or 'specific'")
	cmd.Flags().StringSliceVarP(&opts.States, "states", "s", nil, "States to crawl (overrides TARGET_STATES)")
	cmd.Flags().StringSliceVarP(&opts.Targets, "targets", "t", nil, "Target names to crawl (overrides TARGET_COMPANIES)")
	cmd.Flags().StringVarP(&opts.OutputDir, "output", "o", "", "Output directory (overrides OUTPUT_DIRECTORY)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Save format: 'csv', 'json' or 'both'")
	cmd.Flags().BoolVar(&opts.NoBar, "no-progress", false, "Disable the progress bar")

	return cmd
}

// selectPairs picks the targets and filters a mode crawls.
func selectPairs(cfg *config.Config, opts *RunOptions) ([]*crawler.Target, []crawler.Filter, error) {
	targets := cfg.Targets
	if len(opts.Targets) > 0 {
		targets = config.SelectTargets(cfg.Targets, opts.Targets)
	}
	if len(targets) == 0 {
		return nil, nil, fmt.Errorf("no targets selected")
	}

	var states []string
	switch strings.ToLower(opts.Mode) {
	case ModeTest:
		targets = targets[:1]
		states = []string{"New York"}
		if len(opts.States) > 0 {
			states = opts.States[:1]
		}
	case ModeFull:
		states = cfg.Filters
		if len(opts.States) > 0 {
			states = opts.States
		}
	case ModeSpecific:
		states = defaultSpecificStates
		if len(opts.States) > 0 {
			states = opts.States
		}
	default:
		return nil, nil, fmt.Errorf("unknown mode %q: want test, full or specific", opts.Mode)
	}

	filters := make([]crawler.Filter, 0, len(states))
	for _, s := range states {
		if s = strings.TrimSpace(s); s != "" {
			filters = append(filters, crawler.Filter(s))
		}
	}
	if len(filters) == 0 {
		return nil, nil, fmt.Errorf("no states selected")
	}
	return toTargets(targets), filters, nil
}

func runCrawl(ctx context.Context, opts *RunOptions) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.OutputDir != "" {
		cfg.Output.Directory = opts.OutputDir
	}
	if opts.Format != "" {
		cfg.Output.SaveFormat = strings.ToLower(opts.Format)
	}

	targets, filters, err := selectPairs(cfg, opts)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := a.shutdown.Context(ctx)
	defer stop()

	var crawlOpts []crawler.Option
	if !opts.NoBar {
		crawlOpts = append(crawlOpts, crawler.WithObserver(newProgressObserver(len(targets)*len(filters), os.Stderr)))
	}
	c := a.controller(crawlOpts...)
	a.seedDiscovered(ctx, c, targets)

	log.Info("starting crawl",
		"mode", opts.Mode,
		"targets", len(targets),
		"states", len(filters),
		"guard", cfg.Crawler.BlockingGuard,
		"discovery", cfg.Crawler.URLDiscovery,
	)

	agg := c.RunAll(ctx, targets, filters)

	// the run context may be cancelled; saving must still finish
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()

	snap := storage.NewSnapshot(snapshotPrefix, agg, time.Now())
	saveErr := a.sinks.Save(saveCtx, snap)
	if saveErr != nil {
		log.WithError(saveErr).Error("failed to save results")
	}
	if a.events != nil {
		a.events.RunFinished(saveCtx, agg)
	}

	printSummary(os.Stdout, agg, snap.Name)

	if agg.Interrupted {
		return fmt.Errorf("crawl interrupted after %d of %d pairs", len(agg.Pairs), len(targets)*len(filters))
	}
	return saveErr
}
