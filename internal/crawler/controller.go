package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/petmar2017/wealth-advisor-scraper/internal/browser"
	"github.com/petmar2017/wealth-advisor-scraper/internal/classifier"
	"github.com/petmar2017/wealth-advisor-scraper/pkg/logger"
)

// Config collects the settings of every crawl component.
type Config struct {
	BlockingGuard   bool
	URLDiscovery    bool
	SearchEngineURL string
	Headless        bool

	NavigationTimeout time.Duration
	StepTimeout       time.Duration
	ProbeTimeout      time.Duration
	QuiescentTimeout  time.Duration

	MaxBlockingWait     time.Duration
	DefaultBlockingWait time.Duration
	RateLimitWait       time.Duration
	AccessDeniedWait    time.Duration
	ManualSolveGrace    time.Duration
	ChangeApproachDelay time.Duration

	NavAttempts   int
	NavRetryDelay time.Duration

	MinDelay     time.Duration
	MaxDelay     time.Duration
	PairMinDelay time.Duration
	PairMaxDelay time.Duration

	Budgets Budgets
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		BlockingGuard:       true,
		URLDiscovery:        true,
		SearchEngineURL:     "https://www.google.com/search?q=",
		Headless:            true,
		NavigationTimeout:   30 * time.Second,
		StepTimeout:         5 * time.Second,
		ProbeTimeout:        2 * time.Second,
		QuiescentTimeout:    10 * time.Second,
		MaxBlockingWait:     300 * time.Second,
		DefaultBlockingWait: 30 * time.Second,
		RateLimitWait:       60 * time.Second,
		AccessDeniedWait:    120 * time.Second,
		ManualSolveGrace:    30 * time.Second,
		ChangeApproachDelay: 10 * time.Second,
		NavAttempts:         3,
		NavRetryDelay:       5 * time.Second,
		MinDelay:            2 * time.Second,
		MaxDelay:            5 * time.Second,
		PairMinDelay:        10 * time.Second,
		PairMaxDelay:        20 * time.Second,
		Budgets:             Budgets{MaxPages: 50, MaxEmptyPages: 3, MaxRecords: 10000},
	}
}

// Option customizes a Controller.
type Option func(*Controller)

// WithPacer replaces the wall-clock pacer.
func WithPacer(p *Pacer) Option {
	return func(c *Controller) { c.pacer = p }
}

// WithPageBuilder sets how documents are turned into oracle pages.
func WithPageBuilder(pb PageBuilder) Option {
	return func(c *Controller) { c.pages = pb }
}

// WithURLStore checkpoints discovered URLs to s after every pair.
func WithURLStore(s URLStore) Option {
	return func(c *Controller) { c.urls = s }
}

// WithObserver adds a pair observer.
func WithObserver(o PairObserver) Option {
	return func(c *Controller) { c.observers = append(c.observers, o) }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(c *Controller) { c.runID = id }
}

// Controller runs the crawl over every (target, filter) pair, one browser
// session at a time.
type Controller struct {
	cfg       Config
	renderer  browser.Renderer
	oracle    classifier.Oracle
	pages     PageBuilder
	pacer     *Pacer
	urls      URLStore
	observers []PairObserver
	log       *logger.Logger
	runID     string

	guard     *Guard
	resolver  *Resolver
	navigator *Navigator
	extractor *Extractor
	paginator *Paginator
}

// NewController wires the crawl components.
func NewController(cfg Config, renderer browser.Renderer, oracle classifier.Oracle, opts ...Option) *Controller {
	c := &Controller{
		cfg:      cfg,
		renderer: renderer,
		oracle:   oracle,
		pages:    &classifier.Excerpter{},
		log:      logger.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pacer == nil {
		c.pacer = NewPacer()
	}

	c.guard = NewGuard(GuardConfig{
		Enabled:             cfg.BlockingGuard,
		MaxWait:             cfg.MaxBlockingWait,
		DefaultWait:         cfg.DefaultBlockingWait,
		RateLimitWait:       cfg.RateLimitWait,
		AccessDeniedWait:    cfg.AccessDeniedWait,
		ManualSolveGrace:    cfg.ManualSolveGrace,
		ChangeApproachDelay: cfg.ChangeApproachDelay,
		Headless:            cfg.Headless,
	}, oracle, c.pages, c.pacer, c.log)

	c.resolver = NewResolver(ResolverConfig{
		Enabled:           cfg.URLDiscovery,
		SearchEngineURL:   cfg.SearchEngineURL,
		NavigationTimeout: cfg.NavigationTimeout,
	}, oracle, c.pages, c.guard, c.log)

	c.navigator = NewNavigator(NavigatorConfig{
		NavigationTimeout: cfg.NavigationTimeout,
		StepTimeout:       cfg.StepTimeout,
		ProbeTimeout:      cfg.ProbeTimeout,
		QuiescentTimeout:  cfg.QuiescentTimeout,
	}, oracle, c.pages, c.guard, c.resolver, c.log)

	c.extractor = NewExtractor(oracle, c.pages, c.guard, c.log)

	c.paginator = NewPaginator(PaginatorConfig{
		MinDelay:         cfg.MinDelay,
		MaxDelay:         cfg.MaxDelay,
		StepTimeout:      cfg.StepTimeout,
		QuiescentTimeout: cfg.QuiescentTimeout,
	}, oracle, c.pages, c.guard, c.extractor, c.pacer, c.log)

	c.log = c.log.WithComponent("controller")
	return c
}

// Guard returns the controller's blocking guard.
func (c *Controller) Guard() *Guard { return c.guard }

// Resolver returns the controller's endpoint resolver.
func (c *Controller) Resolver() *Resolver { return c.resolver }

// RunAll crawls every target for every filter. It always returns the
// aggregate collected so far; Interrupted is set when ctx was cancelled
// before all pairs ran.
func (c *Controller) RunAll(ctx context.Context, targets []*Target, filters []Filter) *AggregateResult {
	runID := c.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = logger.ContextWithRunID(ctx, runID)
	log := c.log.WithContext(ctx)

	agg := &AggregateResult{
		RunID:          runID,
		StartedAt:      time.Now(),
		DiscoveredURLs: map[string]string{},
	}
	total := len(targets) * len(filters)
	log.Info("Starting crawl", "targets", len(targets), "filters", len(filters), "pairs", total)

	n := 0
run:
	for _, t := range targets {
		for _, f := range filters {
			if ctx.Err() != nil {
				agg.Interrupted = true
				break run
			}
			n++

			result := c.RunPair(ctx, t, f)
			agg.Pairs = append(agg.Pairs, result)
			agg.Records = append(agg.Records, result.Records...)
			c.checkpoint(ctx, agg)

			if result.Status == PairInterrupted || ctx.Err() != nil {
				agg.Interrupted = true
				break run
			}
			if n < total {
				if err := c.pacer.Jitter(ctx, c.cfg.PairMinDelay, c.cfg.PairMaxDelay); err != nil {
					agg.Interrupted = true
					break run
				}
			}
		}
	}

	agg.BlockingEncounters = c.guard.Encounters()
	agg.DiscoveredURLs = c.resolver.Discovered()
	agg.FinishedAt = time.Now()
	log.Info("Crawl finished",
		"records", len(agg.Records),
		"pairs", len(agg.Pairs),
		"blocking_encounters", agg.BlockingEncounters,
		"interrupted", agg.Interrupted,
		"duration", agg.FinishedAt.Sub(agg.StartedAt),
	)
	return agg
}

// RunPair crawls one target for one filter in a fresh session. Failures,
// including panics, are reported in the result and never propagate.
func (c *Controller) RunPair(ctx context.Context, t *Target, f Filter) (result PairResult) {
	ctx = logger.ContextWithPair(ctx, t.Name, string(f))
	log := c.log.WithContext(ctx)
	runID := c.runID
	if v, ok := ctx.Value(logger.RunIDKey).(string); ok {
		runID = v
	}

	start := time.Now()
	encountersBefore := c.guard.Encounters()
	result = PairResult{Target: t.Name, Filter: string(f)}
	for _, o := range c.observers {
		o.PairStarted(ctx, runID, t.Name, f)
	}

	defer func() {
		if r := recover(); r != nil {
			log.LogPanic(r)
			result.Status = PairFailed
			result.Records = nil
			result.Err = &PairError{Target: t.Name, Filter: string(f), Op: "panic", Cause: fmt.Errorf("%v", r)}
		}
		result.RecordCount = len(result.Records)
		result.BlockingEncounters = c.guard.Encounters() - encountersBefore
		result.Duration = time.Since(start)
		if result.Err != nil {
			result.Error = result.Err.Error()
		}
		for _, o := range c.observers {
			o.PairFinished(ctx, runID, result)
		}
	}()

	log.Info("Starting pair")
	sess, err := c.renderer.Open(ctx)
	if err != nil {
		log.WithError(err).Error("Could not open browser session")
		result.Status = PairFailed
		result.Err = &PairError{Target: t.Name, Filter: string(f), Op: "open session", Cause: err}
		return result
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.WithError(err).Warn("Closing session failed")
		}
	}()

	if status, err := c.reach(ctx, sess, t, f); status != "" {
		result.Status = status
		result.Err = err
		return result
	}

	rs := &RunState{}
	outcome := c.paginator.Walk(ctx, sess, t, rs, c.cfg.Budgets)
	result.Outcome = outcome
	result.Records = rs.Records
	result.PagesVisited = rs.PagesVisited

	switch outcome {
	case StopBlocked:
		result.Status = PairFailed
		result.Err = &PairError{Target: t.Name, Filter: string(f), Op: "paginate", Cause: ErrBlocked}
		log.Warn("Pair stopped on a blocking page", "records", len(rs.Records))
	case StopCancelled:
		result.Status = PairInterrupted
		result.Err = ctx.Err()
	default:
		result.Status = PairCompleted
		log.Info("Pair completed", "records", len(rs.Records), "pages", rs.PagesVisited, "outcome", outcome)
	}
	return result
}

// reach retries navigation up to NavAttempts times. It returns an empty
// status when the filtered view was reached.
func (c *Controller) reach(ctx context.Context, sess browser.Session, t *Target, f Filter) (PairStatus, error) {
	log := c.log.WithContext(ctx)
	attempts := max(c.cfg.NavAttempts, 1)

	for attempt := 1; attempt <= attempts; attempt++ {
		ok, err := c.navigator.ReachFilteredView(ctx, sess, t, f)
		if ctx.Err() != nil {
			return PairInterrupted, ctx.Err()
		}
		if errors.Is(err, ErrEndpointNotFound) {
			log.WithError(err).Warn("No entry URL; skipping pair")
			return PairSkipped, &PairError{Target: t.Name, Filter: string(f), Op: "resolve", Cause: err}
		}
		if ok {
			return "", nil
		}
		if c.guard.LastAction() == classifier.ActionChangeApproach {
			log.Warn("Blocked with a change-approach verdict; not retrying the same path", "attempt", attempt)
			return PairFailed, &PairError{Target: t.Name, Filter: string(f), Op: "navigate", Cause: ErrBlocked}
		}
		log.Warn("Navigation attempt failed", "attempt", attempt, "of", attempts)
		if attempt < attempts {
			if err := c.pacer.Sleep(ctx, c.cfg.NavRetryDelay); err != nil {
				return PairInterrupted, err
			}
		}
	}
	return PairFailed, &PairError{Target: t.Name, Filter: string(f), Op: "navigate", Cause: ErrNavigationFailed}
}

// checkpoint stores the discovered URLs when they changed since the last
// successful store. It runs even when ctx is cancelled so an interrupted run
// keeps what it found.
func (c *Controller) checkpoint(ctx context.Context, agg *AggregateResult) {
	agg.DiscoveredURLs = c.resolver.Discovered()
	if c.urls == nil || !c.resolver.dirty {
		return
	}
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.urls.Store(storeCtx, agg.DiscoveredURLs); err != nil {
		c.log.WithContext(ctx).WithError(err).Warn("Could not checkpoint discovered URLs")
		return
	}
	c.resolver.dirty = false
}
