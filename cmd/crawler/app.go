package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/petmar2017/wealth-advisor-scraper/internal/browser"
	"github.com/petmar2017/wealth-advisor-scraper/internal/classifier"
	"github.com/petmar2017/wealth-advisor-scraper/internal/config"
	"github.com/petmar2017/wealth-advisor-scraper/internal/crawler"
	"github.com/petmar2017/wealth-advisor-scraper/internal/events"
	"github.com/petmar2017/wealth-advisor-scraper/internal/llm"
	"github.com/petmar2017/wealth-advisor-scraper/internal/storage"
	"github.com/petmar2017/wealth-advisor-scraper/pkg/logger"
	"github.com/petmar2017/wealth-advisor-scraper/pkg/shutdown"
)

// app holds everything a command needs, built from config.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	shutdown *shutdown.Handler

	oracle   classifier.Oracle
	renderer browser.Renderer
	urlCache storage.MultiURLCache
	sinks    storage.MultiSink
	events   *events.PairEvents
}

func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		AddSource: cfg.Log.AddSource,
	})
	log.SetDefault()
	return cfg, log, nil
}

// newApp connects the oracle, browser and every configured backend. Each
// opened backend registers its close with the shutdown handler.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		log:      log,
		shutdown: shutdown.New(log.Logger, 30*time.Second),
	}

	provider, err := newProvider(cfg.LLM, log)
	if err != nil {
		return nil, err
	}
	a.oracle = classifier.NewLLMOracle(provider, log)

	a.renderer = browser.NewChromeRenderer(browser.ChromeConfig{
		Headless:      cfg.Browser.Headless,
		UserAgent:     cfg.Browser.UserAgent,
		ExecPath:      cfg.Browser.ExecPath,
		WindowWidth:   cfg.Browser.WindowWidth,
		WindowHeight:  cfg.Browser.WindowHeight,
		ActionTimeout: cfg.Browser.ActionTimeout,
	}, log.Logger)

	if err := a.openBackends(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// newProvider builds the configured provider, an optional fallback behind it,
// and rate limiting around both.
func newProvider(cfg config.LLMConfig, log *logger.Logger) (llm.Provider, error) {
	primary, err := llm.NewProvider(providerConfig(cfg, cfg.Provider, cfg.Model), log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	var provider llm.Provider = primary
	if cfg.FallbackProvider != "" {
		fallback, err := llm.NewProvider(providerConfig(cfg, cfg.FallbackProvider, cfg.FallbackModel), log.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create fallback LLM provider: %w", err)
		}
		provider = llm.NewFallbackProvider(log.Logger, primary, fallback)
	}

	return llm.NewRateLimitedProvider(provider, cfg.RequestsPerMin, 1), nil
}

func providerConfig(cfg config.LLMConfig, name, model string) llm.ProviderConfig {
	pc := llm.ProviderConfig{
		Provider:    name,
		Model:       model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
	if strings.EqualFold(name, cfg.Provider) {
		pc.FastModel = cfg.FastModel
	}
	switch strings.ToLower(name) {
	case string(llm.ProviderAnthropic):
		pc.APIKey = cfg.AnthropicKey
	case string(llm.ProviderOpenAI):
		pc.APIKey = cfg.OpenAIKey
	case string(llm.ProviderOllama):
		pc.BaseURL = cfg.OllamaBaseURL
	case string(llm.ProviderLMStudio):
		pc.BaseURL = cfg.LMStudioBaseURL
	}
	return pc
}

func (a *app) openBackends(ctx context.Context) error {
	cfg := a.cfg

	if cfg.Redis.Host != "" {
		client, err := storage.NewRedisClient(ctx, storage.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		a.shutdown.Register("redis", func(context.Context) error { return client.Close() })

		rc := storage.DefaultRedisURLCacheConfig()
		rc.Prefix = cfg.Redis.KeyPrefix
		a.urlCache = append(a.urlCache, storage.NewRedisURLCache(client, rc, a.log.Logger))
	}

	if cfg.Database.Driver != "" {
		db, err := storage.OpenDB(ctx, storage.DBConfig{
			Driver:       cfg.Database.Driver,
			DSN:          cfg.Database.DSN(),
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
		if err != nil {
			return err
		}
		a.shutdown.Register("database", func(context.Context) error { return db.Close() })
		if err := db.Migrate(ctx); err != nil {
			return err
		}

		store := storage.NewSQLStore(db, a.log.Logger)
		a.urlCache = append(a.urlCache, store)
		a.sinks = append(a.sinks, store)
	}

	a.urlCache = append(a.urlCache, storage.NewFileURLCache(a.urlCachePath()))
	a.sinks = append(a.sinks, storage.NewFileSink(cfg.Output.Directory, cfg.Output.SaveFormat, a.log.Logger))

	if cfg.ObjectStore.Endpoint != "" {
		objects, err := storage.NewMinIOStorage(storage.MinIOConfig{
			Endpoint:        cfg.ObjectStore.Endpoint,
			AccessKeyID:     cfg.ObjectStore.AccessKeyID,
			SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
			BucketName:      cfg.ObjectStore.BucketName,
			UseSSL:          cfg.ObjectStore.UseSSL,
			Region:          cfg.ObjectStore.Region,
		})
		if err != nil {
			return err
		}
		if err := objects.InitBucket(ctx); err != nil {
			return err
		}
		a.sinks = append(a.sinks, storage.NewObjectSink(objects, cfg.Output.SaveFormat, a.log.Logger))
	}

	if cfg.NATS.URL != "" {
		nc := events.DefaultNATSConfig()
		nc.URL = cfg.NATS.URL
		nc.Stream = cfg.NATS.Stream
		client, err := events.NewNATSClient(nc, a.log.Logger)
		if err != nil {
			return err
		}
		a.shutdown.Register("nats", func(context.Context) error { return client.Close() })

		a.events = events.NewPairEvents(client, cfg.NATS.Subject, a.log)
		if err := client.SetupStream(ctx, a.events.Subjects()...); err != nil {
			return err
		}
	}

	return nil
}

// urlCachePath places a relative cache file inside the output directory.
func (a *app) urlCachePath() string {
	p := a.cfg.Output.URLCache
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.cfg.Output.Directory, p)
}

func (a *app) close() {
	if err := a.shutdown.Shutdown(); err != nil {
		a.log.WithError(err).Warn("Shutdown finished with errors")
	}
}

// controller builds a crawl controller over the app's backends.
func (a *app) controller(opts ...crawler.Option) *crawler.Controller {
	opts = append([]crawler.Option{
		crawler.WithPageBuilder(classifier.NewExcerpter(a.cfg.LLM.ExcerptTokens)),
		crawler.WithURLStore(a.urlCache),
		crawler.WithLogger(a.log),
	}, opts...)
	if a.events != nil {
		opts = append(opts, crawler.WithObserver(a.events))
	}
	return crawler.NewController(crawlerConfig(a.cfg), a.renderer, a.oracle, opts...)
}

// crawlerConfig maps application config onto the crawl settings.
func crawlerConfig(cfg *config.Config) crawler.Config {
	cc := crawler.DefaultConfig()
	cr := cfg.Crawler

	cc.BlockingGuard = cr.BlockingGuard
	cc.URLDiscovery = cr.URLDiscovery
	cc.SearchEngineURL = cr.SearchEngine
	cc.Headless = cfg.Browser.Headless
	if cfg.Browser.Timeout > 0 {
		cc.NavigationTimeout = cfg.Browser.Timeout
	}
	cc.StepTimeout = cr.StepTimeout
	cc.QuiescentTimeout = cr.QuiescentTimeout

	cc.MaxBlockingWait = cr.MaxBlockingWait
	cc.RateLimitWait = cr.RateLimitWait
	cc.AccessDeniedWait = cr.AccessDeniedWait
	cc.ManualSolveGrace = cr.ManualSolveGrace
	cc.ChangeApproachDelay = cr.ChangeApproachDelay

	cc.NavAttempts = cr.NavAttempts
	cc.NavRetryDelay = cr.NavRetryDelay
	cc.MinDelay = cr.MinDelay
	cc.MaxDelay = cr.MaxDelay
	cc.PairMinDelay = cr.PairMinDelay
	cc.PairMaxDelay = cr.PairMaxDelay

	cc.Budgets = crawler.Budgets{
		MaxPages:      cr.MaxPages,
		MaxEmptyPages: cr.MaxEmptyPages,
		MaxRecords:    cr.MaxRecords,
	}
	return cc
}

// toTargets converts configured targets into crawl targets.
func toTargets(tcs []config.TargetConfig) []*crawler.Target {
	out := make([]*crawler.Target, 0, len(tcs))
	for _, tc := range tcs {
		out = append(out, &crawler.Target{
			Name:        tc.Name,
			BaseURL:     tc.BaseURL,
			Verified:    tc.Verified,
			SearchTerms: tc.SearchTerms,
		})
	}
	return out
}

// seedDiscovered applies cached URLs to targets and the controller's resolver.
// A cache that fails to load is logged and whatever loaded is used.
func (a *app) seedDiscovered(ctx context.Context, c *crawler.Controller, targets []*crawler.Target) {
	urls, err := a.urlCache.Load(ctx)
	if err != nil {
		a.log.WithError(err).Warn("Failed to load part of the discovered-URL cache")
	}
	if len(urls) == 0 {
		return
	}
	crawler.ApplyDiscovered(targets, urls)
	c.Resolver().Seed(urls)
	a.log.Info("Loaded discovered URLs", "count", len(urls))
}
