package crawler

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/petmar2017/wealth-advisor-scraper/internal/browser"
	"github.com/petmar2017/wealth-advisor-scraper/internal/classifier"
	"github.com/petmar2017/wealth-advisor-scraper/pkg/logger"
)

// ResolverConfig controls entry URL discovery.
type ResolverConfig struct {
	Enabled           bool
	SearchEngineURL   string
	NavigationTimeout time.Duration
}

var errSearchUnavailable = errors.New("search page unavailable")

// Resolver finds a verified entry URL for a target.
type Resolver struct {
	cfg    ResolverConfig
	oracle classifier.Oracle
	pages  PageBuilder
	guard  *Guard
	log    *logger.Logger

	discovered map[string]string
	// dirty is set when discovered changed since it was last persisted.
	dirty bool
}

// NewResolver creates a resolver.
func NewResolver(cfg ResolverConfig, oracle classifier.Oracle, pages PageBuilder, guard *Guard, log *logger.Logger) *Resolver {
	return &Resolver{
		cfg:        cfg,
		oracle:     oracle,
		pages:      pages,
		guard:      guard,
		log:        log.WithComponent("endpoint-resolver"),
		discovered: make(map[string]string),
	}
}

// Seed adds previously discovered URLs to the cache.
func (r *Resolver) Seed(urls map[string]string) {
	for name, u := range urls {
		r.discovered[name] = u
	}
}

// Forget drops a discovered URL that turned out to be broken.
func (r *Resolver) Forget(name string) {
	if _, ok := r.discovered[name]; ok {
		delete(r.discovered, name)
		r.dirty = true
	}
}

// Discovered returns a copy of the discovered-URL cache.
func (r *Resolver) Discovered() map[string]string {
	out := make(map[string]string, len(r.discovered))
	for k, v := range r.discovered {
		out[k] = v
	}
	return out
}

// Resolve returns the target's entry URL, discovering and verifying one when
// the target is not verified yet.
func (r *Resolver) Resolve(ctx context.Context, sess browser.Session, t *Target) (string, error) {
	if t.Verified && t.BaseURL != "" {
		return t.BaseURL, nil
	}
	if !r.cfg.Enabled {
		if t.BaseURL == "" {
			return "", &ResolveError{Target: t.Name}
		}
		return t.BaseURL, nil
	}

	log := r.log.WithContext(ctx).WithFields(map[string]any{"target": t.Name})
	log.Info("Discovering entry URL", "search_terms", t.SearchTerms)

	searchURL := r.cfg.SearchEngineURL + url.QueryEscape(r.searchTerms(t))
	ok := r.guard.Visit(ctx, sess, func(ctx context.Context) error {
		_, err := sess.Navigate(ctx, searchURL, r.cfg.NavigationTimeout)
		return err
	})
	if !ok {
		return "", &ResolveError{Target: t.Name, Cause: errSearchUnavailable}
	}
	searchPage, err := snapshot(ctx, sess, r.pages)
	if err != nil {
		return "", &ResolveError{Target: t.Name, Cause: err}
	}

	rec, err := r.oracle.RecommendURL(ctx, t.Name, searchPage)
	if err != nil {
		log.WithError(err).Warn("URL recommendation failed")
	}
	candidates := rec.Candidates()
	log.Info("Verifying candidates", "count", len(candidates), "confidence", rec.Confidence)

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if r.verify(ctx, sess, t, candidate) {
			t.BaseURL = candidate
			t.Verified = true
			r.discovered[t.Name] = candidate
			r.dirty = true
			log.Info("Entry URL verified", "url", candidate)
			return candidate, nil
		}
	}
	return "", &ResolveError{Target: t.Name, Candidates: len(candidates)}
}

func (r *Resolver) searchTerms(t *Target) string {
	if s := strings.TrimSpace(t.SearchTerms); s != "" {
		return s
	}
	return t.Name + " financial advisor directory"
}

// verify navigates to candidate and requires a non-error status and a
// relevance verdict that passes.
func (r *Resolver) verify(ctx context.Context, sess browser.Session, t *Target, candidate string) bool {
	log := r.log.WithContext(ctx).WithFields(map[string]any{"target": t.Name, "url": candidate})

	var status int
	ok := r.guard.Visit(ctx, sess, func(ctx context.Context) error {
		resp, err := sess.Navigate(ctx, candidate, r.cfg.NavigationTimeout)
		if err != nil {
			return err
		}
		status = resp.Status
		return nil
	})
	if !ok {
		log.Debug("Candidate unreachable or blocked")
		return false
	}
	if status >= 400 {
		log.Debug("Candidate returned error status", "status", status)
		return false
	}

	page, err := snapshot(ctx, sess, r.pages)
	if err != nil {
		log.WithError(err).Warn("Could not read candidate page")
		return false
	}
	verdict, err := r.oracle.AssessRelevance(ctx, t.Name, page)
	if err != nil {
		log.WithError(err).Warn("Relevance check failed")
		return false
	}
	if !verdict.Passes() {
		log.Debug("Candidate not relevant", "relevant", verdict.IsRelevant, "confidence", verdict.Confidence)
		return false
	}
	return true
}

// ApplyDiscovered marks targets with a cached URL as verified.
func ApplyDiscovered(targets []*Target, urls map[string]string) {
	for _, t := range targets {
		if u, ok := urls[t.Name]; ok && u != "" {
			t.BaseURL = u
			t.Verified = true
		}
	}
}
