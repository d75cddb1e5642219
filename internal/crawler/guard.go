package crawler

import (
	"context"
	"time"

	"github.com/petmar2017/wealth-advisor-scraper/internal/browser"
	"github.com/petmar2017/wealth-advisor-scraper/internal/classifier"
	"github.com/petmar2017/wealth-advisor-scraper/pkg/logger"
)

// GuardConfig controls blocking detection and recovery.
type GuardConfig struct {
	Enabled             bool
	MaxWait             time.Duration
	DefaultWait         time.Duration
	RateLimitWait       time.Duration
	AccessDeniedWait    time.Duration
	ManualSolveGrace    time.Duration
	ChangeApproachDelay time.Duration
	Headless            bool
}

// Guard wraps renderer actions with blocking detection and recovery.
type Guard struct {
	cfg    GuardConfig
	oracle classifier.Oracle
	pages  PageBuilder
	pacer  *Pacer
	log    *logger.Logger

	encounters int
	lastAction classifier.RecoveryAction
}

// NewGuard creates a guard.
func NewGuard(cfg GuardConfig, oracle classifier.Oracle, pages PageBuilder, pacer *Pacer, log *logger.Logger) *Guard {
	return &Guard{
		cfg:        cfg,
		oracle:     oracle,
		pages:      pages,
		pacer:      pacer,
		log:        log.WithComponent("blocking-guard"),
		lastAction: classifier.ActionNone,
	}
}

// Encounters returns the number of blocking pages detected so far.
func (g *Guard) Encounters() int {
	return g.encounters
}

// LastAction returns the recovery action taken by the most recent check, or
// ActionNone if the page was clean.
func (g *Guard) LastAction() classifier.RecoveryAction {
	return g.lastAction
}

// Visit performs action and then checks the resulting page. A failed action
// is not a blocking encounter but still fails the visit.
func (g *Guard) Visit(ctx context.Context, sess browser.Session, action func(ctx context.Context) error) bool {
	g.lastAction = classifier.ActionNone
	if err := action(ctx); err != nil {
		g.log.WithContext(ctx).WithError(err).Warn("Guarded action failed")
		return false
	}
	return g.Check(ctx, sess)
}

// Check classifies the current page and runs recovery when it is blocked.
// It returns true when the page is usable.
func (g *Guard) Check(ctx context.Context, sess browser.Session) bool {
	g.lastAction = classifier.ActionNone
	if !g.cfg.Enabled {
		return true
	}
	log := g.log.WithContext(ctx)

	assessment, ok := g.assess(ctx, sess)
	if !ok {
		return false
	}
	if !assessment.Detected {
		return true
	}

	g.encounters++
	g.lastAction = assessment.Action
	log.Warn("Blocking detected",
		"kind", assessment.Kind,
		"confidence", assessment.Confidence,
		"action", assessment.Action,
		"notes", assessment.Notes,
	)

	switch assessment.Action {
	case classifier.ActionChangeApproach:
		log.Info("Changing approach", "delay", g.cfg.ChangeApproachDelay)
		_ = g.pacer.Sleep(ctx, g.cfg.ChangeApproachDelay)
		return false

	case classifier.ActionManualSolve:
		if g.cfg.Headless {
			log.Warn("Manual solve requested while running headless; waiting anyway", "grace", g.cfg.ManualSolveGrace)
		} else {
			log.Info("Waiting for manual solve", "grace", g.cfg.ManualSolveGrace)
		}
		if err := g.pacer.Sleep(ctx, g.cfg.ManualSolveGrace); err != nil {
			return false
		}

	default:
		wait := g.waitFor(assessment)
		log.Info("Waiting before re-checking", "wait", wait)
		if err := g.pacer.Sleep(ctx, wait); err != nil {
			return false
		}
	}

	again, ok := g.assess(ctx, sess)
	if !ok {
		return false
	}
	if again.Detected {
		log.Warn("Still blocked after recovery", "kind", again.Kind)
		return false
	}
	log.Info("Blocking cleared")
	return true
}

// assess snapshots the page and classifies it. A transport error from the
// oracle counts as a clean page; a page that cannot be read fails the check.
func (g *Guard) assess(ctx context.Context, sess browser.Session) (classifier.BlockingAssessment, bool) {
	page, err := snapshot(ctx, sess, g.pages)
	if err != nil {
		g.log.WithContext(ctx).WithError(err).Warn("Could not read page for blocking check")
		return classifier.NoBlocking(), false
	}
	a, err := g.oracle.AssessBlocking(ctx, page)
	if err != nil {
		g.log.WithContext(ctx).WithError(err).Warn("Blocking classification failed; assuming clean page")
		return classifier.NoBlocking(), true
	}
	return a, true
}

// waitFor picks the recovery wait: the oracle's suggestion, else the default
// for the blocking kind, never more than MaxWait.
func (g *Guard) waitFor(a classifier.BlockingAssessment) time.Duration {
	wait := time.Duration(a.WaitSeconds) * time.Second
	if wait <= 0 {
		switch a.Kind {
		case classifier.KindRateLimit:
			wait = g.cfg.RateLimitWait
		case classifier.KindAccessDenied:
			wait = g.cfg.AccessDeniedWait
		default:
			wait = g.cfg.DefaultWait
		}
	}
	if g.cfg.MaxWait > 0 && wait > g.cfg.MaxWait {
		wait = g.cfg.MaxWait
	}
	return wait
}
