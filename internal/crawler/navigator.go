package crawler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/petmar2017/wealth-advisor-scraper/internal/browser"
	"github.com/petmar2017/wealth-advisor-scraper/internal/classifier"
	"github.com/petmar2017/wealth-advisor-scraper/pkg/logger"
)

// NavState is a stage of reaching a filtered result view.
type NavState int

const (
	NavInit NavState = iota
	NavEntryResolved
	NavNavigated
	NavPlanExecuted
	NavResultsConfirmed
	NavFallbackAttempted
	NavSuccess
	NavFailure
)

func (s NavState) String() string {
	switch s {
	case NavInit:
		return "init"
	case NavEntryResolved:
		return "entry_resolved"
	case NavNavigated:
		return "navigated"
	case NavPlanExecuted:
		return "plan_executed"
	case NavResultsConfirmed:
		return "results_confirmed"
	case NavFallbackAttempted:
		return "fallback_attempted"
	case NavSuccess:
		return "success"
	case NavFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Inputs probed, in order, by the generic search fallback.
var fallbackInputs = []browser.Locator{
	browser.CSS("input[placeholder*='location' i]"),
	browser.CSS("input[placeholder*='city' i]"),
	browser.CSS("input[placeholder*='state' i]"),
	browser.CSS("input[name*='location' i]"),
	browser.CSS("input[id*='location' i]"),
	browser.CSS("input[type='search']"),
	browser.CSS("input[name*='search']"),
	browser.CSS("#location"),
	browser.CSS("#search"),
	browser.CSS(".search-input"),
}

var fallbackSubmits = []browser.Locator{
	browser.CSS("button[type='submit']"),
	browser.CSS("input[type='submit']"),
	browser.Text("Search"),
	browser.Text("Find"),
	browser.Text("Go"),
}

// NavigatorConfig controls how the filtered view is reached.
type NavigatorConfig struct {
	NavigationTimeout time.Duration
	StepTimeout       time.Duration
	ProbeTimeout      time.Duration
	QuiescentTimeout  time.Duration
}

// Navigator drives a session from a target's entry URL to the result view
// for one filter.
type Navigator struct {
	cfg      NavigatorConfig
	oracle   classifier.Oracle
	pages    PageBuilder
	guard    *Guard
	resolver *Resolver
	log      *logger.Logger

	trace []NavState
}

// NewNavigator creates a navigator.
func NewNavigator(cfg NavigatorConfig, oracle classifier.Oracle, pages PageBuilder, guard *Guard, resolver *Resolver, log *logger.Logger) *Navigator {
	return &Navigator{
		cfg:      cfg,
		oracle:   oracle,
		pages:    pages,
		guard:    guard,
		resolver: resolver,
		log:      log.WithComponent("navigator"),
	}
}

// LastTrace returns the states visited by the most recent ReachFilteredView.
func (n *Navigator) LastTrace() []NavState {
	return append([]NavState(nil), n.trace...)
}

func (n *Navigator) enter(ctx context.Context, s NavState) {
	n.trace = append(n.trace, s)
	n.log.WithContext(ctx).Debug("Navigation state", "state", s.String())
}

// ReachFilteredView navigates to the result view for filter. It returns false
// without an error when the view could not be reached, and an error wrapping
// ErrEndpointNotFound when the target has no usable entry URL.
func (n *Navigator) ReachFilteredView(ctx context.Context, sess browser.Session, t *Target, f Filter) (bool, error) {
	n.trace = n.trace[:0]
	n.enter(ctx, NavInit)
	log := n.log.WithContext(ctx).WithPair(t.Name, string(f))

	entry, err := n.resolver.Resolve(ctx, sess, t)
	if err != nil {
		n.enter(ctx, NavFailure)
		return false, err
	}
	n.enter(ctx, NavEntryResolved)

	reached, status := n.open(ctx, sess, entry)
	if status >= 400 || n.guard.LastAction() == classifier.ActionChangeApproach {
		log.Warn("Entry URL unusable; rediscovering", "url", entry, "status", status, "blocked", !reached)
		t.Verified = false
		n.resolver.Forget(t.Name)
		if entry, err = n.resolver.Resolve(ctx, sess, t); err != nil {
			n.enter(ctx, NavFailure)
			return false, err
		}
		reached, status = n.open(ctx, sess, entry)
	}
	if !reached || status >= 400 {
		log.Warn("Entry URL not usable", "url", entry, "status", status)
		n.enter(ctx, NavFailure)
		return false, nil
	}
	n.enter(ctx, NavNavigated)

	page, err := snapshot(ctx, sess, n.pages)
	if err != nil {
		n.enter(ctx, NavFailure)
		return false, nil
	}
	plan, err := n.oracle.PlanNavigation(ctx, t.Name, string(f), page)
	if err != nil {
		log.WithError(err).Warn("Navigation planning failed")
	}

	if len(plan.Steps) > 0 {
		log.Info("Executing navigation plan", "strategy", plan.Strategy, "steps", len(plan.Steps))
		if !n.execute(ctx, sess, plan.Steps, f) {
			n.enter(ctx, NavFailure)
			return false, nil
		}
		n.enter(ctx, NavPlanExecuted)

		if !n.guard.Check(ctx, sess) {
			n.enter(ctx, NavFailure)
			return false, nil
		}
		if n.confirm(ctx, sess, t, f) {
			n.enter(ctx, NavResultsConfirmed)
			n.enter(ctx, NavSuccess)
			return true, nil
		}
		log.Info("Results not confirmed; trying generic search")
	}

	n.enter(ctx, NavFallbackAttempted)
	if n.fallback(ctx, sess, f) {
		n.enter(ctx, NavSuccess)
		return true, nil
	}
	n.enter(ctx, NavFailure)
	return false, nil
}

// open navigates to the entry URL under the guard. reached is false when the
// navigation failed or the guard gave up; status is kept either way.
func (n *Navigator) open(ctx context.Context, sess browser.Session, entry string) (reached bool, status int) {
	reached = n.guard.Visit(ctx, sess, func(ctx context.Context) error {
		resp, err := sess.Navigate(ctx, entry, n.cfg.NavigationTimeout)
		if err != nil {
			return err
		}
		status = resp.Status
		return nil
	})
	return reached, status
}

func (n *Navigator) confirm(ctx context.Context, sess browser.Session, t *Target, f Filter) bool {
	page, err := snapshot(ctx, sess, n.pages)
	if err != nil {
		return false
	}
	verdict, err := n.oracle.ConfirmResults(ctx, t.Name, string(f), page)
	if err != nil {
		n.log.WithContext(ctx).WithError(err).Warn("Results confirmation failed")
		return false
	}
	return verdict.IsResults
}

// execute runs the plan steps in order. Step failures are skipped; a failed
// guard check after a click or navigate aborts the plan.
func (n *Navigator) execute(ctx context.Context, sess browser.Session, steps []classifier.NavigationStep, f Filter) bool {
	log := n.log.WithContext(ctx)
	for i, step := range steps {
		if ctx.Err() != nil {
			return false
		}
		value := substituteFilter(step.Value, f)
		stepLog := log.WithFields(map[string]any{"step": i + 1, "action": step.Action, "locator": step.Locator})

		switch step.Action {
		case classifier.StepNavigate:
			target := value
			if target == "" {
				target = step.Locator
			}
			if _, err := sess.Navigate(ctx, target, n.cfg.NavigationTimeout); err != nil {
				stepLog.WithError(err).Warn("Step failed")
				continue
			}
			if !n.guard.Check(ctx, sess) {
				return false
			}

		case classifier.StepClick:
			el, err := n.find(ctx, sess, browser.Locator(step.Locator))
			if err != nil {
				stepLog.WithError(err).Warn("Step skipped")
				continue
			}
			if err := el.Click(ctx); err != nil {
				stepLog.WithError(err).Warn("Step failed")
				continue
			}
			_ = sess.WaitQuiescent(ctx, n.cfg.QuiescentTimeout)
			if !n.guard.Check(ctx, sess) {
				return false
			}

		case classifier.StepFill, classifier.StepSelect:
			el, err := n.find(ctx, sess, browser.Locator(step.Locator))
			if err != nil {
				stepLog.WithError(err).Warn("Step skipped")
				continue
			}
			if step.Action == classifier.StepFill {
				err = el.Fill(ctx, value)
			} else {
				err = el.Select(ctx, value)
			}
			if err != nil {
				stepLog.WithError(err).Warn("Step failed")
			}
		}
	}
	return true
}

// find resolves loc, falling back to matching its value as visible text.
func (n *Navigator) find(ctx context.Context, sess browser.Session, loc browser.Locator) (browser.Element, error) {
	el, err := sess.Find(ctx, loc, n.cfg.StepTimeout)
	if err == nil || !errors.Is(err, browser.ErrNotFound) || loc.Kind() == browser.KindText {
		return el, err
	}
	return sess.Find(ctx, loc.AsText(), n.cfg.StepTimeout)
}

// fallback looks for a generic search input, fills it with the filter and
// submits it. Any successful submission counts as success.
func (n *Navigator) fallback(ctx context.Context, sess browser.Session, f Filter) bool {
	log := n.log.WithContext(ctx)
	if !n.guard.Check(ctx, sess) {
		return false
	}

	for _, loc := range fallbackInputs {
		input, err := sess.Find(ctx, loc, n.cfg.ProbeTimeout)
		if err != nil {
			continue
		}
		if err := input.Fill(ctx, string(f)); err != nil {
			log.WithError(err).Debug("Fallback input not fillable", "locator", loc)
			continue
		}
		log.Info("Filled generic search input", "locator", loc)

		submitted := false
		for _, s := range fallbackSubmits {
			btn, err := sess.Find(ctx, s, n.cfg.ProbeTimeout)
			if err != nil {
				continue
			}
			if err := btn.Click(ctx); err == nil {
				submitted = true
				break
			}
		}
		if !submitted {
			if err := input.Press(ctx, "Enter"); err != nil {
				log.WithError(err).Warn("Could not submit generic search")
				return false
			}
		}

		_ = sess.WaitQuiescent(ctx, n.cfg.QuiescentTimeout)
		n.guard.Check(ctx, sess)
		return true
	}

	log.Warn("No generic search input found")
	return false
}

func substituteFilter(value string, f Filter) string {
	r := strings.NewReplacer("{filter}", string(f), "{state}", string(f))
	return r.Replace(value)
}
