package crawler

import (
	"context"
	"time"

	"github.com/petmar2017/wealth-advisor-scraper/internal/browser"
	"github.com/petmar2017/wealth-advisor-scraper/internal/classifier"
	"github.com/petmar2017/wealth-advisor-scraper/pkg/logger"
)

// WalkOutcome says why a pagination walk stopped.
type WalkOutcome string

const (
	// StopExhausted means the advance control could not be used or made no progress.
	StopExhausted    WalkOutcome = "exhausted"
	StopEmptyBudget  WalkOutcome = "empty_budget"
	StopRecordBudget WalkOutcome = "record_budget"
	StopPageBudget   WalkOutcome = "page_budget"
	StopNoMore       WalkOutcome = "no_more"
	StopBlocked      WalkOutcome = "blocked"
	StopCancelled    WalkOutcome = "cancelled"
)

const scrollToBottom = `window.scrollTo(0, document.body.scrollHeight)`

// PaginatorConfig controls the walk's pacing.
type PaginatorConfig struct {
	MinDelay         time.Duration
	MaxDelay         time.Duration
	StepTimeout      time.Duration
	QuiescentTimeout time.Duration
}

// Paginator walks the pages of a result view.
type Paginator struct {
	cfg       PaginatorConfig
	oracle    classifier.Oracle
	pages     PageBuilder
	guard     *Guard
	extractor *Extractor
	pacer     *Pacer
	log       *logger.Logger
}

// NewPaginator creates a paginator.
func NewPaginator(cfg PaginatorConfig, oracle classifier.Oracle, pages PageBuilder, guard *Guard, extractor *Extractor, pacer *Pacer, log *logger.Logger) *Paginator {
	return &Paginator{
		cfg:       cfg,
		oracle:    oracle,
		pages:     pages,
		guard:     guard,
		extractor: extractor,
		pacer:     pacer,
		log:       log.WithComponent("paginator"),
	}
}

// Walk extracts records page by page into rs until a budget is reached, the
// result set ends or the page blocks.
func (p *Paginator) Walk(ctx context.Context, sess browser.Session, t *Target, rs *RunState, b Budgets) WalkOutcome {
	log := p.log.WithContext(ctx)

	for rs.PagesVisited < b.MaxPages {
		if ctx.Err() != nil {
			return StopCancelled
		}
		rs.PagesVisited++

		records := p.extractor.Extract(ctx, sess, t)
		if len(records) == 0 {
			rs.ConsecutiveEmptyPages++
			log.Info("Empty page", "page", rs.PagesVisited, "consecutive", rs.ConsecutiveEmptyPages)
			if rs.ConsecutiveEmptyPages >= b.MaxEmptyPages {
				return StopEmptyBudget
			}
		} else {
			rs.ConsecutiveEmptyPages = 0
			room := max(b.MaxRecords-len(rs.Records), 0)
			if len(records) > room {
				records = records[:room]
			}
			rs.Records = append(rs.Records, records...)
			log.Info("Page extracted", "page", rs.PagesVisited, "records", len(records), "total", len(rs.Records))
		}
		if len(rs.Records) >= b.MaxRecords {
			return StopRecordBudget
		}
		if rs.PagesVisited >= b.MaxPages {
			break
		}

		if outcome, ok := p.advance(ctx, sess); !ok {
			return outcome
		}

		if err := p.pacer.Jitter(ctx, p.cfg.MinDelay, p.cfg.MaxDelay); err != nil {
			return StopCancelled
		}
	}
	return StopPageBudget
}

// advance moves to the next batch of results. It reports false with the
// stop outcome when the walk cannot continue.
func (p *Paginator) advance(ctx context.Context, sess browser.Session) (WalkOutcome, bool) {
	log := p.log.WithContext(ctx)

	page, err := snapshot(ctx, sess, p.pages)
	if err != nil {
		log.WithError(err).Warn("Could not read page for pagination")
		return StopExhausted, false
	}
	decision, err := p.oracle.PlanPagination(ctx, page)
	if err != nil {
		log.WithError(err).Warn("Pagination planning failed")
		return StopNoMore, false
	}
	if !decision.HasMore {
		return StopNoMore, false
	}

	switch decision.Action {
	case classifier.PageClick:
		if decision.Locator == "" {
			return StopExhausted, false
		}
		loc := browser.Locator(decision.Locator)
		el, err := sess.Find(ctx, loc, p.cfg.StepTimeout)
		if err != nil && loc.Kind() != browser.KindText {
			el, err = sess.Find(ctx, loc.AsText(), p.cfg.StepTimeout)
		}
		if err != nil {
			log.Info("Pagination control not found", "locator", loc)
			return StopExhausted, false
		}
		if err := el.Click(ctx); err != nil {
			log.WithError(err).Info("Pagination control not clickable", "locator", loc)
			return StopExhausted, false
		}
		_ = sess.WaitQuiescent(ctx, p.cfg.QuiescentTimeout)
		if outcome, ok := p.checkAdvanced(ctx, sess); !ok {
			return outcome, false
		}
		log.Debug("Advanced by click", "mechanism", decision.Mechanism)

	case classifier.PageScroll:
		before, err := sess.Content(ctx)
		if err != nil {
			return StopExhausted, false
		}
		if err := sess.Evaluate(ctx, scrollToBottom, nil); err != nil {
			log.WithError(err).Info("Scroll failed")
			return StopExhausted, false
		}
		_ = sess.WaitQuiescent(ctx, p.cfg.QuiescentTimeout)
		if outcome, ok := p.checkAdvanced(ctx, sess); !ok {
			return outcome, false
		}
		after, err := sess.Content(ctx)
		if err != nil || len(after) <= len(before) {
			log.Info("Scrolling loaded nothing new")
			return StopExhausted, false
		}

	default:
		return StopNoMore, false
	}
	return "", true
}

// checkAdvanced runs the guard on the page reached by an advance.
func (p *Paginator) checkAdvanced(ctx context.Context, sess browser.Session) (WalkOutcome, bool) {
	if p.guard.Check(ctx, sess) {
		return "", true
	}
	if ctx.Err() != nil {
		return StopCancelled, false
	}
	return StopBlocked, false
}
