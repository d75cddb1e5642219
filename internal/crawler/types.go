// Package crawler drives a browser session through advisor directory sites:
// it resolves entry URLs, reaches a filtered result view, walks result pages
// and extracts records, recovering from blocking pages along the way.
package crawler

import (
	"context"
	"time"

	"github.com/petmar2017/wealth-advisor-scraper/internal/browser"
	"github.com/petmar2017/wealth-advisor-scraper/internal/classifier"
)

// Target is a directory site. Verified is set only after BaseURL has passed
// both a reachability and a relevance check.
type Target struct {
	Name        string `json:"name"`
	BaseURL     string `json:"base_url"`
	Verified    bool   `json:"verified"`
	SearchTerms string `json:"search_terms"`
}

// Filter is the search criterion applied within one pair, usually a state.
type Filter string

// Record is one normalized advisor listing. Fields are never absent; missing
// values are empty strings.
type Record struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Email  string `json:"email"`
	Source string `json:"company"`
	URL    string `json:"url"`
}

// RunState holds the counters of one (target, filter) pair.
type RunState struct {
	PagesVisited          int
	ConsecutiveEmptyPages int
	Records               []Record
	BlockingEncounters    int
}

// Budgets bound a pagination walk.
type Budgets struct {
	MaxPages      int
	MaxEmptyPages int
	MaxRecords    int
}

// PairStatus is the final state of one pair.
type PairStatus string

const (
	PairCompleted   PairStatus = "completed"
	PairFailed      PairStatus = "failed"
	PairSkipped     PairStatus = "skipped"
	PairInterrupted PairStatus = "interrupted"
)

// PairResult summarizes one (target, filter) pair.
type PairResult struct {
	Target             string        `json:"target"`
	Filter             string        `json:"filter"`
	Status             PairStatus    `json:"status"`
	Outcome            WalkOutcome   `json:"outcome"`
	Records            []Record      `json:"-"`
	RecordCount        int           `json:"record_count"`
	PagesVisited       int           `json:"pages_visited"`
	BlockingEncounters int           `json:"blocking_encounters"`
	Duration           time.Duration `json:"duration"`
	Err                error         `json:"-"`
	Error              string        `json:"error,omitempty"`
}

// AggregateResult is the accumulated output of a run.
type AggregateResult struct {
	RunID              string            `json:"run_id"`
	StartedAt          time.Time         `json:"started_at"`
	FinishedAt         time.Time         `json:"finished_at"`
	Records            []Record          `json:"-"`
	BlockingEncounters int               `json:"blocking_encounters"`
	DiscoveredURLs     map[string]string `json:"discovered_urls"`
	Pairs              []PairResult      `json:"pairs"`
	Interrupted        bool              `json:"interrupted"`
}

// RecordsByTarget counts records per target name.
func (a *AggregateResult) RecordsByTarget() map[string]int {
	counts := make(map[string]int)
	for _, r := range a.Records {
		counts[r.Source]++
	}
	return counts
}

// FailedPairs returns the pairs that did not complete.
func (a *AggregateResult) FailedPairs() []PairResult {
	var out []PairResult
	for _, p := range a.Pairs {
		if p.Status == PairFailed || p.Status == PairSkipped {
			out = append(out, p)
		}
	}
	return out
}

// PageBuilder turns a rendered document into the oracle's view of it.
type PageBuilder interface {
	Page(url, html string) classifier.Page
}

// URLStore persists the discovered-URL cache. Store replaces the persisted
// set, so targets missing from urls are dropped.
type URLStore interface {
	Store(ctx context.Context, urls map[string]string) error
}

// PairObserver is told about pair progress.
type PairObserver interface {
	PairStarted(ctx context.Context, runID string, target string, filter Filter)
	PairFinished(ctx context.Context, runID string, result PairResult)
}

// snapshot reads the session's current document into an oracle page.
func snapshot(ctx context.Context, sess browser.Session, pages PageBuilder) (classifier.Page, error) {
	html, err := sess.Content(ctx)
	if err != nil {
		return classifier.Page{}, err
	}
	url, err := sess.URL(ctx)
	if err != nil {
		return classifier.Page{}, err
	}
	return pages.Page(url, html), nil
}
