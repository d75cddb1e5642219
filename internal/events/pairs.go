package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/petmar2017/wealth-advisor-scraper/internal/crawler"
	"github.com/petmar2017/wealth-advisor-scraper/pkg/logger"
)

// Publisher sends an event to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, event any) error
}

// PairStartedEvent is published before a pair opens its session.
type PairStartedEvent struct {
	EventID   string    `json:"event_id"`
	RunID     string    `json:"run_id"`
	Target    string    `json:"target"`
	Filter    string    `json:"filter"`
	StartedAt time.Time `json:"started_at"`
}

// PairFinishedEvent is published once a pair has a final status.
type PairFinishedEvent struct {
	EventID            string    `json:"event_id"`
	RunID              string    `json:"run_id"`
	Target             string    `json:"target"`
	Filter             string    `json:"filter"`
	Status             string    `json:"status"`
	Outcome            string    `json:"outcome,omitempty"`
	RecordCount        int       `json:"record_count"`
	PagesVisited       int       `json:"pages_visited"`
	BlockingEncounters int       `json:"blocking_encounters"`
	DurationMs         int64     `json:"duration_ms"`
	Error              string    `json:"error,omitempty"`
	FinishedAt         time.Time `json:"finished_at"`
}

// Validate checks if the event has required fields.
func (e *PairFinishedEvent) Validate() error {
	if e.RunID == "" {
		return errors.New("run_id is required")
	}
	if e.Target == "" {
		return errors.New("target is required")
	}
	if e.Status == "" {
		return errors.New("status is required")
	}
	return nil
}

// RunFinishedEvent summarizes a whole run.
type RunFinishedEvent struct {
	EventID            string         `json:"event_id"`
	RunID              string         `json:"run_id"`
	TotalRecords       int            `json:"total_records"`
	RecordsByTarget    map[string]int `json:"records_by_target"`
	BlockingEncounters int            `json:"blocking_encounters"`
	FailedPairs        int            `json:"failed_pairs"`
	Interrupted        bool           `json:"interrupted"`
	FinishedAt         time.Time      `json:"finished_at"`
}

// PairEvents publishes pair lifecycle events. It implements crawler.PairObserver.
type PairEvents struct {
	pub     Publisher
	subject string
	log     *logger.Logger
	now     func() time.Time
}

// NewPairEvents publishes under "<subject>.started", "<subject>.finished"
// and "<subject>.run_finished".
func NewPairEvents(pub Publisher, subject string, log *logger.Logger) *PairEvents {
	if log == nil {
		log = logger.Default()
	}
	return &PairEvents{
		pub:     pub,
		subject: subject,
		log:     log.WithComponent("pair-events"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Subjects lists every subject PairEvents publishes on.
func (p *PairEvents) Subjects() []string {
	return []string{p.subject + ".started", p.subject + ".finished", p.subject + ".run_finished"}
}

func (p *PairEvents) PairStarted(ctx context.Context, runID string, target string, filter crawler.Filter) {
	p.publish(ctx, p.subject+".started", PairStartedEvent{
		EventID:   uuid.NewString(),
		RunID:     runID,
		Target:    target,
		Filter:    string(filter),
		StartedAt: p.now(),
	})
}

func (p *PairEvents) PairFinished(ctx context.Context, runID string, r crawler.PairResult) {
	ev := PairFinishedEvent{
		EventID:            uuid.NewString(),
		RunID:              runID,
		Target:             r.Target,
		Filter:             r.Filter,
		Status:             string(r.Status),
		Outcome:            string(r.Outcome),
		RecordCount:        r.RecordCount,
		PagesVisited:       r.PagesVisited,
		BlockingEncounters: r.BlockingEncounters,
		DurationMs:         r.Duration.Milliseconds(),
		Error:              r.Error,
		FinishedAt:         p.now(),
	}
	if err := ev.Validate(); err != nil {
		p.log.WithError(err).Warn("Dropping invalid pair event")
		return
	}
	p.publish(ctx, p.subject+".finished", ev)
}

// RunFinished publishes the run summary.
func (p *PairEvents) RunFinished(ctx context.Context, r *crawler.AggregateResult) {
	p.publish(ctx, p.subject+".run_finished", RunFinishedEvent{
		EventID:            uuid.NewString(),
		RunID:              r.RunID,
		TotalRecords:       len(r.Records),
		RecordsByTarget:    r.RecordsByTarget(),
		BlockingEncounters: r.BlockingEncounters,
		FailedPairs:        len(r.FailedPairs()),
		Interrupted:        r.Interrupted,
		FinishedAt:         p.now(),
	})
}

// publish never fails the crawl; errors are logged.
func (p *PairEvents) publish(ctx context.Context, subject string, event any) {
	// a cancelled run still reports its last pair
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.pub.Publish(pubCtx, subject, event); err != nil {
		p.log.WithError(err).Warn("Failed to publish event", "subject", subject)
	}
}
