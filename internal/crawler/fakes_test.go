package crawler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/petmar2017/wealth-advisor-scraper/internal/browser"
	"github.com/petmar2017/wealth-advisor-scraper/internal/classifier"
	"github.com/petmar2017/wealth-advisor-scraper/pkg/logger"
)

// fakeOracle answers from scripted queues. An exhausted queue yields the
// conservative judgment.
type fakeOracle struct {
	blocking      []classifier.BlockingAssessment
	blockedURLs   map[string]classifier.BlockingAssessment
	blockingErr   error
	blockingCalls int

	recommendation classifier.URLRecommendation
	recommendCalls int

	relevant       map[string]classifier.RelevanceVerdict
	relevanceCalls []string

	plans     []classifier.NavigationPlan
	planCalls int

	results      []bool
	resultsCalls int

	extractions  []classifier.ExtractionResult
	extractErr   error
	extractPanic bool
	extractCalls int

	pagination      []classifier.PaginationDecision
	paginationCalls int
}

func pop[T any](queue *[]T, fallback T) T {
	if len(*queue) == 0 {
		return fallback
	}
	v := (*queue)[0]
	*queue = (*queue)[1:]
	return v
}

func (o *fakeOracle) AssessBlocking(ctx context.Context, p classifier.Page) (classifier.BlockingAssessment, error) {
	o.blockingCalls++
	if o.blockingErr != nil {
		return classifier.NoBlocking(), o.blockingErr
	}
	if a, ok := o.blockedURLs[p.URL]; ok {
		return a, nil
	}
	return pop(&o.blocking, classifier.NoBlocking()), nil
}

func (o *fakeOracle) RecommendURL(ctx context.Context, target string, p classifier.Page) (classifier.URLRecommendation, error) {
	o.recommendCalls++
	return o.recommendation, nil
}

func (o *fakeOracle) AssessRelevance(ctx context.Context, target string, p classifier.Page) (classifier.RelevanceVerdict, error) {
	o.relevanceCalls = append(o.relevanceCalls, p.URL)
	return o.relevant[p.URL], nil
}

func (o *fakeOracle) PlanNavigation(ctx context.Context, target, filter string, p classifier.Page) (classifier.NavigationPlan, error) {
	o.planCalls++
	return pop(&o.plans, classifier.NavigationPlan{}), nil
}

func (o *fakeOracle) ConfirmResults(ctx context.Context, target, filter string, p classifier.Page) (classifier.ResultsVerdict, error) {
	o.resultsCalls++
	return classifier.ResultsVerdict{IsResults: pop(&o.results, false)}, nil
}

func (o *fakeOracle) Extract(ctx context.Context, target string, p classifier.Page) (classifier.ExtractionResult, error) {
	o.extractCalls++
	if o.extractPanic {
		o.extractPanic = false
		panic("extraction exploded")
	}
	if o.extractErr != nil {
		return classifier.ExtractionResult{}, o.extractErr
	}
	return pop(&o.extractions, classifier.ExtractionResult{}), nil
}

func (o *fakeOracle) PlanPagination(ctx context.Context, p classifier.Page) (classifier.PaginationDecision, error) {
	o.paginationCalls++
	return pop(&o.pagination, classifier.NoPagination()), nil
}

func blocked(action classifier.RecoveryAction, waitSeconds int) classifier.BlockingAssessment {
	return classifier.BlockingAssessment{
		Detected:    true,
		Kind:        classifier.KindCaptcha,
		Confidence:  classifier.ConfidenceHigh,
		Action:      action,
		WaitSeconds: waitSeconds,
	}
}

func listings(names ...string) classifier.ExtractionResult {
	r := classifier.ExtractionResult{HasListings: len(names) > 0}
	for _, n := range names {
		r.Entries = append(r.Entries, classifier.Entry{Name: n, Phone: "(555) 010-0000"})
	}
	return r
}

func nextButton(locator string) classifier.PaginationDecision {
	return classifier.PaginationDecision{
		HasMore:   true,
		Mechanism: classifier.MechanismNextButton,
		Action:    classifier.PageClick,
		Locator:   locator,
	}
}

func scrollMore() classifier.PaginationDecision {
	return classifier.PaginationDecision{
		HasMore:   true,
		Mechanism: classifier.MechanismInfiniteScroll,
		Action:    classifier.PageScroll,
	}
}

// fakeRenderer opens fakeSessions that share its page setup.
type fakeRenderer struct {
	status   map[string]int
	navErr   map[string]error
	elements map[browser.Locator]*fakeElement
	openErr  error
	sessions []*fakeSession
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		status:   map[string]int{},
		navErr:   map[string]error{},
		elements: map[browser.Locator]*fakeElement{},
	}
}

func (r *fakeRenderer) Open(ctx context.Context) (browser.Session, error) {
	if r.openErr != nil {
		return nil, r.openErr
	}
	s := r.session()
	r.sessions = append(r.sessions, s)
	return s, nil
}

func (r *fakeRenderer) session() *fakeSession {
	return &fakeSession{r: r, url: "about:blank", content: "<html><body></body></html>"}
}

func (r *fakeRenderer) add(loc browser.Locator) *fakeElement {
	el := &fakeElement{}
	r.elements[loc] = el
	return el
}

type fakeSession struct {
	r            *fakeRenderer
	url          string
	content      string
	navigations  []string
	finds        []browser.Locator
	scrollGrowth []int
	evaluations  int
	closed       bool
}

func pageFor(url string) string {
	return fmt.Sprintf("<html><head><title>%s</title></head><body><p>%s</p></body></html>", url, url)
}

func (s *fakeSession) Navigate(ctx context.Context, url string, timeout time.Duration) (*browser.Response, error) {
	if s.closed {
		return nil, browser.ErrSessionClosed
	}
	s.navigations = append(s.navigations, url)
	if err := s.r.navErr[url]; err != nil {
		return nil, err
	}
	s.url = url
	s.content = pageFor(url)
	status := 200
	if st, ok := s.r.status[url]; ok {
		status = st
	}
	return &browser.Response{Status: status, Content: s.content, FinalURL: url}, nil
}

func (s *fakeSession) Find(ctx context.Context, loc browser.Locator, timeout time.Duration) (browser.Element, error) {
	s.finds = append(s.finds, loc)
	if el, ok := s.r.elements[loc]; ok {
		el.session = s
		return el, nil
	}
	return nil, browser.ErrNotFound
}

func (s *fakeSession) Evaluate(ctx context.Context, script string, out any) error {
	s.evaluations++
	if len(s.scrollGrowth) > 0 {
		s.content += strings.Repeat("<p>row</p>", s.scrollGrowth[0])
		s.scrollGrowth = s.scrollGrowth[1:]
	}
	return nil
}

func (s *fakeSession) WaitQuiescent(ctx context.Context, timeout time.Duration) error { return nil }

func (s *fakeSession) Content(ctx context.Context) (string, error) {
	if s.closed {
		return "", browser.ErrSessionClosed
	}
	return s.content, nil
}

func (s *fakeSession) URL(ctx context.Context) (string, error) {
	if s.closed {
		return "", browser.ErrSessionClosed
	}
	return s.url, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeElement struct {
	session    *fakeSession
	fills      []string
	selects    []string
	presses    []string
	clicks     int
	clickErr   error
	navigateTo string
}

func (e *fakeElement) Fill(ctx context.Context, text string) error {
	e.fills = append(e.fills, text)
	return nil
}

func (e *fakeElement) Click(ctx context.Context) error {
	if e.clickErr != nil {
		return e.clickErr
	}
	e.clicks++
	if e.navigateTo != "" && e.session != nil {
		e.session.url = e.navigateTo
		e.session.content = pageFor(e.navigateTo)
	}
	return nil
}

func (e *fakeElement) Select(ctx context.Context, value string) error {
	e.selects = append(e.selects, value)
	return nil
}

func (e *fakeElement) Press(ctx context.Context, key string) error {
	e.presses = append(e.presses, key)
	return nil
}

// recordingSleeper returns immediately, remembering each requested delay.
// When cancel is set it is called once cancelAfter sleeps have happened.
type recordingSleeper struct {
	sleeps      []time.Duration
	cancelAfter int
	cancel      context.CancelFunc
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.sleeps = append(s.sleeps, d)
	if s.cancel != nil && len(s.sleeps) >= s.cancelAfter {
		s.cancel()
	}
	return ctx.Err()
}

type memoryURLStore struct {
	stored []map[string]string
	err    error
}

func (m *memoryURLStore) Store(ctx context.Context, urls map[string]string) error {
	m.stored = append(m.stored, urls)
	return m.err
}

type recordingObserver struct {
	started  []string
	finished []PairResult
}

func (o *recordingObserver) PairStarted(ctx context.Context, runID, target string, filter Filter) {
	o.started = append(o.started, target+"/"+string(filter))
}

func (o *recordingObserver) PairFinished(ctx context.Context, runID string, result PairResult) {
	o.finished = append(o.finished, result)
}

var errBoom = errors.New("boom")

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Budgets = Budgets{MaxPages: 10, MaxEmptyPages: 3, MaxRecords: 100}
	return cfg
}

// newTestController wires a controller around fakes with instant sleeps.
func newTestController(cfg Config, r *fakeRenderer, o *fakeOracle, opts ...Option) (*Controller, *recordingSleeper) {
	sleeper := &recordingSleeper{}
	pacer := NewPacerWith(sleeper, rand.New(rand.NewPCG(7, 11)))
	opts = append([]Option{WithPacer(pacer), WithLogger(logger.Discard()), WithRunID("test-run")}, opts...)
	return NewController(cfg, r, o, opts...), sleeper
}

func verifiedTarget() *Target {
	return &Target{Name: "Acme", BaseURL: "https://acme.example/advisors", Verified: true}
}
