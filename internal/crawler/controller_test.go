package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petmar2017/wealth-advisor-scraper/internal/browser"
	"github.com/petmar2017/wealth-advisor-scraper/internal/classifier"
)

// withGenericSearch gives every page a fillable search box so navigation
// succeeds through the generic fallback.
func withGenericSearch(r *fakeRenderer) *fakeRenderer {
	r.add(browser.CSS("#search"))
	return r
}

func TestRunAll_PairOrderAndSessions(t *testing.T) {
	r := withGenericSearch(newFakeRenderer())
	o := &fakeOracle{extractions: []classifier.ExtractionResult{
		listings("a1"), listings("a2"), listings("b1"), listings("b2"),
	}}
	obs := &recordingObserver{}
	c, sleeper := newTestController(testConfig(), r, o, WithObserver(obs))

	targets := []*Target{
		{Name: "Acme", BaseURL: "https://acme.example", Verified: true},
		{Name: "Beta", BaseURL: "https://beta.example", Verified: true},
	}
	agg := c.RunAll(context.Background(), targets, []Filter{"Ohio", "Texas"})

	assert.Equal(t, "test-run", agg.RunID)
	assert.False(t, agg.Interrupted)
	assert.Equal(t, []string{"Acme/Ohio", "Acme/Texas", "Beta/Ohio", "Beta/Texas"}, obs.started)
	require.Len(t, agg.Pairs, 4)
	for _, p := range agg.Pairs {
		assert.Equal(t, PairCompleted, p.Status)
		assert.Equal(t, StopNoMore, p.Outcome)
	}
	require.Len(t, agg.Records, 4)
	assert.Equal(t, "a1", agg.Records[0].Name)
	assert.Equal(t, map[string]int{"Acme": 2, "Beta": 2}, agg.RecordsByTarget())

	require.Len(t, r.sessions, 4, "one session per pair")
	for _, s := range r.sessions {
		assert.True(t, s.closed)
	}

	require.Len(t, sleeper.sleeps, 3, "jitter between pairs only")
	for _, d := range sleeper.sleeps {
		assert.GreaterOrEqual(t, d, 10*time.Second)
		assert.LessOrEqual(t, d, 20*time.Second)
	}
	require.Len(t, obs.finished, 4)
	assert.Equal(t, 1, obs.finished[0].RecordCount)
}

func TestRunPair_BlockedDuringPagingFailsPair(t *testing.T) {
	const page2 = "https://acme.example/advisors?page=2"
	r := withGenericSearch(newFakeRenderer())
	r.add(browser.CSS("a.next")).navigateTo = page2
	o := &fakeOracle{
		extractions: []classifier.ExtractionResult{listings("Jane Doe", "John Roe")},
		pagination:  []classifier.PaginationDecision{nextButton("a.next")},
		blockedURLs: map[string]classifier.BlockingAssessment{page2: blocked(classifier.ActionChangeApproach, 0)},
	}
	c, _ := newTestController(testConfig(), r, o)

	agg := c.RunAll(context.Background(), []*Target{verifiedTarget()}, []Filter{"Ohio"})

	require.Len(t, agg.Pairs, 1)
	pair := agg.Pairs[0]
	assert.Equal(t, PairFailed, pair.Status)
	assert.Equal(t, StopBlocked, pair.Outcome)
	assert.True(t, errors.Is(pair.Err, ErrBlocked))
	assert.Equal(t, 2, pair.RecordCount)
	assert.Len(t, agg.Records, 2)
	assert.Equal(t, 1, o.planCalls, "the pair is not retried")
	assert.Len(t, r.sessions, 1)
	assert.Equal(t, 1, agg.BlockingEncounters)
	assert.Equal(t, 1, pair.BlockingEncounters)
}

func TestRunPair_NavigationRetries(t *testing.T) {
	r := newFakeRenderer()
	o := &fakeOracle{}
	c, sleeper := newTestController(testConfig(), r, o)

	result := c.RunPair(context.Background(), verifiedTarget(), "Ohio")

	assert.Equal(t, PairFailed, result.Status)
	assert.True(t, errors.Is(result.Err, ErrNavigationFailed))
	assert.Equal(t, 3, o.planCalls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, sleeper.sleeps)
	require.Len(t, r.sessions, 1)
	assert.True(t, r.sessions[0].closed)
	assert.NotEmpty(t, result.Error)
}

func TestRunPair_RetrySucceeds(t *testing.T) {
	r := newFakeRenderer()
	o := &fakeOracle{
		plans: []classifier.NavigationPlan{
			{},
			searchPlan(classifier.NavigationStep{Action: classifier.StepFill, Locator: "#zip", Value: "{filter}"}),
		},
		results:     []bool{true},
		extractions: []classifier.ExtractionResult{listings("A")},
	}
	r.add(browser.CSS("#zip"))
	c, _ := newTestController(testConfig(), r, o)

	result := c.RunPair(context.Background(), verifiedTarget(), "10001")
	assert.Equal(t, PairCompleted, result.Status)
	assert.Equal(t, 2, o.planCalls)
	assert.Equal(t, 1, result.RecordCount)
}

func TestRunPair_ChangeApproachStopsRetries(t *testing.T) {
	cfg := testConfig()
	cfg.URLDiscovery = false
	r := withGenericSearch(newFakeRenderer())
	o := &fakeOracle{
		blockedURLs: map[string]classifier.BlockingAssessment{
			"https://acme.example/advisors": blocked(classifier.ActionChangeApproach, 0),
		},
	}
	c, sleeper := newTestController(cfg, r, o)

	result := c.RunPair(context.Background(), verifiedTarget(), "Ohio")

	assert.Equal(t, PairFailed, result.Status)
	assert.True(t, errors.Is(result.Err, ErrBlocked))
	require.Len(t, r.sessions, 1)
	assert.Len(t, r.sessions[0].navigations, 2, "the entry URL and one retry after rediscovery, no further attempts")
	assert.Equal(t, 0, o.planCalls)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, sleeper.sleeps, "change-approach delays only")
	assert.Equal(t, 2, result.BlockingEncounters)
}

func TestRunAll_BrokenCachedURLIsNotPersisted(t *testing.T) {
	const old = "https://acme.example/old"
	r := withGenericSearch(newFakeRenderer())
	r.status[old] = 404
	o := &fakeOracle{}
	store := &memoryURLStore{}
	c, _ := newTestController(testConfig(), r, o, WithURLStore(store))

	cached := map[string]string{"Acme": old, "Bolt": "https://bolt.example/find"}
	target := &Target{Name: "Acme"}
	ApplyDiscovered([]*Target{target}, cached)
	c.Resolver().Seed(cached)
	require.True(t, target.Verified)

	agg := c.RunAll(context.Background(), []*Target{target}, []Filter{"Ohio"})

	require.Len(t, agg.Pairs, 1)
	assert.Equal(t, PairSkipped, agg.Pairs[0].Status)
	assert.False(t, target.Verified)
	require.Len(t, store.stored, 1)
	assert.Equal(t, map[string]string{"Bolt": "https://bolt.example/find"}, store.stored[0])

	next := &Target{Name: "Acme"}
	ApplyDiscovered([]*Target{next}, store.stored[0])
	assert.False(t, next.Verified, "the next run discovers afresh")
}

func TestRunAll_UnchangedURLsAreNotRewritten(t *testing.T) {
	r := withGenericSearch(newFakeRenderer())
	o := &fakeOracle{}
	store := &memoryURLStore{}
	c, _ := newTestController(testConfig(), r, o, WithURLStore(store))
	c.Resolver().Seed(map[string]string{"Acme": "https://acme.example/advisors"})

	agg := c.RunAll(context.Background(), []*Target{verifiedTarget()}, []Filter{"Ohio", "Texas"})

	assert.Len(t, agg.Pairs, 2)
	assert.Empty(t, store.stored)
	assert.Equal(t, map[string]string{"Acme": "https://acme.example/advisors"}, agg.DiscoveredURLs)
}

func TestRunAll_EndpointNotFoundSkipsPair(t *testing.T) {
	r := withGenericSearch(newFakeRenderer())
	o := &fakeOracle{extractions: []classifier.ExtractionResult{listings("b1")}}
	c, _ := newTestController(testConfig(), r, o)

	targets := []*Target{{Name: "Ghost"}, {Name: "Beta", BaseURL: "https://beta.example", Verified: true}}
	agg := c.RunAll(context.Background(), targets, []Filter{"Ohio"})

	require.Len(t, agg.Pairs, 2)
	assert.Equal(t, PairSkipped, agg.Pairs[0].Status)
	assert.True(t, errors.Is(agg.Pairs[0].Err, ErrEndpointNotFound))
	assert.Equal(t, PairCompleted, agg.Pairs[1].Status)
	assert.False(t, targets[0].Verified)
	assert.Len(t, agg.FailedPairs(), 1)
	assert.Len(t, agg.Records, 1)
}

func TestRunAll_PanicIsContained(t *testing.T) {
	r := withGenericSearch(newFakeRenderer())
	o := &fakeOracle{extractPanic: true, extractions: []classifier.ExtractionResult{listings("b1")}}
	c, _ := newTestController(testConfig(), r, o)

	targets := []*Target{
		{Name: "Acme", BaseURL: "https://acme.example", Verified: true},
		{Name: "Beta", BaseURL: "https://beta.example", Verified: true},
	}
	agg := c.RunAll(context.Background(), targets, []Filter{"Ohio"})

	require.Len(t, agg.Pairs, 2)
	assert.Equal(t, PairFailed, agg.Pairs[0].Status)
	assert.Contains(t, agg.Pairs[0].Error, "extraction exploded")
	assert.Equal(t, PairCompleted, agg.Pairs[1].Status)
	assert.Len(t, agg.Records, 1)
	for _, s := range r.sessions {
		assert.True(t, s.closed, "session closed even after a panic")
	}
}

func TestRunAll_OpenFailureContinues(t *testing.T) {
	r := newFakeRenderer()
	r.openErr = errBoom
	o := &fakeOracle{}
	c, _ := newTestController(testConfig(), r, o)

	agg := c.RunAll(context.Background(), []*Target{verifiedTarget()}, []Filter{"Ohio", "Texas"})
	require.Len(t, agg.Pairs, 2)
	for _, p := range agg.Pairs {
		assert.Equal(t, PairFailed, p.Status)
		assert.True(t, errors.Is(p.Err, errBoom))
	}
}

func TestRunAll_CancellationReturnsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := withGenericSearch(newFakeRenderer())
	o := &fakeOracle{extractions: []classifier.ExtractionResult{listings("a1", "a2"), listings("a3")}}
	c, sleeper := newTestController(testConfig(), r, o)
	sleeper.cancel, sleeper.cancelAfter = cancel, 1

	agg := c.RunAll(ctx, []*Target{verifiedTarget()}, []Filter{"Ohio", "Texas", "Utah"})

	assert.True(t, agg.Interrupted)
	require.Len(t, agg.Pairs, 1)
	assert.Len(t, agg.Records, 2)
	assert.Len(t, r.sessions, 1)
	assert.False(t, agg.FinishedAt.IsZero())
}

func TestRunAll_CheckpointsDiscoveredURLs(t *testing.T) {
	const found = "https://acme.example/advisors"
	r := withGenericSearch(newFakeRenderer())
	o := &fakeOracle{
		recommendation: classifier.URLRecommendation{URL: found},
		relevant:       map[string]classifier.RelevanceVerdict{found: relevantHigh},
	}
	store := &memoryURLStore{err: errBoom}
	c, _ := newTestController(testConfig(), r, o, WithURLStore(store))

	target := &Target{Name: "Acme"}
	agg := c.RunAll(context.Background(), []*Target{target}, []Filter{"Ohio", "Texas"})

	assert.Equal(t, map[string]string{"Acme": found}, agg.DiscoveredURLs)
	require.Len(t, store.stored, 2, "checkpoint after every pair, even when storing fails")
	assert.Equal(t, found, store.stored[0]["Acme"])
	assert.Equal(t, 1, o.recommendCalls, "second pair reuses the verified URL")
	assert.True(t, target.Verified)
}
