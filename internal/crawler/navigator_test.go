package crawler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petmar2017/wealth-advisor-scraper/internal/browser"
	"github.com/petmar2017/wealth-advisor-scraper/internal/classifier"
)

func newNavigatorHarness(cfg Config, o *fakeOracle) (*Navigator, *fakeRenderer, *fakeSession) {
	r := newFakeRenderer()
	c, _ := newTestController(cfg, r, o)
	return c.navigator, r, r.session()
}

func searchPlan(steps ...classifier.NavigationStep) classifier.NavigationPlan {
	return classifier.NavigationPlan{Steps: steps, Strategy: "direct_search", Confidence: classifier.ConfidenceHigh}
}

func TestReachFilteredView_PlanConfirmed(t *testing.T) {
	o := &fakeOracle{
		plans: []classifier.NavigationPlan{searchPlan(
			classifier.NavigationStep{Action: classifier.StepFill, Locator: "#location", Value: "{filter}"},
			classifier.NavigationStep{Action: classifier.StepSelect, Locator: "#radius", Value: "25 miles near {state}"},
			classifier.NavigationStep{Action: classifier.StepClick, Locator: "button.search"},
		)},
		results: []bool{true},
	}
	nav, r, sess := newNavigatorHarness(testConfig(), o)
	location := r.add(browser.CSS("#location"))
	radius := r.add(browser.CSS("#radius"))
	button := r.add(browser.CSS("button.search"))

	ok, err := nav.ReachFilteredView(context.Background(), sess, verifiedTarget(), "New York")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"New York"}, location.fills)
	assert.Equal(t, []string{"25 miles near New York"}, radius.selects)
	assert.Equal(t, 1, button.clicks)
	assert.Equal(t, []string{"https://acme.example/advisors"}, sess.navigations)
	assert.Equal(t, []NavState{
		NavInit, NavEntryResolved, NavNavigated, NavPlanExecuted, NavResultsConfirmed, NavSuccess,
	}, nav.LastTrace())
}

func TestReachFilteredView_TextFallbackLocator(t *testing.T) {
	o := &fakeOracle{
		plans:   []classifier.NavigationPlan{searchPlan(classifier.NavigationStep{Action: classifier.StepClick, Locator: "Find an Advisor"})},
		results: []bool{true},
	}
	nav, r, sess := newNavigatorHarness(testConfig(), o)
	link := r.add(browser.Text("Find an Advisor"))

	ok, err := nav.ReachFilteredView(context.Background(), sess, verifiedTarget(), "Ohio")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, link.clicks)
	assert.Equal(t, []browser.Locator{"Find an Advisor", browser.Text("Find an Advisor")}, sess.finds)
}

func TestReachFilteredView_FailedStepSkipped(t *testing.T) {
	o := &fakeOracle{
		plans: []classifier.NavigationPlan{searchPlan(
			classifier.NavigationStep{Action: classifier.StepFill, Locator: "#missing", Value: "{filter}"},
			classifier.NavigationStep{Action: classifier.StepClick, Locator: "#broken"},
			classifier.NavigationStep{Action: classifier.StepClick, Locator: "button.search"},
		)},
		results: []bool{true},
	}
	nav, r, sess := newNavigatorHarness(testConfig(), o)
	r.add(browser.CSS("#broken")).clickErr = errBoom
	button := r.add(browser.CSS("button.search"))

	ok, err := nav.ReachFilteredView(context.Background(), sess, verifiedTarget(), "Ohio")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, button.clicks)
}

func TestReachFilteredView_NavigateStep(t *testing.T) {
	o := &fakeOracle{
		plans: []classifier.NavigationPlan{searchPlan(
			classifier.NavigationStep{Action: classifier.StepNavigate, Value: "https://acme.example/advisors?state={filter}"},
		)},
		results: []bool{true},
	}
	nav, _, sess := newNavigatorHarness(testConfig(), o)

	ok, err := nav.ReachFilteredView(context.Background(), sess, verifiedTarget(), "Ohio")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"https://acme.example/advisors", "https://acme.example/advisors?state=Ohio"}, sess.navigations)
}

func TestReachFilteredView_UnconfirmedFallsBack(t *testing.T) {
	o := &fakeOracle{
		plans:   []classifier.NavigationPlan{searchPlan(classifier.NavigationStep{Action: classifier.StepClick, Locator: "button.search"})},
		results: []bool{false},
	}
	nav, r, sess := newNavigatorHarness(testConfig(), o)
	r.add(browser.CSS("button.search"))
	search := r.add(browser.CSS("#search"))
	submit := r.add(browser.CSS("button[type='submit']"))

	ok, err := nav.ReachFilteredView(context.Background(), sess, verifiedTarget(), "Texas")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"Texas"}, search.fills)
	assert.Equal(t, 1, submit.clicks)
	assert.Empty(t, search.presses)
	assert.Equal(t, []NavState{
		NavInit, NavEntryResolved, NavNavigated, NavPlanExecuted, NavFallbackAttempted, NavSuccess,
	}, nav.LastTrace())
}

func TestReachFilteredView_FallbackProbesInOrderAndPressesEnter(t *testing.T) {
	o := &fakeOracle{}
	nav, r, sess := newNavigatorHarness(testConfig(), o)
	first := r.add(browser.CSS("input[placeholder*='city' i]"))
	later := r.add(browser.CSS("#location"))

	ok, err := nav.ReachFilteredView(context.Background(), sess, verifiedTarget(), "Ohio")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"Ohio"}, first.fills)
	assert.Empty(t, later.fills)
	assert.Equal(t, []string{"Enter"}, first.presses)
	assert.Equal(t, 0, o.resultsCalls, "the generic search has no results check")
}

func TestReachFilteredView_NothingWorks(t *testing.T) {
	o := &fakeOracle{}
	nav, _, sess := newNavigatorHarness(testConfig(), o)

	ok, err := nav.ReachFilteredView(context.Background(), sess, verifiedTarget(), "Ohio")
	require.NoError(t, err)
	assert.False(t, ok)
	trace := nav.LastTrace()
	assert.Equal(t, NavFailure, trace[len(trace)-1])
}

func TestReachFilteredView_GuardAbortsPlan(t *testing.T) {
	o := &fakeOracle{
		plans: []classifier.NavigationPlan{searchPlan(
			classifier.NavigationStep{Action: classifier.StepClick, Locator: "button.search"},
			classifier.NavigationStep{Action: classifier.StepFill, Locator: "#location", Value: "{filter}"},
		)},
		blockedURLs: map[string]classifier.BlockingAssessment{
			"https://acme.example/blocked": blocked(classifier.ActionChangeApproach, 0),
		},
	}
	nav, r, sess := newNavigatorHarness(testConfig(), o)
	r.add(browser.CSS("button.search")).navigateTo = "https://acme.example/blocked"
	location := r.add(browser.CSS("#location"))

	ok, err := nav.ReachFilteredView(context.Background(), sess, verifiedTarget(), "Ohio")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, location.fills, "steps after a failed guard check do not run")
	assert.Equal(t, 0, o.resultsCalls)
}

func TestReachFilteredView_ErrorStatusRediscovers(t *testing.T) {
	const fresh = "https://acme.example/find"
	o := &fakeOracle{
		recommendation: classifier.URLRecommendation{URL: fresh},
		relevant:       map[string]classifier.RelevanceVerdict{fresh: relevantHigh},
	}
	nav, r, sess := newNavigatorHarness(testConfig(), o)
	r.status["https://acme.example/advisors"] = 404
	r.add(browser.CSS("#search"))

	target := verifiedTarget()
	ok, err := nav.ReachFilteredView(context.Background(), sess, target, "Ohio")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, fresh, target.BaseURL)
	assert.True(t, target.Verified)
	assert.Equal(t, 1, o.recommendCalls)
	assert.Equal(t, fresh, sess.navigations[len(sess.navigations)-1])
}

func TestReachFilteredView_BlockedEntryRediscovers(t *testing.T) {
	const (
		old   = "https://acme.example/advisors"
		fresh = "https://acme.example/find"
	)
	denied := classifier.BlockingAssessment{
		Detected:   true,
		Kind:       classifier.KindAccessDenied,
		Confidence: classifier.ConfidenceHigh,
		Action:     classifier.ActionChangeApproach,
	}

	tests := []struct {
		name   string
		status int
	}{
		{name: "forbidden and blocked", status: 403},
		{name: "rate limited and blocked", status: 429},
		{name: "blocked with ok status", status: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &fakeOracle{
				blockedURLs:    map[string]classifier.BlockingAssessment{old: denied},
				recommendation: classifier.URLRecommendation{URL: fresh},
				relevant:       map[string]classifier.RelevanceVerdict{fresh: relevantHigh},
			}
			nav, r, sess := newNavigatorHarness(testConfig(), o)
			r.status[old] = tt.status
			r.add(browser.CSS("#search"))

			target := verifiedTarget()
			ok, err := nav.ReachFilteredView(context.Background(), sess, target, "Ohio")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, 1, o.recommendCalls)
			assert.Equal(t, old, sess.navigations[0])
			assert.Equal(t, fresh, sess.navigations[len(sess.navigations)-1])
			assert.Equal(t, fresh, target.BaseURL)
			assert.True(t, target.Verified)
			assert.Equal(t, map[string]string{"Acme": fresh}, nav.resolver.Discovered())
		})
	}
}

func TestReachFilteredView_FailedRediscoveryForgetsURL(t *testing.T) {
	const old = "https://acme.example/advisors"
	o := &fakeOracle{}
	nav, r, sess := newNavigatorHarness(testConfig(), o)
	r.status[old] = 404
	nav.resolver.Seed(map[string]string{"Acme": old, "Bolt": "https://bolt.example/find"})

	target := verifiedTarget()
	ok, err := nav.ReachFilteredView(context.Background(), sess, target, "Ohio")
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrEndpointNotFound))
	assert.False(t, target.Verified)
	assert.Equal(t, map[string]string{"Bolt": "https://bolt.example/find"}, nav.resolver.Discovered())
	assert.True(t, nav.resolver.dirty)
}

func TestReachFilteredView_ErrorStatusWithoutDiscovery(t *testing.T) {
	cfg := testConfig()
	cfg.URLDiscovery = false
	o := &fakeOracle{}
	nav, r, sess := newNavigatorHarness(cfg, o)
	r.status["https://acme.example/advisors"] = 500

	target := verifiedTarget()
	ok, err := nav.ReachFilteredView(context.Background(), sess, target, "Ohio")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, target.Verified)
	assert.Len(t, sess.navigations, 2, "one retry of the entry URL")
	assert.Equal(t, 0, o.planCalls)
}

func TestReachFilteredView_NoEndpoint(t *testing.T) {
	o := &fakeOracle{}
	nav, _, sess := newNavigatorHarness(testConfig(), o)

	ok, err := nav.ReachFilteredView(context.Background(), sess, &Target{Name: "Acme"}, "Ohio")
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrEndpointNotFound))
}

func TestFallbackSubmitsIncludeGo(t *testing.T) {
	assert.Contains(t, fallbackSubmits, browser.Text("Go"))
	assert.Equal(t, browser.Text("Go"), fallbackSubmits[len(fallbackSubmits)-1])
}

func TestNavStateString(t *testing.T) {
	assert.Equal(t, "fallback_attempted", NavFallbackAttempted.String())
	assert.Equal(t, "unknown", NavState(99).String())
}

func TestSubstituteFilter(t *testing.T) {
	assert.Equal(t, "Ohio Ohio", substituteFilter("{filter} {state}", "Ohio"))
	assert.Equal(t, "plain", substituteFilter("plain", "Ohio"))
}
