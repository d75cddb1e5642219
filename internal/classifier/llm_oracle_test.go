package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petmar2017/wealth-advisor-scraper/internal/llm"
	"github.com/petmar2017/wealth-advisor-scraper/pkg/logger"
)

// MockProvider implements llm.Provider with a canned reply.
type MockProvider struct {
	reply   string
	err     error
	lastReq llm.ChatRequest
}

func (m *MockProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &llm.ChatResponse{Text: m.reply}, nil
}

func (m *MockProvider) Name() string  { return "mock" }
func (m *MockProvider) Model() string { return "mock-model" }

func newOracle(reply string) (*LLMOracle, *MockProvider) {
	p := &MockProvider{reply: reply}
	return NewLLMOracle(p, logger.Discard()), p
}

var samplePage = Page{URL: "https://acme.example/advisors", Title: "Find an Advisor", Content: "<form></form>"}

func TestAssessBlocking(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		detected bool
		kind     BlockingKind
		action   RecoveryAction
	}{
		{
			name:     "captcha with synonym action",
			reply:    `{"blocking_detected": true, "blocking_type": "captcha", "confidence": "high", "action_required": "solve_captcha"}`,
			detected: true, kind: KindCaptcha, action: ActionManualSolve,
		},
		{
			name:     "cloudflare maps to challenge, action defaults to wait",
			reply:    "```json\n{\"blocking_detected\": true, \"blocking_type\": \"Cloudflare\", \"wait_time_seconds\": 15}\n```",
			detected: true, kind: KindChallenge, action: ActionWait,
		},
		{
			name:     "clean page",
			reply:    `{"blocking_detected": false, "blocking_type": "none"}`,
			detected: false, kind: KindNone, action: ActionNone,
		},
		{
			name:     "malformed reply is no blocking",
			reply:    `I think the page is blocked`,
			detected: false, kind: KindNone, action: ActionNone,
		},
		{
			name:     "unknown action is no blocking",
			reply:    `{"blocking_detected": true, "action_required": "bribe"}`,
			detected: false, kind: KindNone, action: ActionNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := newOracle(tt.reply)
			a, err := o.AssessBlocking(context.Background(), samplePage)
			require.NoError(t, err)
			assert.Equal(t, tt.detected, a.Detected)
			assert.Equal(t, tt.kind, a.Kind)
			assert.Equal(t, tt.action, a.Action)
		})
	}
}

func TestAssessBlocking_TransportError(t *testing.T) {
	p := &MockProvider{err: errors.New("connection reset")}
	o := NewLLMOracle(p, logger.Discard())

	a, err := o.AssessBlocking(context.Background(), samplePage)
	require.Error(t, err)
	assert.False(t, a.Detected)
	assert.Equal(t, ActionNone, a.Action)
}

func TestRecommendURL(t *testing.T) {
	o, p := newOracle(`Here you go: {"recommended_url": "https://a.example", "alternative_urls": ["", "https://b.example", "https://a.example", "https://c.example"], "confidence": "HIGH"}`)

	r, err := o.RecommendURL(context.Background(), "Acme", samplePage)
	require.NoError(t, err)
	assert.Equal(t, ConfidenceHigh, r.Confidence)
	assert.Equal(t, []string{"https://a.example", "https://b.example", "https://c.example"}, r.Candidates())
	assert.Equal(t, llm.TierAdvanced, p.lastReq.Tier)
	assert.Contains(t, p.lastReq.Messages[0].Text, "Acme")
}

func TestAssessRelevance(t *testing.T) {
	o, _ := newOracle(`{"is_advisor_directory": true, "confidence": "medium"}`)
	v, err := o.AssessRelevance(context.Background(), "Acme", samplePage)
	require.NoError(t, err)
	assert.True(t, v.Passes())

	o, _ = newOracle(`{"is_advisor_directory": true}`)
	v, err = o.AssessRelevance(context.Background(), "Acme", samplePage)
	require.NoError(t, err)
	assert.False(t, v.Passes(), "missing confidence counts as low")

	o, _ = newOracle(`{"is_advisor_directory": true, "confidence": "certain"}`)
	v, err = o.AssessRelevance(context.Background(), "Acme", samplePage)
	require.NoError(t, err)
	assert.False(t, v.Passes())
}

func TestPlanNavigation(t *testing.T) {
	o, p := newOracle(`{
		"strategy": "direct_search",
		"steps": [
			{"action": "fill", "selector": "#location", "value": "{filter}"},
			{"action": "hover", "selector": "#menu"},
			{"action": "Click", "selector": "Search"}
		],
		"confidence": "high"
	}`)

	plan, err := o.PlanNavigation(context.Background(), "Acme", "New York", samplePage)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, StepFill, plan.Steps[0].Action)
	assert.Equal(t, StepClick, plan.Steps[1].Action)
	assert.Contains(t, p.lastReq.Messages[0].Text, "New York")

	o, _ = newOracle(`not json`)
	plan, err = o.PlanNavigation(context.Background(), "Acme", "New York", samplePage)
	require.NoError(t, err)
	assert.Empty(t, plan.Steps)
}

func TestConfirmResults(t *testing.T) {
	o, p := newOracle(`{"is_results_view": true, "page_type": "search_results"}`)
	v, err := o.ConfirmResults(context.Background(), "Acme", "Ohio", samplePage)
	require.NoError(t, err)
	assert.True(t, v.IsResults)
	assert.Equal(t, llm.TierStandard, p.lastReq.Tier)

	o, _ = newOracle(`{"is_results_view": tru`)
	v, err = o.ConfirmResults(context.Background(), "Acme", "Ohio", samplePage)
	require.NoError(t, err)
	assert.False(t, v.IsResults)
}

func TestExtract(t *testing.T) {
	o, _ := newOracle(`{"has_advisors": true, "advisors": [{"name": "Jane Doe", "phone": "(212) 555-0100"}], "total_results_mentioned": "42"}`)
	r, err := o.Extract(context.Background(), "Acme", samplePage)
	require.NoError(t, err)
	require.Len(t, r.Entries, 1)
	assert.Equal(t, "Jane Doe", r.Entries[0].Name)
	assert.Equal(t, "", r.Entries[0].Email)
	assert.Equal(t, "42", r.TotalResultsMentioned)

	o, _ = newOracle(`{"has_advisors": false, "advisors": [{"name": "Ghost"}]}`)
	r, err = o.Extract(context.Background(), "Acme", samplePage)
	require.NoError(t, err)
	assert.Empty(t, r.Entries)

	o, _ = newOracle(`{"has_advisors": true, "advisors": "many"}`)
	r, err = o.Extract(context.Background(), "Acme", samplePage)
	require.NoError(t, err)
	assert.Empty(t, r.Entries)
}

func TestPlanPagination(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		hasMore bool
		action  PaginationAction
	}{
		{"next button", `{"has_more": true, "pagination_type": "next_button", "action_needed": "click", "selector": " a.next "}`, true, PageClick},
		{"infinite scroll", `{"has_more": true, "pagination_type": "infinite_scroll", "action_needed": "scroll"}`, true, PageScroll},
		{"has more but no action", `{"has_more": true, "pagination_type": "next_button", "action_needed": "none"}`, false, PageNone},
		{"unknown mechanism", `{"has_more": true, "pagination_type": "carousel", "action_needed": "click"}`, false, PageNone},
		{"malformed", `{}{`, false, PageNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := newOracle(tt.reply)
			d, err := o.PlanPagination(context.Background(), samplePage)
			require.NoError(t, err)
			assert.Equal(t, tt.hasMore, d.HasMore)
			assert.Equal(t, tt.action, d.Action)
			assert.False(t, strings.HasPrefix(d.Locator, " "))
		})
	}
}

func TestLLMOracle_LogsCarryRunAndPair(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "warn", Format: "json", Output: &buf})
	o := NewLLMOracle(&MockProvider{err: errors.New("overloaded")}, log)

	ctx := logger.ContextWithRunID(context.Background(), "run-7")
	ctx = logger.ContextWithPair(ctx, "UBS", "Ohio")
	_, err := o.AssessBlocking(ctx, samplePage)
	require.Error(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run-7", entry["run_id"])
	assert.Equal(t, "UBS/Ohio", entry["pair"])
	assert.Equal(t, "oracle", entry["component"])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("  short  ", 200))

	reply := strings.Repeat("é", 150)
	got := truncate(reply, 201)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, strings.Repeat("é", 100)+"...", got)
}
