package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/petmar2017/wealth-advisor-scraper/internal/llm"
	"github.com/petmar2017/wealth-advisor-scraper/pkg/logger"
)

// LLMOracle asks a language model each question and parses its JSON reply.
type LLMOracle struct {
	provider llm.Provider
	log      *logger.Logger
}

// NewLLMOracle creates an oracle backed by provider.
func NewLLMOracle(provider llm.Provider, log *logger.Logger) *LLMOracle {
	if log == nil {
		log = logger.Default()
	}
	return &LLMOracle{
		provider: provider,
		log:      log.WithComponent("oracle"),
	}
}

// ask sends one prompt and decodes the reply into out. It returns a transport
// error, or nil with ok=false when the reply is malformed.
func (o *LLMOracle) ask(ctx context.Context, question, prompt string, tier llm.ModelTier, maxTokens int, out any) (bool, error) {
	resp, err := o.provider.Chat(ctx, llm.ChatRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{llm.NewUserMessage(prompt)},
		MaxTokens:    maxTokens,
		Tier:         tier,
	})
	if err != nil {
		o.log.WithContext(ctx).WithError(err).Warn("oracle call failed", "question", question)
		return false, fmt.Errorf("%s: %w", question, err)
	}

	if err := llm.DecodeJSONReply(resp.Text, out); err != nil {
		o.log.WithContext(ctx).Warn("malformed oracle reply",
			"question", question,
			"error", err,
			"reply", truncate(resp.Text, 200),
		)
		return false, nil
	}
	return true, nil
}

func (o *LLMOracle) AssessBlocking(ctx context.Context, page Page) (BlockingAssessment, error) {
	var a BlockingAssessment
	ok, err := o.ask(ctx, "blocking", fmt.Sprintf(blockingPrompt, pageBlock(page)), llm.TierAdvanced, 1000, &a)
	if !ok {
		return NoBlocking(), err
	}

	a.normalize()
	if err := validate.Struct(a); err != nil {
		o.log.WithContext(ctx).Warn("invalid blocking assessment", "error", err)
		return NoBlocking(), nil
	}
	if !a.Detected {
		return NoBlocking(), nil
	}
	return a, nil
}

func (o *LLMOracle) RecommendURL(ctx context.Context, target string, page Page) (URLRecommendation, error) {
	var r URLRecommendation
	prompt := fmt.Sprintf(recommendURLPrompt, target, target, pageBlock(page))
	ok, err := o.ask(ctx, "recommend_url", prompt, llm.TierAdvanced, 1000, &r)
	if !ok {
		return URLRecommendation{Confidence: ConfidenceLow}, err
	}
	r.Confidence = normalizeConfidence(r.Confidence)
	if err := validate.Struct(r); err != nil {
		r.Confidence = ConfidenceLow
	}
	return r, nil
}

func (o *LLMOracle) AssessRelevance(ctx context.Context, target string, page Page) (RelevanceVerdict, error) {
	var v RelevanceVerdict
	ok, err := o.ask(ctx, "relevance", fmt.Sprintf(relevancePrompt, target, pageBlock(page)), llm.TierStandard, 500, &v)
	if !ok {
		return RelevanceVerdict{Confidence: ConfidenceLow}, err
	}
	v.Confidence = normalizeConfidence(v.Confidence)
	if err := validate.Struct(v); err != nil {
		return RelevanceVerdict{Confidence: ConfidenceLow}, nil
	}
	return v, nil
}

func (o *LLMOracle) PlanNavigation(ctx context.Context, target, filter string, page Page) (NavigationPlan, error) {
	var p NavigationPlan
	prompt := fmt.Sprintf(navigationPrompt, target, filter, pageBlock(page))
	ok, err := o.ask(ctx, "navigation_plan", prompt, llm.TierAdvanced, 2000, &p)
	if !ok {
		return NavigationPlan{Confidence: ConfidenceLow}, err
	}

	raw := len(p.Steps)
	p.Steps = validSteps(p.Steps)
	if dropped := raw - len(p.Steps); dropped > 0 {
		o.log.WithContext(ctx).Warn("dropped navigation steps with unknown actions", "dropped", dropped)
	}
	p.Confidence = normalizeConfidence(p.Confidence)
	return p, nil
}

func (o *LLMOracle) ConfirmResults(ctx context.Context, target, filter string, page Page) (ResultsVerdict, error) {
	var v ResultsVerdict
	prompt := fmt.Sprintf(resultsPrompt, target, filter, pageBlock(page))
	ok, err := o.ask(ctx, "confirm_results", prompt, llm.TierStandard, 500, &v)
	if !ok {
		return ResultsVerdict{}, err
	}
	return v, nil
}

func (o *LLMOracle) Extract(ctx context.Context, target string, page Page) (ExtractionResult, error) {
	var r ExtractionResult
	ok, err := o.ask(ctx, "extract", fmt.Sprintf(extractionPrompt, target, pageBlock(page)), llm.TierAdvanced, 4000, &r)
	if !ok {
		return ExtractionResult{}, err
	}
	if !r.HasListings {
		r.Entries = nil
	}
	return r, nil
}

func (o *LLMOracle) PlanPagination(ctx context.Context, page Page) (PaginationDecision, error) {
	var d PaginationDecision
	ok, err := o.ask(ctx, "pagination", fmt.Sprintf(paginationPrompt, pageBlock(page)), llm.TierStandard, 500, &d)
	if !ok {
		return NoPagination(), err
	}

	d.normalize()
	if err := validate.Struct(d); err != nil {
		o.log.WithContext(ctx).Warn("invalid pagination decision", "error", err)
		return NoPagination(), nil
	}
	if !d.HasMore || d.Action == PageNone {
		return NoPagination(), nil
	}
	return d, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "") + "..."
}
