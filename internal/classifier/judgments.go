package classifier

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// BlockingKind is the kind of blocking mechanism detected on a page.
type BlockingKind string

const (
	KindCaptcha      BlockingKind = "captcha"
	KindRateLimit    BlockingKind = "rate_limit"
	KindAccessDenied BlockingKind = "access_denied"
	KindChallenge    BlockingKind = "challenge"
	KindUnknown      BlockingKind = "unknown"
	KindNone         BlockingKind = "none"
)

// Confidence is the oracle's stated certainty.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// RecoveryAction is the recommended response to a blocking page.
type RecoveryAction string

const (
	ActionWait           RecoveryAction = "wait"
	ActionManualSolve    RecoveryAction = "manual_solve"
	ActionRetryLater     RecoveryAction = "retry_later"
	ActionChangeApproach RecoveryAction = "change_approach"
	ActionNone           RecoveryAction = "none"
)

// BlockingAssessment is produced fresh on every guard check.
type BlockingAssessment struct {
	Detected    bool           `json:"blocking_detected"`
	Kind        BlockingKind   `json:"blocking_type" validate:"oneof=captcha rate_limit access_denied challenge unknown none"`
	Confidence  Confidence     `json:"confidence" validate:"oneof=high medium low"`
	Action      RecoveryAction `json:"action_required" validate:"oneof=wait manual_solve retry_later change_approach none"`
	WaitSeconds int            `json:"wait_time_seconds" validate:"gte=0"`
	Notes       string         `json:"description"`
}

// NoBlocking is the conservative blocking judgment.
func NoBlocking() BlockingAssessment {
	return BlockingAssessment{Kind: KindNone, Confidence: ConfidenceLow, Action: ActionNone}
}

// URLRecommendation ranks candidate entry URLs for a target.
type URLRecommendation struct {
	URL        string     `json:"recommended_url"`
	Alternates []string   `json:"alternative_urls"`
	Confidence Confidence `json:"confidence" validate:"oneof=high medium low"`
	Reasoning  string     `json:"reasoning"`
}

// Candidates returns the primary URL followed by the alternates, in order,
// skipping empty entries and repeats.
func (r URLRecommendation) Candidates() []string {
	seen := make(map[string]bool, len(r.Alternates)+1)
	out := make([]string, 0, len(r.Alternates)+1)
	for _, u := range append([]string{r.URL}, r.Alternates...) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// RelevanceVerdict says whether a page is the advisor directory being looked for.
type RelevanceVerdict struct {
	IsRelevant bool       `json:"is_advisor_directory"`
	Confidence Confidence `json:"confidence" validate:"oneof=high medium low"`
	HasSearch  bool       `json:"has_search_functionality"`
}

// Passes reports whether the verdict verifies a candidate URL.
func (v RelevanceVerdict) Passes() bool {
	return v.IsRelevant && v.Confidence != ConfidenceLow
}

// StepAction is a renderer action inside a navigation plan.
type StepAction string

const (
	StepFill     StepAction = "fill"
	StepClick    StepAction = "click"
	StepSelect   StepAction = "select"
	StepNavigate StepAction = "navigate"
)

// NavigationStep is one action of a navigation plan.
type NavigationStep struct {
	Action      StepAction `json:"action" validate:"oneof=fill click select navigate"`
	Locator     string     `json:"selector"`
	Value       string     `json:"value"`
	Description string     `json:"description"`
}

// NavigationPlan is generated per attempt and never cached.
type NavigationPlan struct {
	Steps      []NavigationStep `json:"steps"`
	Strategy   string           `json:"strategy"`
	Confidence Confidence       `json:"confidence" validate:"oneof=high medium low"`
}

// ResultsVerdict says whether the page now shows filtered results.
type ResultsVerdict struct {
	IsResults     bool   `json:"is_results_view"`
	PageType      string `json:"page_type"`
	CountEstimate string `json:"advisor_count_estimate"`
}

// Entry is one listing as emitted by the oracle, before normalization.
type Entry struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Email  string `json:"email"`
}

// ExtractionResult holds the listings found on one page.
type ExtractionResult struct {
	HasListings           bool    `json:"has_advisors"`
	Entries               []Entry `json:"advisors"`
	TotalResultsMentioned string  `json:"total_results_mentioned"`
}

// PaginationMechanism is how a result set is paged.
type PaginationMechanism string

const (
	MechanismNextButton     PaginationMechanism = "next_button"
	MechanismLoadMore       PaginationMechanism = "load_more"
	MechanismPageNumbers    PaginationMechanism = "page_numbers"
	MechanismInfiniteScroll PaginationMechanism = "infinite_scroll"
	MechanismNone           PaginationMechanism = "none"
)

// PaginationAction is the action that advances to more results.
type PaginationAction string

const (
	PageClick  PaginationAction = "click"
	PageScroll PaginationAction = "scroll"
	PageNone   PaginationAction = "none"
)

// PaginationDecision tells the walker how to advance.
type PaginationDecision struct {
	HasMore   bool                `json:"has_more"`
	Mechanism PaginationMechanism `json:"pagination_type" validate:"oneof=next_button load_more page_numbers infinite_scroll none"`
	Action    PaginationAction    `json:"action_needed" validate:"oneof=click scroll none"`
	Locator   string              `json:"selector"`
}

// NoPagination is the conservative pagination judgment.
func NoPagination() PaginationDecision {
	return PaginationDecision{Mechanism: MechanismNone, Action: PageNone}
}

var validate = validator.New()

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeConfidence(c Confidence) Confidence {
	if c = Confidence(lower(string(c))); c == "" {
		return ConfidenceLow
	}
	return c
}

// normalize fills omitted enums and maps common synonyms onto the declared values.
func (b *BlockingAssessment) normalize() {
	b.Confidence = normalizeConfidence(b.Confidence)

	switch k := lower(string(b.Kind)); k {
	case "cloudflare", "javascript_challenge", "js_challenge", "bot_check":
		b.Kind = KindChallenge
	case "recaptcha", "hcaptcha":
		b.Kind = KindCaptcha
	case "":
		b.Kind = KindNone
		if b.Detected {
			b.Kind = KindUnknown
		}
	default:
		b.Kind = BlockingKind(k)
	}

	switch a := lower(string(b.Action)); a {
	case "solve_captcha", "manual", "solve":
		b.Action = ActionManualSolve
	case "":
		b.Action = ActionNone
		if b.Detected {
			b.Action = ActionWait
		}
	default:
		b.Action = RecoveryAction(a)
	}

	if b.WaitSeconds < 0 {
		b.WaitSeconds = 0
	}
}

func (p *PaginationDecision) normalize() {
	p.Mechanism = PaginationMechanism(lower(string(p.Mechanism)))
	if p.Mechanism == "" {
		p.Mechanism = MechanismNone
	}
	p.Action = PaginationAction(lower(string(p.Action)))
	if p.Action == "" {
		p.Action = PageNone
	}
	p.Locator = strings.TrimSpace(p.Locator)
}

// validSteps keeps the steps with a known action, in order.
func validSteps(steps []NavigationStep) []NavigationStep {
	out := make([]NavigationStep, 0, len(steps))
	for _, s := range steps {
		s.Action = StepAction(lower(string(s.Action)))
		if err := validate.Struct(s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}
