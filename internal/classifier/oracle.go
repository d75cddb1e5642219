// Package classifier turns rendered pages into typed judgments for the crawl loop.
package classifier

import "context"

// Page is the view of the current document handed to the oracle.
type Page struct {
	URL     string
	Title   string
	Content string
}

// Oracle answers one typed question per decision point. Malformed model
// output never surfaces as an error: it yields the most conservative judgment.
// A returned error means the question could not be asked at all; the
// judgment returned alongside it is still the conservative one.
type Oracle interface {
	AssessBlocking(ctx context.Context, page Page) (BlockingAssessment, error)
	RecommendURL(ctx context.Context, target string, page Page) (URLRecommendation, error)
	AssessRelevance(ctx context.Context, target string, page Page) (RelevanceVerdict, error)
	PlanNavigation(ctx context.Context, target, filter string, page Page) (NavigationPlan, error)
	ConfirmResults(ctx context.Context, target, filter string, page Page) (ResultsVerdict, error)
	Extract(ctx context.Context, target string, page Page) (ExtractionResult, error)
	PlanPagination(ctx context.Context, page Page) (PaginationDecision, error)
}
