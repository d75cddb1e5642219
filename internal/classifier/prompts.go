package classifier

import (
	"fmt"
	"strings"
)

const systemPrompt = `You analyse web pages for a crawler that collects public financial-advisor directory listings.
Answer with a single JSON object matching the requested shape and nothing else.`

const blockingPrompt = `Determine whether this page is blocking automated access.

Look for CAPTCHA challenges (reCAPTCHA, hCaptcha, custom), rate-limit or "too many requests" messages,
"access denied"/"forbidden" pages, browser-check or challenge interstitials, and pages that are empty where
content is expected.

%s

Respond with JSON:
{
  "blocking_detected": boolean,
  "blocking_type": "captcha|rate_limit|access_denied|challenge|unknown|none",
  "confidence": "high|medium|low",
  "description": "what was detected",
  "action_required": "wait|manual_solve|retry_later|change_approach|none",
  "wait_time_seconds": number
}`

const recommendURLPrompt = `These are search results for the %s financial advisor directory.
Find the URL of the page where visitors search for %s advisors by location.

%s

Respond with JSON:
{
  "recommended_url": "the best URL found",
  "alternative_urls": ["other candidate URLs, best first"],
  "confidence": "high|medium|low",
  "reasoning": "why this URL"
}`

const relevancePrompt = `Is this page the %s financial advisor directory or advisor search page?

%s

Respond with JSON:
{
  "is_advisor_directory": boolean,
  "confidence": "high|medium|low",
  "has_search_functionality": boolean
}`

const navigationPrompt = `This is a %s website. Plan the steps to search for financial advisors in %s.

Look for search fields, location or state filters, and links or buttons such as "find an advisor".
Use {filter} in a step value wherever the location must be typed or chosen.

%s

Respond with JSON:
{
  "strategy": "direct_search|navigate_first|complex_form",
  "steps": [
    {"action": "fill|click|select|navigate", "selector": "css selector or visible text", "value": "text to enter, option to choose or URL", "description": "what this step does"}
  ],
  "confidence": "high|medium|low"
}`

const resultsPrompt = `After searching the %s website for advisors in %s, does this page now show a list of advisor results?

%s

Respond with JSON:
{
  "is_results_view": boolean,
  "page_type": "search_results|search_form|other",
  "advisor_count_estimate": "number or unknown"
}`

const extractionPrompt = `Extract the financial advisor listings on this %s directory page.

For each advisor give the full name, phone number, office street, city, state and email.
Only include listings whose details are clearly shown; use "" for anything missing.

%s

Respond with JSON:
{
  "has_advisors": boolean,
  "advisors": [
    {"name": "", "phone": "", "street": "", "city": "", "state": "", "email": ""}
  ],
  "total_results_mentioned": "number if shown"
}`

const paginationPrompt = `Does this advisor results page have more results, and how does one reach them?

%s

Respond with JSON:
{
  "has_more": boolean,
  "pagination_type": "next_button|load_more|page_numbers|infinite_scroll|none",
  "action_needed": "click|scroll|none",
  "selector": "css selector or visible text of the control to click"
}`

// pageBlock renders the page section shared by every prompt.
func pageBlock(p Page) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "URL: %s\n", p.URL)
	if p.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", p.Title)
	}
	sb.WriteString("Content:\n")
	sb.WriteString(p.Content)
	return sb.String()
}
