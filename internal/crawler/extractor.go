package crawler

import (
	"context"
	"regexp"
	"strings"

	"github.com/petmar2017/wealth-advisor-scraper/internal/browser"
	"github.com/petmar2017/wealth-advisor-scraper/internal/classifier"
	"github.com/petmar2017/wealth-advisor-scraper/pkg/logger"
)

var phoneNoise = regexp.MustCompile(`[^\d+\s\-()]`)

// Extractor turns the current result page into records.
type Extractor struct {
	oracle classifier.Oracle
	pages  PageBuilder
	guard  *Guard
	log    *logger.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(oracle classifier.Oracle, pages PageBuilder, guard *Guard, log *logger.Logger) *Extractor {
	return &Extractor{
		oracle: oracle,
		pages:  pages,
		guard:  guard,
		log:    log.WithComponent("extractor"),
	}
}

// Extract returns the records on the current page. A blocked page, an
// unreadable page or a failed classification all yield no records.
func (e *Extractor) Extract(ctx context.Context, sess browser.Session, t *Target) []Record {
	log := e.log.WithContext(ctx)
	if !e.guard.Check(ctx, sess) {
		log.Warn("Page blocked; nothing extracted")
		return nil
	}

	page, err := snapshot(ctx, sess, e.pages)
	if err != nil {
		log.WithError(err).Warn("Could not read result page")
		return nil
	}
	result, err := e.oracle.Extract(ctx, t.Name, page)
	if err != nil {
		log.WithError(err).Warn("Extraction failed")
		return nil
	}
	if result.TotalResultsMentioned != "" {
		log.Info("Result count reported by page", "total", result.TotalResultsMentioned)
	}

	records := make([]Record, 0, len(result.Entries))
	for _, entry := range result.Entries {
		records = append(records, normalizeEntry(entry, t.Name, page.URL))
	}
	log.Debug("Extracted records", "count", len(records), "url", page.URL)
	return records
}

// normalizeEntry cleans the phone number; other fields are kept as extracted.
func normalizeEntry(e classifier.Entry, source, url string) Record {
	return Record{
		Name:   e.Name,
		Phone:  cleanPhone(e.Phone),
		Street: e.Street,
		City:   e.City,
		State:  e.State,
		Email:  e.Email,
		Source: source,
		URL:    url,
	}
}

// cleanPhone keeps digits, plus signs, whitespace, hyphens and parentheses.
func cleanPhone(phone string) string {
	return strings.TrimSpace(phoneNoise.ReplaceAllString(phone, ""))
}
