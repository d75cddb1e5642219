package classifier

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkoukk/tiktoken-go"
)

// charsPerToken approximates token counts when no tokenizer is available.
const charsPerToken = 4

var whitespace = regexp.MustCompile(`\s+`)

// noise is markup that carries nothing a classifier can act on.
const noise = "script, style, noscript, svg, link, meta, template, head > *:not(title)"

// Excerpter reduces a rendered document to a bounded excerpt for the oracle.
type Excerpter struct {
	maxTokens int
	tokenizer *tiktoken.Tiktoken
}

// NewExcerpter creates an excerpter bounded to maxTokens. When the
// cl100k_base encoding cannot be loaded, lengths are estimated from characters.
func NewExcerpter(maxTokens int) *Excerpter {
	e := &Excerpter{maxTokens: maxTokens}
	if tk, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
		e.tokenizer = tk
	}
	return e
}

// Page builds the oracle's view of a document.
func (e *Excerpter) Page(url, html string) Page {
	title, body := clean(html)
	return Page{
		URL:     url,
		Title:   title,
		Content: e.truncate(body),
	}
}

// clean drops noise elements and collapses whitespace. It returns the
// document title and the remaining body markup.
func clean(html string) (string, string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", whitespace.ReplaceAllString(html, " ")
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find(noise).Remove()
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		var drop []string
		for _, attr := range s.Nodes[0].Attr {
			if attr.Key == "style" || strings.HasPrefix(attr.Key, "on") || strings.HasPrefix(attr.Key, "data-v-") {
				drop = append(drop, attr.Key)
			}
		}
		for _, key := range drop {
			s.RemoveAttr(key)
		}
	})

	body, err := doc.Find("body").Html()
	if err != nil || strings.TrimSpace(body) == "" {
		body, _ = doc.Html()
	}
	return title, strings.TrimSpace(whitespace.ReplaceAllString(body, " "))
}

// truncate cuts text to the token budget.
func (e *Excerpter) truncate(text string) string {
	if e.maxTokens <= 0 {
		return text
	}
	if e.tokenizer == nil {
		limit := e.maxTokens * charsPerToken
		if len(text) <= limit {
			return text
		}
		return strings.ToValidUTF8(text[:limit], "")
	}

	tokens := e.tokenizer.Encode(text, nil, nil)
	if len(tokens) <= e.maxTokens {
		return text
	}
	return e.tokenizer.Decode(tokens[:e.maxTokens])
}
