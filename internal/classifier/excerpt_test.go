package classifier

import (
	"strings"
	"testing"
)

const samplePageHTML = `<html><head><title> Find an Advisor | Acme </title>
<script>var tracking = true;</script><style>.x{color:red}</style></head>
<body onload="init()">
  <form id="search" style="display:block">
    <input name="location"   placeholder="City or State">
    <button type="submit" onclick="go()">Search</button>
  </form>
  <noscript>enable js</noscript>
</body></html>`

func TestExcerpter_Page(t *testing.T) {
	e := &Excerpter{maxTokens: 0}
	p := e.Page("https://acme.example", samplePageHTML)

	if p.Title != "Find an Advisor | Acme" {
		t.Errorf("unexpected title %q", p.Title)
	}
	if p.URL != "https://acme.example" {
		t.Errorf("unexpected url %q", p.URL)
	}
	for _, unwanted := range []string{"tracking", "color:red", "onclick", "onload", "enable js", "style="} {
		if strings.Contains(p.Content, unwanted) {
			t.Errorf("expected %q to be stripped from %s", unwanted, p.Content)
		}
	}
	for _, wanted := range []string{`name="location"`, `placeholder="City or State"`, "Search"} {
		if !strings.Contains(p.Content, wanted) {
			t.Errorf("expected %q to be kept in %s", wanted, p.Content)
		}
	}
	if strings.Contains(p.Content, "  ") {
		t.Errorf("expected whitespace to be collapsed: %q", p.Content)
	}
}

func TestExcerpter_TruncatesByEstimate(t *testing.T) {
	e := &Excerpter{maxTokens: 10}
	long := strings.Repeat("advisor ", 100)

	got := e.truncate(long)
	if len(got) != 10*charsPerToken {
		t.Errorf("expected %d chars, got %d", 10*charsPerToken, len(got))
	}

	short := "advisor"
	if e.truncate(short) != short {
		t.Errorf("short text should pass through")
	}
}
