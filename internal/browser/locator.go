package browser

import (
	"fmt"
	"strings"
)

// Locator addresses an element. A plain value is a CSS selector; the prefixes
// "xpath=" and "text=" select an XPath expression or an element whose visible
// text contains the value. A value starting with "//" is taken as XPath.
type Locator string

const (
	xpathPrefix = "xpath="
	textPrefix  = "text="
)

// LocatorKind tells how a locator is resolved.
type LocatorKind int

const (
	KindCSS LocatorKind = iota
	KindXPath
	KindText
)

// CSS returns a CSS selector locator.
func CSS(selector string) Locator { return Locator(selector) }

// XPath returns an XPath locator.
func XPath(expr string) Locator { return Locator(xpathPrefix + expr) }

// Text returns a locator matching an element by its visible text.
func Text(text string) Locator { return Locator(textPrefix + text) }

// Kind reports how the locator is resolved.
func (l Locator) Kind() LocatorKind {
	s := strings.TrimSpace(string(l))
	switch {
	case strings.HasPrefix(s, xpathPrefix), strings.HasPrefix(s, "//"), strings.HasPrefix(s, "(//"):
		return KindXPath
	case strings.HasPrefix(s, textPrefix):
		return KindText
	default:
		return KindCSS
	}
}

// Value returns the locator without its prefix.
func (l Locator) Value() string {
	s := strings.TrimSpace(string(l))
	switch {
	case strings.HasPrefix(s, xpathPrefix):
		return strings.TrimPrefix(s, xpathPrefix)
	case strings.HasPrefix(s, textPrefix):
		return strings.TrimPrefix(s, textPrefix)
	default:
		return s
	}
}

// AsText reinterprets the locator's value as literal visible text.
func (l Locator) AsText() Locator {
	return Text(l.Value())
}

// Query returns the selector string and whether it is XPath.
func (l Locator) Query() (string, bool) {
	switch l.Kind() {
	case KindXPath:
		return l.Value(), true
	case KindText:
		return textXPath(l.Value()), true
	default:
		return l.Value(), false
	}
}

func (l Locator) String() string { return string(l) }

// textXPath matches the innermost clickable or labelled element containing text.
func textXPath(text string) string {
	lit := xpathLiteral(strings.TrimSpace(text))
	return fmt.Sprintf(
		"//*[self::a or self::button or self::label or self::option or self::span or self::div or self::input]"+
			"[contains(normalize-space(.), %[1]s) or @value=%[1]s or @placeholder=%[1]s or @aria-label=%[1]s]"+
			"[not(descendant::*[contains(normalize-space(.), %[1]s)])]",
		lit,
	)
}

// xpathLiteral quotes s for use in an XPath 1.0 expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
