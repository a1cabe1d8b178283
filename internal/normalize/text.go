package normalize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicy = bluemonday.StrictPolicy()
	ugcPolicy    = bluemonday.UGCPolicy()
)

// Text trims s and replaces invalid UTF-8 so it can be stored as text.
func Text(s string) string {
	return strings.TrimSpace(strings.ToValidUTF8(s, "\uFFFD"))
}

// Description cleans a product description. With sanitize set, markup is
// reduced to the user generated content subset (links, emphasis, lists).
func Description(s string, sanitize bool) string {
	s = Text(s)
	if !sanitize || s == "" {
		return s
	}
	return strings.TrimSpace(ugcPolicy.Sanitize(s))
}

// PlainText strips all markup and unescapes entities. Used for titles.
func PlainText(s string) string {
	s = Text(s)
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}

// Optional returns nil for empty strings.
func Optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
