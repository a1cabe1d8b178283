// Package classify guesses whether a payload is markup or delimited text.
package classify

import (
	"net/url"
	"path"
	"strings"

	"github.com/kosarica/feed-service/internal/parsers/charset"
	"github.com/kosarica/feed-service/internal/types"
)

// Order returns both feed kinds, the more likely one first. The caller tries
// them in turn, so a wrong guess costs a second parse, not a failure.
//
// Checks run in this order: leading '<'; a csv or excel content type; a
// location ending in .csv or .txt; any candidate delimiter in the text.
func Order(text string, rctx types.RetrievalContext, delimiters []rune) []types.FeedKind {
	xmlFirst := []types.FeedKind{types.FeedKindXML, types.FeedKindCSV}
	csvFirst := []types.FeedKind{types.FeedKindCSV, types.FeedKindXML}

	trimmed := strings.TrimSpace(charset.StripBOMString(text))
	if strings.HasPrefix(trimmed, "<") {
		return xmlFirst
	}

	ct := strings.ToLower(rctx.ContentType)
	if strings.Contains(ct, "csv") || strings.Contains(ct, "excel") {
		return csvFirst
	}

	if ext := extension(rctx.Location); ext == ".csv" || ext == ".txt" {
		return csvFirst
	}

	if strings.ContainsAny(trimmed, string(delimiters)) {
		return csvFirst
	}

	return xmlFirst
}

// extension returns the lower-cased extension of a URL path or file name.
func extension(location string) string {
	if location == "" {
		return ""
	}
	p := location
	if u, err := url.Parse(location); err == nil && u.Path != "" {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}
