// Package mapping proposes and validates feed field mappings.
package mapping

import (
	"strings"

	"github.com/kosarica/feed-service/internal/extract"
	"github.com/kosarica/feed-service/internal/types"
)

// Aliases lists, per attribute, the field names that usually carry it, most
// specific first. Google Merchant names come before generic ones.
var Aliases = map[types.Attribute][]string{
	types.AttrSKU:         {"g:id", "id", "item_group_id", "sku"},
	types.AttrGTIN:        {"g:gtin", "gtin", "ean", "barcode", "upc"},
	types.AttrTitle:       {"g:title", "title", "item_title"},
	types.AttrDescription: {"g:description", "description", "item_description", "summary"},
	types.AttrURL:         {"g:link", "link", "url", "item_url"},
	types.AttrPrice:       {"g:price", "price"},
}

// Suggest picks, for every attribute, the first alias present among the
// observed field names. An exact match on any alias beats a case-insensitive
// one; attributes with no match stay empty.
func Suggest(observed []string) types.FieldMapping {
	exact := make(map[string]bool, len(observed))
	folded := make(map[string]string, len(observed))
	for _, name := range observed {
		exact[name] = true
		key := strings.ToLower(strings.TrimSpace(name))
		if _, ok := folded[key]; !ok {
			folded[key] = name
		}
	}

	var m types.FieldMapping
	for _, attr := range types.Attributes {
		m.Set(attr, pick(Aliases[attr], exact, folded))
	}
	return m
}

func pick(aliases []string, exact map[string]bool, folded map[string]string) string {
	for _, alias := range aliases {
		if exact[alias] {
			return alias
		}
	}
	for _, alias := range aliases {
		if name, ok := folded[alias]; ok {
			return name
		}
	}
	return ""
}

// ObservedFields returns the field names of a parsed feed: the header row
// for delimited data, otherwise the children of the first item.
func ObservedFields(feed *types.ParsedFeed) []string {
	if feed == nil {
		return nil
	}
	if feed.Kind == types.FeedKindCSV && len(feed.Headers) > 0 {
		out := make([]string, 0, len(feed.Headers))
		for _, h := range feed.Headers {
			if h != "" {
				out = append(out, h)
			}
		}
		return out
	}
	if len(feed.Items) == 0 {
		return nil
	}
	return extract.FieldNames(feed.Items[0], feed.Namespaces)
}

// SuggestFor is Suggest over the observed fields of feed.
func SuggestFor(feed *types.ParsedFeed) types.FieldMapping {
	return Suggest(ObservedFields(feed))
}
