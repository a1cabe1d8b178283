// Package extract reads mapped fields out of parsed feed items.
package extract

import (
	"regexp"
	"sort"

	"github.com/kosarica/feed-service/internal/normalize"
	"github.com/kosarica/feed-service/internal/parsers/xml"
	"github.com/kosarica/feed-service/internal/types"
)

var prefixedName = regexp.MustCompile(`^([A-Za-z_][\w.-]*):([A-Za-z_][\w.-]*)$`)

// Field returns the raw value of the field named by selector, or "" when the
// item has no such field.
//
// Delimited rows are looked up by column name. For XML items a selector of
// the form prefix:name is resolved through namespaces and matched against
// children in that namespace; a plain name matches a direct child by local
// name. An element with no text falls back to its href attribute, which is
// how Atom carries links.
func Field(item types.ItemRecord, selector string, namespaces map[string]string) string {
	if selector == "" {
		return ""
	}
	switch item.Kind {
	case types.FeedKindCSV:
		return item.Row[selector]
	case types.FeedKindXML:
		if item.Node == nil {
			return ""
		}
		n := lookup(item.Node, selector, namespaces)
		if n == nil {
			return ""
		}
		if n.Text == "" {
			if href, ok := n.Attr("href"); ok {
				return href
			}
		}
		return n.Text
	}
	return ""
}

func lookup(item *xml.Node, selector string, namespaces map[string]string) *xml.Node {
	m := prefixedName.FindStringSubmatch(selector)
	if m == nil {
		return item.Child(selector)
	}
	prefix, local := m[1], m[2]
	if uri, ok := namespaces[prefix]; ok {
		if n := item.ChildNS(uri, local); n != nil {
			return n
		}
	}
	// Undeclared prefixes stay unresolved in the element name.
	return item.ChildNS(prefix, local)
}

// FieldNames lists the selectors an item offers, in document order for XML.
// Namespaced XML children are reported as prefix:name.
func FieldNames(item types.ItemRecord, namespaces map[string]string) []string {
	switch item.Kind {
	case types.FeedKindCSV:
		names := make([]string, 0, len(item.Row))
		for k := range item.Row {
			names = append(names, k)
		}
		sort.Strings(names)
		return names
	case types.FeedKindXML:
		if item.Node == nil {
			return nil
		}
		return xmlFieldNames(item.Node, namespaces)
	}
	return nil
}

func xmlFieldNames(node *xml.Node, namespaces map[string]string) []string {
	prefixes := make(map[string]string, len(namespaces))
	for p, uri := range namespaces {
		if cur, ok := prefixes[uri]; !ok || p < cur {
			prefixes[uri] = p
		}
	}

	seen := map[string]bool{}
	var names []string
	for _, c := range node.Children {
		name := c.Name.Local
		if c.Name.Space != "" && c.Name.Space != node.Name.Space {
			if p, ok := prefixes[c.Name.Space]; ok {
				name = p + ":" + c.Name.Local
			} else {
				name = c.Name.Space + ":" + c.Name.Local
			}
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Options tunes product extraction.
type Options struct {
	SanitizeDescription bool
}

// Product builds a product row from item using mapping. It returns false when
// sku, title or url is empty, in which case the item must be skipped.
func Product(item types.ItemRecord, mapping types.FieldMapping, namespaces map[string]string, opts Options) (types.Product, bool) {
	p := types.Product{
		SKU:   normalize.Text(Field(item, mapping.SKU, namespaces)),
		Title: normalize.PlainText(Field(item, mapping.Title, namespaces)),
		URL:   normalize.Text(Field(item, mapping.URL, namespaces)),
	}
	if p.SKU == "" || p.Title == "" || p.URL == "" {
		return types.Product{}, false
	}

	p.GTIN = normalize.Optional(normalize.Text(Field(item, mapping.GTIN, namespaces)))
	p.Description = normalize.Optional(normalize.Description(Field(item, mapping.Description, namespaces), opts.SanitizeDescription))
	if mapping.Price != "" {
		p.Price = normalize.ParsePrice(Field(item, mapping.Price, namespaces))
	}
	return p, true
}

// Sample renders the mapped attributes of one item for previews.
func Sample(item types.ItemRecord, mapping types.FieldMapping, namespaces map[string]string) map[types.Attribute]string {
	out := make(map[types.Attribute]string, len(types.Attributes))
	for _, attr := range types.Attributes {
		if sel := mapping.Get(attr); sel != "" {
			out[attr] = Field(item, sel, namespaces)
		}
	}
	return out
}
