package types

import (
	"time"

	"github.com/kosarica/feed-service/internal/parsers/xml"
)

// FeedKind identifies the structural family a payload was parsed as.
type FeedKind string

const (
	FeedKindCSV FeedKind = "csv"
	FeedKindXML FeedKind = "xml"
)

// Attribute is one of the fixed product attributes a feed field can be mapped onto.
type Attribute string

const (
	AttrSKU         Attribute = "sku"
	AttrGTIN        Attribute = "gtin"
	AttrTitle       Attribute = "title"
	AttrDescription Attribute = "description"
	AttrURL         Attribute = "url"
	AttrPrice       Attribute = "price"
)

// Attributes lists every mappable attribute in display order.
var Attributes = []Attribute{AttrSKU, AttrGTIN, AttrTitle, AttrDescription, AttrURL, AttrPrice}

// FieldMapping maps each product attribute to a field selector in the source feed.
// An empty selector means the attribute is not mapped.
type FieldMapping struct {
	SKU         string `json:"sku"`
	GTIN        string `json:"gtin"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Price       string `json:"price"`
}

// Get returns the selector mapped to attr.
func (m FieldMapping) Get(attr Attribute) string {
	switch attr {
	case AttrSKU:
		return m.SKU
	case AttrGTIN:
		return m.GTIN
	case AttrTitle:
		return m.Title
	case AttrDescription:
		return m.Description
	case AttrURL:
		return m.URL
	case AttrPrice:
		return m.Price
	}
	return ""
}

// Set assigns selector to attr. Unknown attributes are ignored.
func (m *FieldMapping) Set(attr Attribute, selector string) {
	switch attr {
	case AttrSKU:
		m.SKU = selector
	case AttrGTIN:
		m.GTIN = selector
	case AttrTitle:
		m.Title = selector
	case AttrDescription:
		m.Description = selector
	case AttrURL:
		m.URL = selector
	case AttrPrice:
		m.Price = selector
	}
}

// IsZero reports whether no attribute is mapped.
func (m FieldMapping) IsZero() bool {
	return m == FieldMapping{}
}

// Feed is a tenant-owned product source.
type Feed struct {
	ID             string       `json:"id"`
	TenantID       string       `json:"tenantId"`
	Name           string       `json:"name"`
	SourceURL      *string      `json:"sourceUrl,omitempty"`
	FieldMappings  FieldMapping `json:"fieldMappings"`
	ProductCount   int          `json:"productCount"`
	LastImportedAt *time.Time   `json:"lastImportedAt,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// IsRemote reports whether the feed can be refreshed from a URL.
func (f *Feed) IsRemote() bool {
	return f.SourceURL != nil && *f.SourceURL != ""
}

// Product is one normalized catalog row belonging to a feed.
type Product struct {
	SKU         string   `json:"sku"`
	GTIN        *string  `json:"gtin,omitempty"`
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	URL         string   `json:"url"`
	Price       *float64 `json:"price,omitempty"`
}

// ItemRecord is one raw feed item. Exactly one of Row or Node is set,
// matching Kind.
type ItemRecord struct {
	Kind FeedKind
	Row  map[string]string
	Node *xml.Node
}

// CSVItem wraps a delimited row.
func CSVItem(row map[string]string) ItemRecord {
	return ItemRecord{Kind: FeedKindCSV, Row: row}
}

// XMLItem wraps an XML element.
func XMLItem(node *xml.Node) ItemRecord {
	return ItemRecord{Kind: FeedKindXML, Node: node}
}

// ParsedFeed is the uniform result of parsing a payload.
type ParsedFeed struct {
	Kind  FeedKind     `json:"kind"`
	Items []ItemRecord `json:"-"`
	// Namespaces maps prefix to URI; always empty for CSV.
	Namespaces map[string]string `json:"namespaces"`
	// Headers holds the CSV header row in source order.
	Headers []string `json:"headers,omitempty"`
	// Flavor is the syndication format of an XML payload (rss, atom) when recognised.
	Flavor string `json:"flavor,omitempty"`
	// Fallback is set when the classifier's preferred parser found nothing.
	Fallback bool `json:"fallback"`
}

// Len returns the number of parsed items.
func (p *ParsedFeed) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Items)
}
