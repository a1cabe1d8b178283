package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosarica/feed-service/internal/parsers/xml"
	"github.com/kosarica/feed-service/internal/types"
)

const googleNS = "http://base.google.com/ns/1.0"

func parseXML(t *testing.T, doc string) (*xml.Result, types.ItemRecord) {
	t.Helper()
	res := xml.Parse([]byte(doc))
	require.NotEmpty(t, res.Items)
	return res, types.XMLItem(res.Items[0])
}

func TestFieldXMLNamespaced(t *testing.T) {
	res, item := parseXML(t, `<rss xmlns:g="`+googleNS+`"><channel><item>
		<g:id>2</g:id><g:price>189.00 SEK</g:price><title>Plain title</title><g:title>Google title</g:title>
	</item></channel></rss>`)

	tests := []struct {
		selector string
		want     string
	}{
		{"g:id", "2"},
		{"g:price", "189.00 SEK"},
		{"title", "Plain title"},
		{"g:title", "Google title"},
		{"id", ""},
		{"g:missing", ""},
		{"x:id", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			assert.Equal(t, tt.want, Field(item, tt.selector, res.Namespaces))
		})
	}
}

func TestFieldXMLUndeclaredPrefix(t *testing.T) {
	res, item := parseXML(t, `<item><g:id>9</g:id></item>`)
	assert.Equal(t, "9", Field(item, "g:id", res.Namespaces))
}

func TestFieldXMLPrefixResolvedByURI(t *testing.T) {
	// The document binds the Google namespace to a different prefix; the
	// selector's prefix is resolved through the namespace map.
	res, item := parseXML(t, `<item xmlns:gg="`+googleNS+`"><gg:id>5</gg:id></item>`)
	assert.Equal(t, "5", Field(item, "gg:id", res.Namespaces))
	assert.Equal(t, "", Field(item, "g:id", res.Namespaces))
}

func TestFieldAtomLinkHref(t *testing.T) {
	res, item := parseXML(t, `<feed xmlns="http://www.w3.org/2005/Atom"><entry><id>1</id><link href="https://x/1"/></entry></feed>`)
	assert.Equal(t, "https://x/1", Field(item, "link", res.Namespaces))
}

func TestFieldCSV(t *testing.T) {
	item := types.CSVItem(map[string]string{"id": "1", "g:id": "G1"})

	assert.Equal(t, "1", Field(item, "id", nil))
	assert.Equal(t, "G1", Field(item, "g:id", nil))
	assert.Equal(t, "", Field(item, "title", nil))
}

func TestFieldNames(t *testing.T) {
	res, item := parseXML(t, `<rss xmlns:g="`+googleNS+`"><channel><item>
		<g:id>2</g:id><title>a</title><link>b</link><g:image_link>c</g:image_link><g:image_link>d</g:image_link>
	</item></channel></rss>`)

	assert.Equal(t, []string{"g:id", "title", "link", "g:image_link"}, FieldNames(item, res.Namespaces))

	row := types.CSVItem(map[string]string{"title": "", "id": ""})
	assert.Equal(t, []string{"id", "title"}, FieldNames(row, nil))
}

func TestProduct(t *testing.T) {
	mapping := types.FieldMapping{SKU: "id", GTIN: "ean", Title: "title", Description: "desc", URL: "url", Price: "price"}

	tests := []struct {
		name  string
		row   map[string]string
		ok    bool
		check func(t *testing.T, p types.Product)
	}{
		{
			name: "complete",
			row:  map[string]string{"id": "1", "ean": "4006381333931", "title": "Widget", "desc": "<b>Nice</b>", "url": "https://x", "price": "9,99 EUR"},
			ok:   true,
			check: func(t *testing.T, p types.Product) {
				assert.Equal(t, "1", p.SKU)
				require.NotNil(t, p.GTIN)
				assert.Equal(t, "4006381333931", *p.GTIN)
				require.NotNil(t, p.Description)
				assert.Equal(t, "<b>Nice</b>", *p.Description)
				require.NotNil(t, p.Price)
				assert.InDelta(t, 9.99, *p.Price, 1e-9)
			},
		},
		{
			name: "optional fields empty",
			row:  map[string]string{"id": "2", "title": "Bare", "url": "https://y", "price": "call us"},
			ok:   true,
			check: func(t *testing.T, p types.Product) {
				assert.Nil(t, p.GTIN)
				assert.Nil(t, p.Description)
				assert.Nil(t, p.Price)
			},
		},
		{
			name: "article number before price",
			row:  map[string]string{"id": "5", "title": "Sofa", "url": "https://s", "price": "Art. 123456789012 - 19,99 EUR"},
			ok:   true,
			check: func(t *testing.T, p types.Product) {
				require.NotNil(t, p.Price)
				assert.Equal(t, 123456789012.0, *p.Price)
			},
		},
		{name: "missing sku", row: map[string]string{"title": "x", "url": "https://z"}},
		{name: "blank title", row: map[string]string{"id": "3", "title": "  ", "url": "https://z"}},
		{name: "missing url", row: map[string]string{"id": "4", "title": "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := Product(types.CSVItem(tt.row), mapping, nil, Options{SanitizeDescription: true})
			assert.Equal(t, tt.ok, ok)
			if tt.check != nil {
				tt.check(t, p)
			}
		})
	}
}

func TestProductGoogleMerchantItem(t *testing.T) {
	res, item := parseXML(t, `<rss xmlns:g="`+googleNS+`"><channel><item>
		<g:id>2</g:id><g:title>Lamp</g:title><g:link>https://shop/lamp</g:link><g:price>189.00 SEK</g:price>
	</item></channel></rss>`)

	mapping := types.FieldMapping{SKU: "g:id", Title: "g:title", URL: "g:link", Price: "g:price"}
	p, ok := Product(item, mapping, res.Namespaces, Options{})
	require.True(t, ok)
	assert.Equal(t, "2", p.SKU)
	require.NotNil(t, p.Price)
	assert.InDelta(t, 189.00, *p.Price, 1e-9)
}

func TestSample(t *testing.T) {
	item := types.CSVItem(map[string]string{"id": "1", "title": "Widget"})
	mapping := types.FieldMapping{SKU: "id", Title: "title", URL: "link"}

	assert.Equal(t, map[types.Attribute]string{
		types.AttrSKU: "1", types.AttrTitle: "Widget", types.AttrURL: "",
	}, Sample(item, mapping, nil))
}
