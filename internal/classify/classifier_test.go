package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kosarica/feed-service/internal/types"
)

var delimiters = []rune{',', ';', '\t', '|'}

func TestOrder(t *testing.T) {
	xmlFirst := []types.FeedKind{types.FeedKindXML, types.FeedKindCSV}
	csvFirst := []types.FeedKind{types.FeedKindCSV, types.FeedKindXML}

	tests := []struct {
		name     string
		text     string
		ctype    string
		location string
		want     []types.FeedKind
	}{
		{"leading angle bracket", "<rss/>", "text/csv", "https://x/feed.csv", xmlFirst},
		{"whitespace and bom before markup", "\uFEFF \n<?xml version=\"1.0\"?><a/>", "", "", xmlFirst},
		{"csv content type", "id title", "text/csv; charset=utf-8", "", csvFirst},
		{"excel content type", "id title", "application/vnd.ms-excel", "", csvFirst},
		{"csv extension", "id title", "text/plain", "https://x/export.CSV?token=1", csvFirst},
		{"txt upload name", "id title", "", "products.txt", csvFirst},
		{"delimiter present", "id;title", "application/octet-stream", "https://x/feed", csvFirst},
		{"pipe delimiter", "id|title", "", "", csvFirst},
		{"nothing matches", "just words", "", "https://x/feed.xml", xmlFirst},
		{"empty", "", "", "", xmlFirst},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rctx := types.RetrievalContext{ContentType: tt.ctype, Location: tt.location}
			assert.Equal(t, tt.want, Order(tt.text, rctx, delimiters))
		})
	}
}
