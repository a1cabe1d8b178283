package pipeline

import (
	"context"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kosarica/feed-service/internal/classify"
	"github.com/kosarica/feed-service/internal/extract"
	"github.com/kosarica/feed-service/internal/mapping"
	"github.com/kosarica/feed-service/internal/parsers/csv"
	"github.com/kosarica/feed-service/internal/parsers/xlsx"
	"github.com/kosarica/feed-service/internal/parsers/xml"
	"github.com/kosarica/feed-service/internal/retrieval"
	"github.com/kosarica/feed-service/internal/types"
)

// Parse turns content into items. The classifier decides which parser runs
// first; the other runs only when the first finds nothing. A *types.ParseError
// is returned when both come back empty.
func (p *Pipeline) Parse(ctx context.Context, content *types.Content) (*types.ParsedFeed, error) {
	_, span := p.tracer.Start(ctx, "pipeline.Parse")
	defer span.End()

	if retrieval.IsSpreadsheet(content) {
		res, err := xlsx.Parse(content.Data)
		if err != nil {
			p.logger.Debug().Err(err).Str("location", content.Context.Location).Msg("Workbook could not be read")
		}
		if res != nil && len(res.Rows) > 0 {
			feed := csvFeed(res)
			p.recordParse(feed)
			span.SetAttributes(attribute.Int("feed.items", feed.Len()))
			return feed, nil
		}
		return nil, p.parseError(content)
	}

	text := content.Text()
	for i, kind := range classify.Order(text, content.Context, p.cfg.DelimiterRunes()) {
		feed := p.parseAs(kind, content, text)
		if feed.Len() == 0 {
			continue
		}
		feed.Fallback = i > 0
		if feed.Fallback {
			p.logger.Info().
				Str("kind", string(kind)).
				Str("location", content.Context.Location).
				Msg("Preferred parser found no items, used fallback")
		}
		p.recordParse(feed)
		span.SetAttributes(
			attribute.String("feed.kind", string(feed.Kind)),
			attribute.Int("feed.items", feed.Len()),
			attribute.Bool("feed.fallback", feed.Fallback),
		)
		return feed, nil
	}

	err := p.parseError(content)
	span.RecordError(err)
	return nil, err
}

func (p *Pipeline) parseAs(kind types.FeedKind, content *types.Content, text string) *types.ParsedFeed {
	switch kind {
	case types.FeedKindCSV:
		res := csv.NewParser(csv.Options{Delimiters: p.cfg.DelimiterRunes(), QuoteChar: '"'}).Parse(text)
		// Markup split on commas is not a table.
		if len(res.Headers) > 0 && strings.HasPrefix(res.Headers[0], "<") {
			return &types.ParsedFeed{Kind: types.FeedKindCSV}
		}
		return csvFeed(res)
	default:
		res := xml.NewParser(xml.Options{ItemPath: p.cfg.ItemPath}).Parse(content.Data)
		feed := &types.ParsedFeed{
			Kind:       types.FeedKindXML,
			Namespaces: res.Namespaces,
			Flavor:     res.Flavor,
			Items:      make([]types.ItemRecord, 0, len(res.Items)),
		}
		for _, n := range res.Items {
			feed.Items = append(feed.Items, types.XMLItem(n))
		}
		return feed
	}
}

func csvFeed(res *csv.Result) *types.ParsedFeed {
	feed := &types.ParsedFeed{
		Kind:       types.FeedKindCSV,
		Namespaces: map[string]string{},
		Headers:    res.Headers,
		Items:      make([]types.ItemRecord, 0, len(res.Rows)),
	}
	for _, row := range res.Rows {
		feed.Items = append(feed.Items, types.CSVItem(row))
	}
	return feed
}

func (p *Pipeline) parseError(content *types.Content) *types.ParseError {
	parseFailures.Inc()
	sample := content.Data
	if len(sample) > p.cfg.SampleBytes {
		sample = sample[:p.cfg.SampleBytes]
	}
	err := &types.ParseError{
		ContentType: content.Context.ContentType,
		ByteLength:  len(content.Data),
		Location:    content.Context.Location,
		Sample:      strings.ToValidUTF8(string(sample), "\uFFFD"),
	}
	p.logger.Warn().
		Str("location", err.Location).
		Str("content_type", err.ContentType).
		Int("bytes", err.ByteLength).
		Msg("No items found in feed")
	return err
}

func (p *Pipeline) recordParse(feed *types.ParsedFeed) {
	parsesTotal.WithLabelValues(string(feed.Kind), strconv.FormatBool(feed.Fallback)).Inc()
	p.logger.Info().
		Str("kind", string(feed.Kind)).
		Str("flavor", feed.Flavor).
		Int("items", feed.Len()).
		Msg("Feed parsed")
}

// Preview summarises a parsed payload for the mapping step.
type Preview struct {
	Retrieval        types.RetrievalContext     `json:"retrieval"`
	Kind             types.FeedKind             `json:"kind"`
	Flavor           string                     `json:"flavor,omitempty"`
	Fallback         bool                       `json:"fallback"`
	ItemCount        int                        `json:"itemCount"`
	Namespaces       map[string]string          `json:"namespaces"`
	Fields           []string                   `json:"fields"`
	SuggestedMapping types.FieldMapping         `json:"suggestedMapping"`
	Sample           map[types.Attribute]string `json:"sample"`
}

// Preview retrieves and parses src without writing anything.
func (p *Pipeline) Preview(ctx context.Context, src Source) (*Preview, error) {
	content, err := p.Retrieve(ctx, src)
	if err != nil {
		return nil, err
	}
	parsed, err := p.Parse(ctx, content)
	if err != nil {
		return nil, err
	}
	return p.buildPreview(content, parsed), nil
}

func (p *Pipeline) buildPreview(content *types.Content, parsed *types.ParsedFeed) *Preview {
	fields := mapping.ObservedFields(parsed)
	suggested := mapping.Suggest(fields)
	preview := &Preview{
		Retrieval:        content.Context,
		Kind:             parsed.Kind,
		Flavor:           parsed.Flavor,
		Fallback:         parsed.Fallback,
		ItemCount:        parsed.Len(),
		Namespaces:       parsed.Namespaces,
		Fields:           fields,
		SuggestedMapping: suggested,
		Sample:           map[types.Attribute]string{},
	}
	if parsed.Len() > 0 {
		preview.Sample = extract.Sample(parsed.Items[0], suggested, parsed.Namespaces)
	}
	return preview
}
