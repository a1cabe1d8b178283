package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kosarica/feed-service/config"
	feedhttp "github.com/kosarica/feed-service/internal/http"
	"github.com/kosarica/feed-service/internal/parsers/xlsx"
	"github.com/kosarica/feed-service/internal/retrieval"
	"github.com/kosarica/feed-service/internal/storage"
	"github.com/kosarica/feed-service/internal/types"
)

const googleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:g="http://base.google.com/ns/1.0">
  <channel>
    <title>Shop</title>
    <item>
      <g:id>2</g:id>
      <title>Oak Chair</title>
      <link>https://shop.example/chair</link>
      <g:price>189.00 SEK</g:price>
    </item>
  </channel>
</rss>`

var csvMapping = types.FieldMapping{SKU: "sku", Title: "title", URL: "url", Price: "price"}

type mockRetriever struct{ mock.Mock }

func (m *mockRetriever) FromURL(ctx context.Context, url string) (*types.Content, error) {
	args := m.Called(url)
	c, _ := args.Get(0).(*types.Content)
	return c, args.Error(1)
}

func (m *mockRetriever) FromUpload(filename string, body io.Reader) (*types.Content, error) {
	args := m.Called(filename)
	c, _ := args.Get(0).(*types.Content)
	return c, args.Error(1)
}

type mockScheduler struct{ mock.Mock }

func (m *mockScheduler) ScheduleContentGeneration(ctx context.Context, feed *types.Feed, products int) error {
	return m.Called(feed.ID, products).Error(0)
}

func newTestPipeline(t *testing.T, r Retriever, cfg config.PipelineConfig, opts ...Option) (*Pipeline, pgxmock.PgxPoolIface) {
	t.Helper()
	db, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return New(cfg, r, db, zerolog.Nop(), opts...), db
}

func textContent(location, contentType, body string) *types.Content {
	return &types.Content{
		Data: []byte(body),
		Context: types.RetrievalContext{
			Source:      types.SourceUpload,
			Location:    location,
			ContentType: contentType,
			ByteLength:  len(body),
			RetrievedAt: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
		},
	}
}

func expectImport(db pgxmock.PgxPoolIface, feedID string, deleted int64, inserts []int64, total int) {
	db.ExpectBegin()
	db.ExpectExec("INSERT INTO feeds").
		WithArgs(feedID, "tenant-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	db.ExpectExec("DELETE FROM products").
		WithArgs("tenant-1", feedID).
		WillReturnResult(pgxmock.NewResult("DELETE", deleted))
	for _, n := range inserts {
		db.ExpectExec("INSERT INTO products").WillReturnResult(pgxmock.NewResult("INSERT", n))
	}
	db.ExpectExec("UPDATE feeds").
		WithArgs(feedID, "tenant-1", total).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	db.ExpectCommit()
}

func TestImportNamespacedXML(t *testing.T) {
	p, db := newTestPipeline(t, &mockRetriever{}, config.DefaultPipelineConfig())
	ctx := context.Background()

	parsed, err := p.Parse(ctx, textContent("feed.xml", "application/xml", googleFeed))
	require.NoError(t, err)
	assert.Equal(t, types.FeedKindXML, parsed.Kind)
	assert.Equal(t, "http://base.google.com/ns/1.0", parsed.Namespaces["g"])
	require.Equal(t, 1, parsed.Len())

	m := types.FieldMapping{SKU: "g:id", Title: "title", URL: "link", Price: "g:price"}
	feed := &types.Feed{ID: "feed-1", TenantID: "tenant-1", Name: "Main"}
	price := 189.00

	db.ExpectBegin()
	db.ExpectExec("INSERT INTO feeds").
		WithArgs("feed-1", "tenant-1", "Main", (*string)(nil), m).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	db.ExpectExec("DELETE FROM products").
		WithArgs("tenant-1", "feed-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	db.ExpectExec("INSERT INTO products").
		WithArgs("tenant-1", "feed-1", "2", (*string)(nil), "Oak Chair", (*string)(nil), "https://shop.example/chair", &price).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	db.ExpectExec("UPDATE feeds").
		WithArgs("feed-1", "tenant-1", 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	db.ExpectCommit()

	res, err := p.Import(ctx, feed, parsed, m)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, feed.ProductCount)
	assert.NotNil(t, feed.LastImportedAt)
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestPreviewSuggestsCSVMapping(t *testing.T) {
	r := &mockRetriever{}
	r.On("FromUpload", "products.csv").
		Return(textContent("products.csv", "text/plain; charset=utf-8", "id,title,url,price\n1,Widget,https://x,9.99"), nil)
	p, db := newTestPipeline(t, r, config.DefaultPipelineConfig())

	preview, err := p.Preview(context.Background(), Source{Filename: "products.csv", Upload: strings.NewReader("ignored")})
	require.NoError(t, err)

	assert.Equal(t, types.FeedKindCSV, preview.Kind)
	assert.Equal(t, 1, preview.ItemCount)
	assert.Equal(t, types.FieldMapping{SKU: "id", Title: "title", URL: "url", Price: "price"}, preview.SuggestedMapping)
	assert.Equal(t, "Widget", preview.Sample[types.AttrTitle])
	assert.Equal(t, []string{"id", "title", "url", "price"}, preview.Fields)
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestImportMissingSelectorTouchesNothing(t *testing.T) {
	p, db := newTestPipeline(t, &mockRetriever{}, config.DefaultPipelineConfig())
	ctx := context.Background()

	parsed, err := p.Parse(ctx, textContent("p.csv", "text/csv", "sku,title,url,price\nA1,Lamp,https://x/a,10"))
	require.NoError(t, err)

	feed := &types.Feed{ID: "feed-1", TenantID: "tenant-1", FieldMappings: csvMapping, ProductCount: 7}
	_, err = p.Import(ctx, feed, parsed, types.FieldMapping{SKU: "sku", URL: "url", Price: "price"})

	var me *types.MappingError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, []types.Attribute{types.AttrTitle}, me.Missing)
	assert.Equal(t, "missing field mapping for title", err.Error())
	assert.Equal(t, csvMapping, feed.FieldMappings)
	assert.Equal(t, 7, feed.ProductCount)
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestPreviewGzipBody(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("sku;title;url;price\nA1;Lamp;https://x/a;10,50\nB2;Desk;https://x/b;99\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	r := retrieval.New(feedhttp.NewClient(feedhttp.DefaultConfig()), 0, zerolog.Nop())
	p, _ := newTestPipeline(t, r, config.DefaultPipelineConfig())

	preview, err := p.Preview(context.Background(), Source{URL: srv.URL + "/feed"})
	require.NoError(t, err)
	assert.Equal(t, types.FeedKindCSV, preview.Kind)
	assert.Equal(t, 2, preview.ItemCount)
	assert.False(t, preview.Fallback)
	assert.Equal(t, "Lamp", preview.Sample[types.AttrTitle])
}

func TestParseTruncatedMarkupFails(t *testing.T) {
	p, _ := newTestPipeline(t, &mockRetriever{}, config.DefaultPipelineConfig())

	_, err := p.Parse(context.Background(), textContent("https://shop.example/feed", "application/xml", "<product><id>1"))

	var pe *types.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "<product><id>1", pe.Sample)
	assert.Equal(t, "application/xml", pe.ContentType)
	assert.Equal(t, 14, pe.ByteLength)
}

func TestParseSampleIsBounded(t *testing.T) {
	cfg := config.DefaultPipelineConfig()
	cfg.SampleBytes = 8
	p, _ := newTestPipeline(t, &mockRetriever{}, cfg)

	_, err := p.Parse(context.Background(), textContent("x", "", "<broken"+strings.Repeat("x", 100)))
	var pe *types.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "<brokenx", pe.Sample)
}

func TestParseFallsBackToSingleColumnCSV(t *testing.T) {
	p, _ := newTestPipeline(t, &mockRetriever{}, config.DefaultPipelineConfig())

	parsed, err := p.Parse(context.Background(), textContent("", "", "sku\nA1\nB2"))
	require.NoError(t, err)
	assert.Equal(t, types.FeedKindCSV, parsed.Kind)
	assert.True(t, parsed.Fallback)
	assert.Equal(t, 2, parsed.Len())
}

func TestParseRejectsMarkupSplitAsCSV(t *testing.T) {
	p, _ := newTestPipeline(t, &mockRetriever{}, config.DefaultPipelineConfig())

	// Unclosed root: XML yields nothing and the CSV guard rejects the markup.
	body := "<rss>\n<item>a</item>\n<item>b</item>\n"
	_, err := p.Parse(context.Background(), textContent("", "", body))
	assert.True(t, errors.As(err, new(*types.ParseError)))
}

func TestParseSpreadsheet(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"sku", "title", "url", "price"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"X1", "Stool", "https://x/s", "12.5"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	p, _ := newTestPipeline(t, &mockRetriever{}, config.DefaultPipelineConfig())
	parsed, err := p.Parse(context.Background(), textContent("cat.xlsx", xlsx.MIMEType, buf.String()))
	require.NoError(t, err)
	assert.Equal(t, types.FeedKindCSV, parsed.Kind)
	assert.Equal(t, []string{"sku", "title", "url", "price"}, parsed.Headers)
	assert.Equal(t, 1, parsed.Len())
}

func bigCSV(n int) string {
	var sb strings.Builder
	sb.WriteString("sku,title,url,price\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "S%03d,Item %d,https://x/%d,%d.50\n", i, i, i, i)
	}
	return sb.String()
}

func TestImportInsertsInChunks(t *testing.T) {
	p, db := newTestPipeline(t, &mockRetriever{}, config.DefaultPipelineConfig())
	ctx := context.Background()

	parsed, err := p.Parse(ctx, textContent("big.csv", "text/csv", bigCSV(250)))
	require.NoError(t, err)
	require.Equal(t, 250, parsed.Len())

	expectImport(db, "feed-1", 40, []int64{100, 100, 50}, 250)

	feed := &types.Feed{ID: "feed-1", TenantID: "tenant-1"}
	res, err := p.Import(ctx, feed, parsed, csvMapping)
	require.NoError(t, err)
	assert.Equal(t, csvMapping, feed.FieldMappings)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, 250, res.Inserted)
	assert.Equal(t, int64(40), res.Replaced)
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestImportRollsBackOnFailedChunk(t *testing.T) {
	p, db := newTestPipeline(t, &mockRetriever{}, config.DefaultPipelineConfig())
	ctx := context.Background()

	parsed, err := p.Parse(ctx, textContent("big.csv", "text/csv", bigCSV(250)))
	require.NoError(t, err)

	db.ExpectBegin()
	db.ExpectExec("INSERT INTO feeds").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	db.ExpectExec("DELETE FROM products").WillReturnResult(pgxmock.NewResult("DELETE", 12))
	db.ExpectExec("INSERT INTO products").WillReturnResult(pgxmock.NewResult("INSERT", 100))
	db.ExpectExec("INSERT INTO products").WillReturnError(errors.New("value too long for type"))
	db.ExpectRollback()

	stored := types.FieldMapping{SKU: "id", Title: "name", URL: "link"}
	feed := &types.Feed{ID: "feed-1", TenantID: "tenant-1", ProductCount: 12, FieldMappings: stored}
	_, err = p.Import(ctx, feed, parsed, csvMapping)

	var ie *types.ImportError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, StageInsertProducts, ie.Stage)
	assert.Equal(t, "feed-1", ie.FeedID)
	assert.Equal(t, 12, feed.ProductCount)
	assert.Nil(t, feed.LastImportedAt)
	assert.Equal(t, stored, feed.FieldMappings)
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestImportSkipsIncompleteAndDuplicateRows(t *testing.T) {
	p, db := newTestPipeline(t, &mockRetriever{}, config.DefaultPipelineConfig())
	ctx := context.Background()

	body := "sku,title,url,price\nA1,Lamp,https://x/a,10\nA2,,https://x/b,5\nA1,Lamp again,https://x/c,11\nB2,Desk,https://x/d,\n"
	parsed, err := p.Parse(ctx, textContent("p.csv", "text/csv", body))
	require.NoError(t, err)

	lamp := 10.0
	db.ExpectBegin()
	db.ExpectExec("INSERT INTO feeds").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	db.ExpectExec("DELETE FROM products").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	db.ExpectExec("INSERT INTO products").
		WithArgs(
			"tenant-1", "feed-1", "A1", (*string)(nil), "Lamp", (*string)(nil), "https://x/a", &lamp,
			"tenant-1", "feed-1", "B2", (*string)(nil), "Desk", (*string)(nil), "https://x/d", (*float64)(nil),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	db.ExpectExec("UPDATE feeds").WithArgs("feed-1", "tenant-1", 2).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	db.ExpectCommit()

	res, err := p.Import(ctx, &types.Feed{ID: "feed-1", TenantID: "tenant-1"}, parsed, csvMapping)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Items)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Duplicates)
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestIngestWithoutMappingReturnsSuggestion(t *testing.T) {
	r := &mockRetriever{}
	r.On("FromUpload", "p.csv").Return(textContent("p.csv", "text/csv", "id,title,link,price\n1,Lamp,https://x/a,10"), nil)
	p, db := newTestPipeline(t, r, config.DefaultPipelineConfig())

	res, err := p.Ingest(context.Background(), IngestRequest{
		Feed:   &types.Feed{TenantID: "tenant-1", Name: "New"},
		Source: Source{Filename: "p.csv", Upload: strings.NewReader("x")},
	})
	require.NoError(t, err)
	assert.True(t, res.NeedsMapping)
	assert.Nil(t, res.Import)
	assert.NotEmpty(t, res.Feed.ID)
	assert.Equal(t, "link", res.Preview.SuggestedMapping.URL)
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestIngestImportsAndSchedulesFollowUp(t *testing.T) {
	r := &mockRetriever{}
	r.On("FromURL", "https://shop.example/feed.xml").Return(textContent("https://shop.example/feed.xml", "application/rss+xml", googleFeed), nil)

	jobs := &mockScheduler{}
	jobs.On("ScheduleContentGeneration", "feed-9", 1).Return(nil)

	archive, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	cfg := config.DefaultPipelineConfig()
	cfg.EnqueueContentJobs = true
	p, db := newTestPipeline(t, r, cfg, WithArchive(archive), WithJobScheduler(jobs))

	expectImport(db, "feed-9", 3, []int64{1}, 1)

	m := types.FieldMapping{SKU: "g:id", Title: "title", URL: "link", Price: "g:price"}
	res, err := p.Ingest(context.Background(), IngestRequest{
		Feed:    &types.Feed{ID: "feed-9", TenantID: "tenant-1"},
		Source:  Source{URL: "https://shop.example/feed.xml"},
		Mapping: &m,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Import)
	assert.Equal(t, 1, res.Import.Inserted)
	assert.Equal(t, "https://shop.example/feed.xml", *res.Feed.SourceURL)
	jobs.AssertExpectations(t)
	assert.NoError(t, db.ExpectationsWereMet())

	keys, err := archive.List(context.Background(), storage.FeedPrefix("tenant-1", "feed-9"))
	require.NoError(t, err)
	assert.Equal(t, []string{"feeds/tenant-1/feed-9/2026/04/01/1775030400.xml"}, keys)
}

var feedRowColumns = []string{"id", "tenant_id", "name", "source_url", "field_mappings", "product_count", "last_imported_at", "created_at", "updated_at"}

func TestRefreshWithoutStoredMappingFails(t *testing.T) {
	src := "https://shop.example/feed.xml"
	r := &mockRetriever{}
	r.On("FromURL", src).Return(textContent(src, "application/xml", googleFeed), nil)
	p, db := newTestPipeline(t, r, config.DefaultPipelineConfig())

	now := time.Now()
	db.ExpectQuery("SELECT (.+) FROM feeds WHERE id = \\$1 AND tenant_id = \\$2").
		WithArgs("feed-1", "tenant-1").
		WillReturnRows(pgxmock.NewRows(feedRowColumns).
			AddRow("feed-1", "tenant-1", "Main", &src, types.FieldMapping{}, 0, (*time.Time)(nil), now, now))

	_, err := p.Refresh(context.Background(), "tenant-1", "feed-1")
	assert.True(t, types.IsMappingError(err))
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestRefreshUsesStoredMapping(t *testing.T) {
	src := "https://shop.example/feed.xml"
	r := &mockRetriever{}
	r.On("FromURL", src).Return(textContent(src, "application/xml", googleFeed), nil)
	p, db := newTestPipeline(t, r, config.DefaultPipelineConfig())

	now := time.Now()
	stored := types.FieldMapping{SKU: "g:id", Title: "title", URL: "link", Price: "g:price"}
	db.ExpectQuery("SELECT (.+) FROM feeds").
		WithArgs("feed-1", "tenant-1").
		WillReturnRows(pgxmock.NewRows(feedRowColumns).
			AddRow("feed-1", "tenant-1", "Main", &src, stored, 1, (*time.Time)(nil), now, now))
	expectImport(db, "feed-1", 1, []int64{1}, 1)

	res, err := p.Refresh(context.Background(), "tenant-1", "feed-1")
	require.NoError(t, err)
	assert.True(t, res.Preview.Retrieval.Refreshing)
	assert.Equal(t, 1, res.Import.Inserted)
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestRefreshRequiresSourceURL(t *testing.T) {
	p, _ := newTestPipeline(t, &mockRetriever{}, config.DefaultPipelineConfig())
	_, err := p.RefreshFeed(context.Background(), &types.Feed{ID: "f", TenantID: "t"})
	assert.ErrorIs(t, err, ErrNotRefreshable)
}

func TestRetrieveNeedsExactlyOneSource(t *testing.T) {
	p, _ := newTestPipeline(t, &mockRetriever{}, config.DefaultPipelineConfig())

	_, err := p.Retrieve(context.Background(), Source{})
	assert.ErrorIs(t, err, ErrNoSource)

	_, err = p.Retrieve(context.Background(), Source{URL: "https://x", Upload: strings.NewReader("a")})
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestRetrieveSurfacesFetchError(t *testing.T) {
	r := &mockRetriever{}
	r.On("FromURL", "https://x/feed").Return(nil, &types.FetchError{URL: "https://x/feed", StatusCode: 404})
	p, _ := newTestPipeline(t, r, config.DefaultPipelineConfig())

	_, err := p.Ingest(context.Background(), IngestRequest{
		Feed:   &types.Feed{TenantID: "tenant-1"},
		Source: Source{URL: "https://x/feed"},
	})
	var fe *types.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 404, fe.StatusCode)
}
