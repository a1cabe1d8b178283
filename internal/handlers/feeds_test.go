package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kosarica/feed-service/internal/database"
	"github.com/kosarica/feed-service/internal/middleware"
	"github.com/kosarica/feed-service/internal/pipeline"
	"github.com/kosarica/feed-service/internal/types"
)

type mockIngester struct{ mock.Mock }

func (m *mockIngester) Preview(ctx context.Context, src pipeline.Source) (*pipeline.Preview, error) {
	args := m.Called(src.URL, src.Filename)
	p, _ := args.Get(0).(*pipeline.Preview)
	return p, args.Error(1)
}

func (m *mockIngester) Ingest(ctx context.Context, req pipeline.IngestRequest) (*pipeline.IngestResult, error) {
	args := m.Called(req)
	r, _ := args.Get(0).(*pipeline.IngestResult)
	return r, args.Error(1)
}

func (m *mockIngester) Refresh(ctx context.Context, tenantID, feedID string) (*pipeline.IngestResult, error) {
	args := m.Called(tenantID, feedID)
	r, _ := args.Get(0).(*pipeline.IngestResult)
	return r, args.Error(1)
}

type mockStore struct{ mock.Mock }

func (m *mockStore) GetFeed(ctx context.Context, tenantID, feedID string) (*types.Feed, error) {
	args := m.Called(tenantID, feedID)
	f, _ := args.Get(0).(*types.Feed)
	return f, args.Error(1)
}

func (m *mockStore) ListFeeds(ctx context.Context, tenantID string) ([]types.Feed, error) {
	args := m.Called(tenantID)
	f, _ := args.Get(0).([]types.Feed)
	return f, args.Error(1)
}

func (m *mockStore) DeleteFeed(ctx context.Context, tenantID, feedID string) error {
	return m.Called(tenantID, feedID).Error(0)
}

func (m *mockStore) ListProducts(ctx context.Context, tenantID, feedID string, limit, offset int) ([]types.Product, error) {
	args := m.Called(tenantID, feedID, limit, offset)
	p, _ := args.Get(0).([]types.Product)
	return p, args.Error(1)
}

func (m *mockStore) CountProducts(ctx context.Context, tenantID, feedID string) (int, error) {
	args := m.Called(tenantID, feedID)
	return args.Int(0), args.Error(1)
}

type mockCanceller struct{ mock.Mock }

func (m *mockCanceller) CancelFeedTasks(ctx context.Context, feedID string) error {
	return m.Called(feedID).Error(0)
}

const (
	feedID        = "5f0c7a52-3c1e-4b8e-9f3a-2d6b1e8c4a10"
	unknownFeedID = "0b9e2d44-7a1f-4c3b-8e6d-5f2a9c1b7e30"
)

func newTestRouter(ing Ingester, store FeedStore, tasks TaskCanceller) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/v1", middleware.TenantMiddleware())
	NewFeedHandler(ing, store, tasks).Register(api)
	return r
}

func send(r http.Handler, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(middleware.TenantHeader, "tenant-1")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestCreateFeedFromURLWithMapping(t *testing.T) {
	ing := &mockIngester{}
	m := types.FieldMapping{SKU: "g:id", Title: "title", URL: "link", Price: "g:price"}
	ing.On("Ingest", mock.MatchedBy(func(req pipeline.IngestRequest) bool {
		return req.Feed.TenantID == "tenant-1" &&
			req.Feed.Name == "Main" &&
			req.Source.URL == "https://shop.example/feed.xml" &&
			req.Mapping != nil && *req.Mapping == m
	})).Return(&pipeline.IngestResult{
		Feed:   &types.Feed{ID: feedID, TenantID: "tenant-1"},
		Import: &pipeline.ImportResult{FeedID: feedID, Inserted: 3},
	}, nil)

	r := newTestRouter(ing, &mockStore{}, nil)
	body := `{"name":"Main","sourceUrl":"https://shop.example/feed.xml","mapping":{"sku":"g:id","title":"title","url":"link","price":"g:price"}}`
	w := send(r, http.MethodPost, "/v1/feeds", strings.NewReader(body), "application/json")

	assert.Equal(t, http.StatusCreated, w.Code)
	res := decode[pipeline.IngestResult](t, w)
	assert.Equal(t, 3, res.Import.Inserted)
	ing.AssertExpectations(t)
}

func TestCreateFeedNeedsMapping(t *testing.T) {
	ing := &mockIngester{}
	ing.On("Ingest", mock.Anything).Return(&pipeline.IngestResult{
		Feed:         &types.Feed{ID: feedID},
		NeedsMapping: true,
		Preview:      &pipeline.Preview{SuggestedMapping: types.FieldMapping{SKU: "id"}},
	}, nil)

	w := send(newTestRouter(ing, &mockStore{}, nil), http.MethodPost, "/v1/feeds",
		strings.NewReader(`{"sourceUrl":"https://x/f.csv"}`), "application/json")

	assert.Equal(t, http.StatusOK, w.Code)
	res := decode[pipeline.IngestResult](t, w)
	assert.True(t, res.NeedsMapping)
	assert.Equal(t, "id", res.Preview.SuggestedMapping.SKU)
}

func TestCreateFeedMultipartUpload(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "Upload"))
	require.NoError(t, mw.WriteField("mapping", `{"sku":"sku","title":"title","url":"url","price":"price"}`))
	fw, err := mw.CreateFormFile("file", "products.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("sku,title,url,price\nA,Lamp,https://x/a,1"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	ing := &mockIngester{}
	ing.On("Ingest", mock.MatchedBy(func(req pipeline.IngestRequest) bool {
		if req.Source.Filename != "products.csv" || req.Source.Upload == nil || req.Mapping == nil {
			return false
		}
		data, _ := io.ReadAll(req.Source.Upload)
		return strings.HasPrefix(string(data), "sku,title") && req.Mapping.Price == "price" && req.Feed.Name == "Upload"
	})).Return(&pipeline.IngestResult{Import: &pipeline.ImportResult{Inserted: 1}}, nil)

	w := send(newTestRouter(ing, &mockStore{}, nil), http.MethodPost, "/v1/feeds", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusCreated, w.Code)
	ing.AssertExpectations(t)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"mapping", &types.MappingError{Missing: []types.Attribute{types.AttrTitle}}, http.StatusUnprocessableEntity, "mapping_incomplete"},
		{"parse", &types.ParseError{Sample: "<product>"}, http.StatusUnprocessableEntity, "unparseable_feed"},
		{"fetch", &types.FetchError{URL: "https://x", StatusCode: 404}, http.StatusBadGateway, "fetch_failed"},
		{"too large", &types.UploadError{TooLarge: true, Limit: 10}, http.StatusRequestEntityTooLarge, "upload_too_large"},
		{"unsupported", &types.UploadError{ContentType: "image/png"}, http.StatusUnsupportedMediaType, "unsupported_upload"},
		{"no source", pipeline.ErrNoSource, http.StatusBadRequest, "no_source"},
		{"import", &types.ImportError{FeedID: "f", Stage: pipeline.StageInsertProducts, Err: assert.AnError}, http.StatusInternalServerError, "import_failed"},
		{"foreign feed", &types.ImportError{FeedID: "f", Stage: pipeline.StageSaveMapping, Err: database.ErrFeedNotFound}, http.StatusNotFound, "feed_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ing := &mockIngester{}
			ing.On("Ingest", mock.Anything).Return(nil, tc.err)

			w := send(newTestRouter(ing, &mockStore{}, nil), http.MethodPost, "/v1/feeds",
				strings.NewReader(`{"sourceUrl":"https://x"}`), "application/json")

			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, decode[ErrorResponse](t, w).Code)
		})
	}
}

func TestMappingErrorListsMissing(t *testing.T) {
	ing := &mockIngester{}
	ing.On("Refresh", "tenant-1", feedID).Return(nil, &types.MappingError{Missing: []types.Attribute{types.AttrTitle, types.AttrPrice}})

	w := send(newTestRouter(ing, &mockStore{}, nil), http.MethodPost, "/v1/feeds/"+feedID+"/refresh", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, []types.Attribute{types.AttrTitle, types.AttrPrice}, decode[ErrorResponse](t, w).Missing)
}

func TestImportFeedFallsBackToStoredURL(t *testing.T) {
	src := "https://shop.example/feed.xml"
	store := &mockStore{}
	store.On("GetFeed", "tenant-1", feedID).Return(&types.Feed{ID: feedID, TenantID: "tenant-1", SourceURL: &src}, nil)

	ing := &mockIngester{}
	ing.On("Ingest", mock.MatchedBy(func(req pipeline.IngestRequest) bool {
		return req.Source.URL == src && req.Feed.ID == feedID && req.Mapping == nil
	})).Return(&pipeline.IngestResult{Import: &pipeline.ImportResult{}}, nil)

	w := send(newTestRouter(ing, store, nil), http.MethodPost, "/v1/feeds/"+feedID+"/import", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	ing.AssertExpectations(t)
}

func TestGetFeedNotFound(t *testing.T) {
	store := &mockStore{}
	store.On("GetFeed", "tenant-1", unknownFeedID).Return(nil, database.ErrFeedNotFound)

	w := send(newTestRouter(&mockIngester{}, store, nil), http.MethodGet, "/v1/feeds/"+unknownFeedID, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMalformedFeedIDIsNotFound(t *testing.T) {
	routes := []struct{ method, path string }{
		{http.MethodGet, "/v1/feeds/nope"},
		{http.MethodDelete, "/v1/feeds/nope"},
		{http.MethodPost, "/v1/feeds/nope/import"},
		{http.MethodPost, "/v1/feeds/nope/refresh"},
		{http.MethodGet, "/v1/feeds/nope/products"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			store := &mockStore{}
			ing := &mockIngester{}
			w := send(newTestRouter(ing, store, nil), rt.method, rt.path, nil, "")

			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.Equal(t, "feed_not_found", decode[ErrorResponse](t, w).Code)
			store.AssertNotCalled(t, "GetFeed", mock.Anything, mock.Anything)
			store.AssertNotCalled(t, "DeleteFeed", mock.Anything, mock.Anything)
			ing.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
		})
	}
}

func TestDeleteFeedCancelsTasks(t *testing.T) {
	store := &mockStore{}
	store.On("DeleteFeed", "tenant-1", feedID).Return(nil)
	tasks := &mockCanceller{}
	tasks.On("CancelFeedTasks", feedID).Return(nil)

	w := send(newTestRouter(&mockIngester{}, store, tasks), http.MethodDelete, "/v1/feeds/"+feedID, nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	tasks.AssertExpectations(t)
}

func TestListProducts(t *testing.T) {
	price := 9.99
	store := &mockStore{}
	store.On("GetFeed", "tenant-1", feedID).Return(&types.Feed{ID: feedID, TenantID: "tenant-1"}, nil)
	store.On("ListProducts", "tenant-1", feedID, 2, 4).Return([]types.Product{{SKU: "A", Title: "Lamp", URL: "https://x/a", Price: &price}}, nil)
	store.On("CountProducts", "tenant-1", feedID).Return(5, nil)

	r := newTestRouter(&mockIngester{}, store, nil)
	w := send(r, http.MethodGet, "/v1/feeds/"+feedID+"/products?limit=2&offset=4", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[ListProductsResponse](t, w)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, "Lamp", res.Products[0].Title)

	assert.Equal(t, http.StatusBadRequest, send(r, http.MethodGet, "/v1/feeds/"+feedID+"/products?limit=0", nil, "").Code)
}

func TestListFeedsEmpty(t *testing.T) {
	store := &mockStore{}
	store.On("ListFeeds", "tenant-1").Return(nil, nil)

	w := send(newTestRouter(&mockIngester{}, store, nil), http.MethodGet, "/v1/feeds", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"feeds":[]}`, w.Body.String())
}

func TestPreviewRejectsBadJSON(t *testing.T) {
	w := send(newTestRouter(&mockIngester{}, &mockStore{}, nil), http.MethodPost, "/v1/feeds/preview",
		strings.NewReader(`{"sourceUrl":`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ok", HealthCheck(func(context.Context) error { return nil }))
	r.GET("/down", HealthCheck(func(context.Context) error { return assert.AnError }))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/down", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
