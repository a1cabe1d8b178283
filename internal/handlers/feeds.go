package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kosarica/feed-service/internal/database"
	"github.com/kosarica/feed-service/internal/middleware"
	"github.com/kosarica/feed-service/internal/pipeline"
	"github.com/kosarica/feed-service/internal/types"
)

// Ingester runs the feed pipeline.
type Ingester interface {
	Preview(ctx context.Context, src pipeline.Source) (*pipeline.Preview, error)
	Ingest(ctx context.Context, req pipeline.IngestRequest) (*pipeline.IngestResult, error)
	Refresh(ctx context.Context, tenantID, feedID string) (*pipeline.IngestResult, error)
}

// FeedStore reads and deletes stored feeds.
type FeedStore interface {
	GetFeed(ctx context.Context, tenantID, feedID string) (*types.Feed, error)
	ListFeeds(ctx context.Context, tenantID string) ([]types.Feed, error)
	DeleteFeed(ctx context.Context, tenantID, feedID string) error
	ListProducts(ctx context.Context, tenantID, feedID string, limit, offset int) ([]types.Product, error)
	CountProducts(ctx context.Context, tenantID, feedID string) (int, error)
}

// TaskCanceller drops queued follow-up work of a deleted feed.
type TaskCanceller interface {
	CancelFeedTasks(ctx context.Context, feedID string) error
}

// FeedHandler serves the tenant facing feed API.
type FeedHandler struct {
	pipeline Ingester
	feeds    FeedStore
	tasks    TaskCanceller
}

// NewFeedHandler creates a FeedHandler. tasks may be nil.
func NewFeedHandler(p Ingester, feeds FeedStore, tasks TaskCanceller) *FeedHandler {
	return &FeedHandler{pipeline: p, feeds: feeds, tasks: tasks}
}

// Register mounts the feed routes on rg.
func (h *FeedHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/feeds/preview", h.Preview)
	rg.POST("/feeds", h.CreateFeed)
	rg.GET("/feeds", h.ListFeeds)
	rg.GET("/feeds/:feedId", h.GetFeed)
	rg.DELETE("/feeds/:feedId", h.DeleteFeed)
	rg.POST("/feeds/:feedId/import", h.ImportFeed)
	rg.POST("/feeds/:feedId/refresh", h.RefreshFeed)
	rg.GET("/feeds/:feedId/products", h.ListProducts)
}

// FeedRequest is the JSON body of create, import and preview requests.
// Multipart requests carry the same fields as form values plus a "file".
type FeedRequest struct {
	Name      string              `json:"name" form:"name"`
	SourceURL string              `json:"sourceUrl" form:"sourceUrl"`
	Mapping   *types.FieldMapping `json:"mapping,omitempty" form:"-"`
}

// readRequest decodes either a JSON body or a multipart upload.
func readRequest(c *gin.Context) (FeedRequest, pipeline.Source, error) {
	var req FeedRequest

	if c.ContentType() != gin.MIMEMultipartPOSTForm {
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				return req, pipeline.Source{}, fmt.Errorf("invalid JSON body: %w", err)
			}
		}
		return req, pipeline.Source{URL: req.SourceURL}, nil
	}

	if err := c.ShouldBind(&req); err != nil {
		return req, pipeline.Source{}, fmt.Errorf("invalid form: %w", err)
	}
	if raw := c.PostForm("mapping"); raw != "" {
		var m types.FieldMapping
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return req, pipeline.Source{}, fmt.Errorf("invalid mapping: %w", err)
		}
		req.Mapping = &m
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return req, pipeline.Source{URL: req.SourceURL}, nil
	}
	f, err := fh.Open()
	if err != nil {
		return req, pipeline.Source{}, fmt.Errorf("failed to open upload: %w", err)
	}
	// multipart files are closed by the request's MultipartForm cleanup
	return req, pipeline.Source{Filename: fh.Filename, Upload: f}, nil
}

// Preview parses a feed and suggests a mapping without storing anything
// @Summary Preview a feed
// @Tags feeds
// @Accept json,mpfd
// @Produce json
// @Param X-Tenant-ID header string true "Tenant"
// @Param request body FeedRequest false "Remote source"
// @Success 200 {object} pipeline.Preview
// @Failure 422 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /feeds/preview [post]
func (h *FeedHandler) Preview(c *gin.Context) {
	_, src, err := readRequest(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	preview, err := h.pipeline.Preview(c.Request.Context(), src)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// CreateFeed creates a feed and imports it when a mapping is given
// @Summary Create a feed
// @Description Without a mapping the feed is only previewed and needsMapping is set.
// @Tags feeds
// @Accept json,mpfd
// @Produce json
// @Param X-Tenant-ID header string true "Tenant"
// @Param request body FeedRequest true "Feed"
// @Success 201 {object} pipeline.IngestResult
// @Success 200 {object} pipeline.IngestResult
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /feeds [post]
func (h *FeedHandler) CreateFeed(c *gin.Context) {
	req, src, err := readRequest(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Name == "" {
		req.Name = src.Filename
	}
	if req.Name == "" {
		req.Name = req.SourceURL
	}

	feed := &types.Feed{TenantID: middleware.TenantID(c), Name: req.Name}
	h.ingest(c, pipeline.IngestRequest{Feed: feed, Source: src, Mapping: req.Mapping}, http.StatusCreated)
}

// ImportFeed re-imports an existing feed from an upload, a new URL or its
// stored URL
// @Summary Import into a feed
// @Tags feeds
// @Accept json,mpfd
// @Produce json
// @Param X-Tenant-ID header string true "Tenant"
// @Param feedId path string true "Feed ID"
// @Param request body FeedRequest false "Source and mapping overrides"
// @Success 200 {object} pipeline.IngestResult
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /feeds/{feedId}/import [post]
func (h *FeedHandler) ImportFeed(c *gin.Context) {
	feed, ok := h.loadFeed(c)
	if !ok {
		return
	}
	req, src, err := readRequest(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Name != "" {
		feed.Name = req.Name
	}
	if src.URL != "" {
		u := src.URL
		feed.SourceURL = &u
	}
	if src.URL == "" && src.Upload == nil && feed.IsRemote() {
		src.URL = *feed.SourceURL
	}
	h.ingest(c, pipeline.IngestRequest{Feed: feed, Source: src, Mapping: req.Mapping}, http.StatusOK)
}

func (h *FeedHandler) ingest(c *gin.Context, req pipeline.IngestRequest, created int) {
	res, err := h.pipeline.Ingest(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	if res.NeedsMapping {
		c.JSON(http.StatusOK, res)
		return
	}
	c.JSON(created, res)
}

// RefreshFeed re-downloads a remote feed and imports it with its stored mapping
// @Summary Refresh a remote feed
// @Tags feeds
// @Produce json
// @Param X-Tenant-ID header string true "Tenant"
// @Param feedId path string true "Feed ID"
// @Success 200 {object} pipeline.IngestResult
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /feeds/{feedId}/refresh [post]
func (h *FeedHandler) RefreshFeed(c *gin.Context) {
	feedID, ok := feedParam(c)
	if !ok {
		return
	}
	res, err := h.pipeline.Refresh(c.Request.Context(), middleware.TenantID(c), feedID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListFeedsResponse wraps the feeds of a tenant.
type ListFeedsResponse struct {
	Feeds []types.Feed `json:"feeds"`
}

// ListFeeds returns the tenant's feeds
// @Summary List feeds
// @Tags feeds
// @Produce json
// @Param X-Tenant-ID header string true "Tenant"
// @Success 200 {object} ListFeedsResponse
// @Router /feeds [get]
func (h *FeedHandler) ListFeeds(c *gin.Context) {
	feeds, err := h.feeds.ListFeeds(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if feeds == nil {
		feeds = []types.Feed{}
	}
	c.JSON(http.StatusOK, ListFeedsResponse{Feeds: feeds})
}

// GetFeed returns one feed
// @Summary Get a feed
// @Tags feeds
// @Produce json
// @Param X-Tenant-ID header string true "Tenant"
// @Param feedId path string true "Feed ID"
// @Success 200 {object} types.Feed
// @Failure 404 {object} ErrorResponse
// @Router /feeds/{feedId} [get]
func (h *FeedHandler) GetFeed(c *gin.Context) {
	feed, ok := h.loadFeed(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, feed)
}

// DeleteFeed removes a feed together with its products
// @Summary Delete a feed
// @Tags feeds
// @Param X-Tenant-ID header string true "Tenant"
// @Param feedId path string true "Feed ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /feeds/{feedId} [delete]
func (h *FeedHandler) DeleteFeed(c *gin.Context) {
	feedID, ok := feedParam(c)
	if !ok {
		return
	}
	if err := h.feeds.DeleteFeed(c.Request.Context(), middleware.TenantID(c), feedID); err != nil {
		writeError(c, err)
		return
	}
	if h.tasks != nil {
		if err := h.tasks.CancelFeedTasks(c.Request.Context(), feedID); err != nil {
			zerolog.Ctx(c.Request.Context()).Warn().Err(err).Str("feed_id", feedID).Msg("Failed to cancel queued tasks")
		}
	}
	c.Status(http.StatusNoContent)
}

// ListProductsResponse is one page of a feed's products.
type ListProductsResponse struct {
	Products []types.Product `json:"products"`
	Total    int             `json:"total"`
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
}

// ListProducts pages through a feed's products
// @Summary List products of a feed
// @Tags feeds
// @Produce json
// @Param X-Tenant-ID header string true "Tenant"
// @Param feedId path string true "Feed ID"
// @Param limit query int false "Page size" default(50) minimum(1) maximum(500)
// @Param offset query int false "Items to skip" default(0) minimum(0)
// @Success 200 {object} ListProductsResponse
// @Failure 404 {object} ErrorResponse
// @Router /feeds/{feedId}/products [get]
func (h *FeedHandler) ListProducts(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		badRequest(c, "limit must be between 1 and 500")
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		badRequest(c, "offset must not be negative")
		return
	}

	feed, ok := h.loadFeed(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	products, err := h.feeds.ListProducts(ctx, feed.TenantID, feed.ID, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	total, err := h.feeds.CountProducts(ctx, feed.TenantID, feed.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	if products == nil {
		products = []types.Product{}
	}
	c.JSON(http.StatusOK, ListProductsResponse{Products: products, Total: total, Limit: limit, Offset: offset})
}

// feedParam returns the feedId path parameter. Feed IDs are canonical UUIDs,
// so any other value is reported as not found without a database round trip.
func feedParam(c *gin.Context) (string, bool) {
	id := c.Param("feedId")
	if len(id) != 36 {
		writeError(c, database.ErrFeedNotFound)
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		writeError(c, database.ErrFeedNotFound)
		return "", false
	}
	return id, true
}

func (h *FeedHandler) loadFeed(c *gin.Context) (*types.Feed, bool) {
	feedID, ok := feedParam(c)
	if !ok {
		return nil, false
	}
	feed, err := h.feeds.GetFeed(c.Request.Context(), middleware.TenantID(c), feedID)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return feed, true
}
