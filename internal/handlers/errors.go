package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kosarica/feed-service/internal/database"
	"github.com/kosarica/feed-service/internal/pipeline"
	"github.com/kosarica/feed-service/internal/types"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Missing []types.Attribute `json:"missing,omitempty"`
	Status  int               `json:"upstreamStatus,omitempty"`
	Sample  string            `json:"sample,omitempty"`
}

// writeError maps pipeline and repository errors onto HTTP responses.
func writeError(c *gin.Context, err error) {
	var (
		mappingErr *types.MappingError
		parseErr   *types.ParseError
		uploadErr  *types.UploadError
		fetchErr   *types.FetchError
		importErr  *types.ImportError
	)

	status := http.StatusInternalServerError
	resp := ErrorResponse{Error: err.Error(), Code: "internal"}

	switch {
	case errors.Is(err, database.ErrFeedNotFound):
		status, resp.Code = http.StatusNotFound, "feed_not_found"
	case errors.Is(err, pipeline.ErrNoSource):
		status, resp.Code = http.StatusBadRequest, "no_source"
	case errors.Is(err, pipeline.ErrNotRefreshable):
		status, resp.Code = http.StatusConflict, "not_refreshable"
	case errors.As(err, &mappingErr):
		status, resp.Code = http.StatusUnprocessableEntity, "mapping_incomplete"
		resp.Missing = mappingErr.Missing
	case errors.As(err, &parseErr):
		status, resp.Code = http.StatusUnprocessableEntity, "unparseable_feed"
		resp.Sample = parseErr.Sample
	case errors.As(err, &uploadErr):
		status, resp.Code = http.StatusUnsupportedMediaType, "unsupported_upload"
		if uploadErr.TooLarge {
			status, resp.Code = http.StatusRequestEntityTooLarge, "upload_too_large"
		}
	case errors.As(err, &fetchErr):
		status, resp.Code = http.StatusBadGateway, "fetch_failed"
		resp.Status = fetchErr.StatusCode
	case errors.As(err, &importErr):
		resp.Code = "import_failed"
	}

	event := zerolog.Ctx(c.Request.Context()).Warn()
	if status >= http.StatusInternalServerError {
		event = zerolog.Ctx(c.Request.Context()).Error()
	}
	event.Err(err).Str("code", resp.Code).Msg("Request failed")

	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: "bad_request"})
}
