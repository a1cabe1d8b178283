// Package retrieval obtains raw feed bytes from uploads and URLs.
package retrieval

import (
	"context"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	feedhttp "github.com/kosarica/feed-service/internal/http"
	"github.com/kosarica/feed-service/internal/parsers/charset"
	"github.com/kosarica/feed-service/internal/parsers/xlsx"
	"github.com/kosarica/feed-service/internal/types"
)

// DefaultUploadMaxBytes caps uploaded files.
const DefaultUploadMaxBytes = 5 << 20

// uploadTypes are the accepted upload types; subtypes (csv under text/plain,
// rss under text/xml) are accepted through their parents.
var uploadTypes = []string{"text/plain", "text/xml", "application/xml", xlsx.MIMEType}

// Fetcher performs the HTTP GET for remote feeds.
type Fetcher interface {
	Get(ctx context.Context, url string) (*feedhttp.Response, error)
}

// Retriever turns uploads and URLs into Content.
type Retriever struct {
	fetcher        Fetcher
	uploadMaxBytes int64
	logger         zerolog.Logger
}

// New creates a Retriever. A non-positive uploadMaxBytes uses the default.
func New(fetcher Fetcher, uploadMaxBytes int64, logger zerolog.Logger) *Retriever {
	if uploadMaxBytes <= 0 {
		uploadMaxBytes = DefaultUploadMaxBytes
	}
	return &Retriever{fetcher: fetcher, uploadMaxBytes: uploadMaxBytes, logger: logger}
}

// FromURL downloads url. A non-2xx status is returned as *types.FetchError.
// Decompression and charset conversion are best effort: on failure the
// bytes are kept as they were and a warning is recorded.
func (r *Retriever) FromURL(ctx context.Context, url string) (*types.Content, error) {
	resp, err := r.fetcher.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	rctx := types.RetrievalContext{
		Source:          types.SourceURL,
		Location:        url,
		StatusCode:      resp.StatusCode,
		ContentType:     resp.Header.Get("Content-Type"),
		ContentEncoding: resp.Header.Get("Content-Encoding"),
		RetrievedAt:     time.Now().UTC(),
	}
	if _, params, err := mime.ParseMediaType(rctx.ContentType); err == nil {
		rctx.DeclaredCharset = params["charset"]
	}

	data := resp.Body
	if decoded, err := Decompress(data, rctx.ContentEncoding); err != nil {
		r.warn(&rctx, &types.DecodeError{Stage: "content-encoding", Label: rctx.ContentEncoding, Err: err})
	} else {
		data = decoded
	}

	if !charset.IsUTF8(rctx.DeclaredCharset) {
		if converted, err := charset.Convert(data, rctx.DeclaredCharset); err != nil {
			r.warn(&rctx, &types.DecodeError{Stage: "charset", Label: rctx.DeclaredCharset, Err: err})
		} else {
			data = converted
		}
	}

	rctx.ByteLength = len(data)
	r.logger.Debug().
		Str("url", url).
		Int("status", rctx.StatusCode).
		Str("content_type", rctx.ContentType).
		Str("content_encoding", rctx.ContentEncoding).
		Int("bytes", rctx.ByteLength).
		Msg("Feed downloaded")

	return &types.Content{Data: data, Context: rctx}, nil
}

// FromUpload reads an uploaded file as-is. Files over the size limit or of a
// type other than text, XML or a spreadsheet are rejected with *types.UploadError.
func (r *Retriever) FromUpload(filename string, body io.Reader) (*types.Content, error) {
	data, err := io.ReadAll(io.LimitReader(body, r.uploadMaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload %s: %w", filename, err)
	}
	if int64(len(data)) > r.uploadMaxBytes {
		return nil, &types.UploadError{Filename: filename, TooLarge: true, Limit: r.uploadMaxBytes}
	}

	mt := mimetype.Detect(data)
	if !acceptedUpload(mt) {
		return nil, &types.UploadError{Filename: filename, ContentType: mt.String()}
	}

	return &types.Content{
		Data: data,
		Context: types.RetrievalContext{
			Source:      types.SourceUpload,
			Location:    filename,
			ContentType: mt.String(),
			ByteLength:  len(data),
			RetrievedAt: time.Now().UTC(),
		},
	}, nil
}

// IsSpreadsheet reports whether content was sniffed as an xlsx workbook.
func IsSpreadsheet(c *types.Content) bool {
	return strings.HasPrefix(c.Context.ContentType, xlsx.MIMEType)
}

func acceptedUpload(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		for _, t := range uploadTypes {
			if m.Is(t) {
				return true
			}
		}
	}
	return false
}

func (r *Retriever) warn(rctx *types.RetrievalContext, err *types.DecodeError) {
	rctx.Warnings = append(rctx.Warnings, err.Error())
	r.logger.Warn().Err(err).Str("location", rctx.Location).Msg("Keeping undecoded feed bytes")
}
