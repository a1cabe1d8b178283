package pipeline

import (
	"context"

	"github.com/kosarica/feed-service/internal/retrieval"
	"github.com/kosarica/feed-service/internal/storage"
	"github.com/kosarica/feed-service/internal/types"
)

// Retrieve loads the payload named by src.
func (p *Pipeline) Retrieve(ctx context.Context, src Source) (*types.Content, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.Retrieve")
	defer span.End()

	var (
		content *types.Content
		err     error
		kind    types.SourceKind
	)
	switch {
	case src.URL != "" && src.Upload != nil:
		return nil, ErrNoSource
	case src.URL != "":
		kind = types.SourceURL
		content, err = p.retriever.FromURL(ctx, src.URL)
	case src.Upload != nil:
		kind = types.SourceUpload
		content, err = p.retriever.FromUpload(src.Filename, src.Upload)
	default:
		return nil, ErrNoSource
	}

	if err != nil {
		retrievalsTotal.WithLabelValues(string(kind), outcomeFailed).Inc()
		span.RecordError(err)
		return nil, err
	}
	retrievalsTotal.WithLabelValues(string(kind), outcomeSuccess).Inc()

	p.logger.Debug().
		Str("source", string(kind)).
		Str("location", content.Context.Location).
		Str("content_type", content.Context.ContentType).
		Int("bytes", content.Context.ByteLength).
		Strs("warnings", content.Context.Warnings).
		Msg("Feed retrieved")
	return content, nil
}

// archiveSnapshot keeps a copy of the retrieved payload. Failures are logged
// and never abort the ingestion.
func (p *Pipeline) archiveSnapshot(ctx context.Context, feed *types.Feed, content *types.Content, parsed *types.ParsedFeed) {
	if p.archive == nil {
		return
	}

	ext := "." + string(parsed.Kind)
	if retrieval.IsSpreadsheet(content) {
		ext = ".xlsx"
	}
	key := storage.SnapshotKey(feed.TenantID, feed.ID, content.Context.RetrievedAt, ext)

	meta := &storage.Metadata{
		ContentType:  content.Context.ContentType,
		TenantID:     feed.TenantID,
		FeedID:       feed.ID,
		RetrievedAt:  content.Context.RetrievedAt,
		OriginalName: content.Context.Location,
	}
	if content.Context.Source == types.SourceURL {
		meta.SourceURL = content.Context.Location
		meta.OriginalName = ""
	}

	if err := p.archive.Put(ctx, key, content.Data, meta); err != nil {
		p.logger.Warn().Err(err).Str("key", key).Str("feed_id", feed.ID).Msg("Failed to archive feed snapshot")
		return
	}
	p.logger.Debug().Str("key", key).Msg("Feed snapshot archived")
}
