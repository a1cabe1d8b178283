package pipeline

import (
	"context"

	"github.com/kosarica/feed-service/internal/types"
)

// Refresh re-imports a stored remote feed with its saved mapping. It never
// waits for a mapping: a feed without one fails with a MappingError.
func (p *Pipeline) Refresh(ctx context.Context, tenantID, feedID string) (*IngestResult, error) {
	feed, err := p.feeds.GetFeed(ctx, tenantID, feedID)
	if err != nil {
		return nil, err
	}
	return p.RefreshFeed(ctx, feed)
}

// RefreshFeed is Refresh for a feed that is already loaded.
func (p *Pipeline) RefreshFeed(ctx context.Context, feed *types.Feed) (*IngestResult, error) {
	if !feed.IsRemote() {
		return nil, ErrNotRefreshable
	}
	p.logger.Info().Str("feed_id", feed.ID).Str("url", *feed.SourceURL).Msg("Refreshing feed")
	return p.Ingest(ctx, IngestRequest{
		Feed:       feed,
		Source:     Source{URL: *feed.SourceURL},
		Refreshing: true,
	})
}
