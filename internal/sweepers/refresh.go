package sweepers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kosarica/feed-service/internal/pipeline"
	"github.com/kosarica/feed-service/internal/types"
)

var refreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "feed_service",
	Name:      "refreshes_total",
	Help:      "Background feed refreshes by outcome.",
}, []string{"outcome"})

// FeedLister finds remote feeds due for a refresh and records attempts.
type FeedLister interface {
	ListRefreshable(ctx context.Context, staleBefore time.Time, limit int) ([]types.Feed, error)
	MarkRefreshAttempted(ctx context.Context, feedIDs []string) error
}

// Refresher re-imports one feed.
type Refresher interface {
	RefreshFeed(ctx context.Context, feed *types.Feed) (*pipeline.IngestResult, error)
}

// RefreshSweeper periodically re-imports remote feeds that went stale
type RefreshSweeper struct {
	feeds       FeedLister
	refresher   Refresher
	logger      *zerolog.Logger
	interval    time.Duration
	staleAfter  time.Duration
	batchSize   int
	concurrency int
	stopChan    chan struct{}
	stopOnce    sync.Once
}

// NewRefreshSweeper creates a sweeper; feeds not updated within staleAfter
// are refreshed, at most batchSize per tick.
func NewRefreshSweeper(feeds FeedLister, refresher Refresher, logger *zerolog.Logger, interval, staleAfter time.Duration, batchSize int) *RefreshSweeper {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &RefreshSweeper{
		feeds:       feeds,
		refresher:   refresher,
		logger:      logger,
		interval:    interval,
		staleAfter:  staleAfter,
		batchSize:   batchSize,
		concurrency: 4,
		stopChan:    make(chan struct{}),
	}
}

// Start runs sweeps until ctx is cancelled or Stop is called
func (s *RefreshSweeper) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Dur("stale_after", s.staleAfter).
		Msg("Starting feed refresh sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Feed refresh sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Feed refresh sweeper stopping (stop signal)")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Feed refresh sweep failed")
			}
		}
	}
}

// Stop signals the sweeper to stop. Repeated calls are no-ops.
func (s *RefreshSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// Sweep refreshes one batch of stale feeds and returns how many succeeded.
// A failing feed is logged and does not stop the others.
func (s *RefreshSweeper) Sweep(ctx context.Context) (int, error) {
	feeds, err := s.feeds.ListRefreshable(ctx, time.Now().Add(-s.staleAfter), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale feeds: %w", err)
	}
	if len(feeds) == 0 {
		return 0, nil
	}
	s.logger.Debug().Int("feeds", len(feeds)).Msg("Refreshing stale feeds")

	ids := make([]string, len(feeds))
	for i := range feeds {
		ids[i] = feeds[i].ID
	}
	// Without the stamp, feeds that always fail would fill every batch.
	if err := s.feeds.MarkRefreshAttempted(ctx, ids); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record refresh attempts")
	}

	results := make([]bool, len(feeds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range feeds {
		feed := &feeds[i]
		if feed.FieldMappings.IsZero() {
			refreshesTotal.WithLabelValues("unmapped").Inc()
			continue
		}
		g.Go(func() error {
			if _, err := s.refresher.RefreshFeed(gctx, feed); err != nil {
				refreshesTotal.WithLabelValues("failed").Inc()
				s.logger.Warn().Err(err).
					Str("feed_id", feed.ID).
					Str("tenant_id", feed.TenantID).
					Msg("Feed refresh failed")
				return nil
			}
			refreshesTotal.WithLabelValues("success").Inc()
			results[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	refreshed := 0
	for _, ok := range results {
		if ok {
			refreshed++
		}
	}
	if refreshed > 0 {
		s.logger.Info().Int("refreshed", refreshed).Int("due", len(feeds)).Msg("Refreshed stale feeds")
	}
	return refreshed, nil
}
