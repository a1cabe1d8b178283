package pipeline

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kosarica/feed-service/internal/database"
	"github.com/kosarica/feed-service/internal/extract"
	"github.com/kosarica/feed-service/internal/mapping"
	"github.com/kosarica/feed-service/internal/types"
)

// Import stages, reported in ImportError.
const (
	StageSaveMapping    = "save mapping"
	StageDeleteProducts = "delete products"
	StageInsertProducts = "insert products"
	StageTouchFeed      = "touch feed"
	StageTransaction    = "transaction"
)

// ImportResult summarises a committed import.
type ImportResult struct {
	FeedID     string `json:"feedId"`
	Items      int    `json:"items"`
	Inserted   int    `json:"inserted"`
	Skipped    int    `json:"skipped"`
	Duplicates int    `json:"duplicates"`
	Replaced   int64  `json:"replaced"`
	Chunks     int    `json:"chunks"`
}

// Import replaces the products of feed with those extracted from parsed.
//
// The mapping is validated before anything touches the database. Saving the
// mapping, deleting the old products, inserting the new ones chunk by chunk
// and stamping the feed happen in one transaction: either all of it is
// committed or none of it.
func (p *Pipeline) Import(ctx context.Context, feed *types.Feed, parsed *types.ParsedFeed, m types.FieldMapping) (*ImportResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.Import")
	defer span.End()

	m = mapping.Trim(m)
	if err := mapping.Validate(m, p.required); err != nil {
		importsTotal.WithLabelValues(outcomeMappingError).Inc()
		span.RecordError(err)
		return nil, err
	}

	start := time.Now()
	// The caller's feed only takes the new mapping once it is committed.
	saved := *feed
	saved.FieldMappings = m
	result := &ImportResult{FeedID: feed.ID, Items: parsed.Len()}
	opts := extract.Options{SanitizeDescription: p.cfg.SanitizeDescription}

	stage := StageTransaction
	err := database.WithTx(ctx, p.db, func(tx pgx.Tx) error {
		stage = StageSaveMapping
		if err := database.SaveFeed(ctx, tx, &saved); err != nil {
			return err
		}

		stage = StageDeleteProducts
		deleted, err := database.DeleteProducts(ctx, tx, feed.TenantID, feed.ID)
		if err != nil {
			return err
		}
		result.Replaced = deleted

		stage = StageInsertProducts
		seen := make(map[string]struct{}, parsed.Len())
		for lo := 0; lo < len(parsed.Items); lo += p.cfg.ChunkSize {
			hi := min(lo+p.cfg.ChunkSize, len(parsed.Items))
			rows := make([]types.Product, 0, hi-lo)
			for _, item := range parsed.Items[lo:hi] {
				product, ok := extract.Product(item, m, parsed.Namespaces, opts)
				if !ok {
					result.Skipped++
					continue
				}
				if _, dup := seen[product.SKU]; dup {
					result.Duplicates++
					continue
				}
				seen[product.SKU] = struct{}{}
				rows = append(rows, product)
			}

			n, err := database.InsertProducts(ctx, tx, feed.TenantID, feed.ID, rows)
			if err != nil {
				return err
			}
			result.Inserted += int(n)
			result.Chunks++
		}

		stage = StageTouchFeed
		if err := database.TouchFeed(ctx, tx, feed.TenantID, feed.ID, result.Inserted); err != nil {
			return err
		}
		stage = StageTransaction
		return nil
	})
	if err != nil {
		importsTotal.WithLabelValues(outcomeFailed).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		p.logger.Error().Err(err).Str("feed_id", feed.ID).Str("stage", stage).Msg("Import rolled back")
		return nil, &types.ImportError{FeedID: feed.ID, Stage: stage, Err: err}
	}

	now := time.Now().UTC()
	feed.FieldMappings = m
	feed.ProductCount = result.Inserted
	feed.LastImportedAt = &now

	importsTotal.WithLabelValues(outcomeSuccess).Inc()
	importDuration.Observe(time.Since(start).Seconds())
	importedProducts.WithLabelValues("inserted").Add(float64(result.Inserted))
	importedProducts.WithLabelValues("skipped").Add(float64(result.Skipped))
	importedProducts.WithLabelValues("duplicate").Add(float64(result.Duplicates))
	span.SetAttributes(
		attribute.Int("import.inserted", result.Inserted),
		attribute.Int("import.skipped", result.Skipped),
	)

	p.logger.Info().
		Str("feed_id", feed.ID).
		Str("tenant_id", feed.TenantID).
		Int("items", result.Items).
		Int("inserted", result.Inserted).
		Int("skipped", result.Skipped).
		Int("duplicates", result.Duplicates).
		Int64("replaced", result.Replaced).
		Dur("duration", time.Since(start)).
		Msg("Feed imported")

	p.scheduleFollowUp(ctx, feed, result)
	return result, nil
}

// scheduleFollowUp runs after commit; a failure here leaves the import intact.
func (p *Pipeline) scheduleFollowUp(ctx context.Context, feed *types.Feed, result *ImportResult) {
	if p.jobs == nil || !p.cfg.EnqueueContentJobs || result.Inserted == 0 {
		return
	}
	if err := p.jobs.ScheduleContentGeneration(ctx, feed, result.Inserted); err != nil {
		p.logger.Warn().Err(err).Str("feed_id", feed.ID).Msg("Failed to schedule content generation")
	}
}
