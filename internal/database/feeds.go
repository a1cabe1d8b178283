package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kosarica/feed-service/internal/types"
)

// ErrFeedNotFound is returned when a feed does not exist for the tenant.
var ErrFeedNotFound = errors.New("feed not found")

const feedColumns = `id::text, tenant_id, name, source_url, field_mappings, product_count, last_imported_at, created_at, updated_at`

// Repository reads and writes feeds and their products.
type Repository struct {
	db DB
}

// NewRepository wraps db; pass database.Pool() in production.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// DB returns the underlying handle for transactional work.
func (r *Repository) DB() DB {
	return r.db
}

func scanFeed(row pgx.Row) (*types.Feed, error) {
	var f types.Feed
	err := row.Scan(
		&f.ID, &f.TenantID, &f.Name, &f.SourceURL, &f.FieldMappings,
		&f.ProductCount, &f.LastImportedAt, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// GetFeed loads one feed of a tenant.
func (r *Repository) GetFeed(ctx context.Context, tenantID, feedID string) (*types.Feed, error) {
	f, err := scanFeed(r.db.QueryRow(ctx, `
		SELECT `+feedColumns+`
		FROM feeds
		WHERE id = $1 AND tenant_id = $2
	`, feedID, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFeedNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load feed %s: %w", feedID, err)
	}
	return f, nil
}

// ListFeeds returns a tenant's feeds, newest first.
func (r *Repository) ListFeeds(ctx context.Context, tenantID string) ([]types.Feed, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+feedColumns+`
		FROM feeds
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	return collectFeeds(rows)
}

// ListRefreshable returns remote feeds of any tenant that were neither
// updated nor attempted since staleBefore, least recently touched first.
func (r *Repository) ListRefreshable(ctx context.Context, staleBefore time.Time, limit int) ([]types.Feed, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+feedColumns+`
		FROM feeds
		WHERE source_url IS NOT NULL AND source_url <> ''
		  AND GREATEST(updated_at, last_refresh_at) < $1
		ORDER BY GREATEST(updated_at, last_refresh_at) ASC
		LIMIT $2
	`, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list refreshable feeds: %w", err)
	}
	return collectFeeds(rows)
}

// MarkRefreshAttempted stamps feeds picked up by a refresh sweep, whatever
// the outcome, so feeds that keep failing wait their turn again.
func (r *Repository) MarkRefreshAttempted(ctx context.Context, feedIDs []string) error {
	if len(feedIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		UPDATE feeds
		SET last_refresh_at = NOW()
		WHERE id::text = ANY($1)
	`, feedIDs)
	if err != nil {
		return fmt.Errorf("failed to mark refresh attempt: %w", err)
	}
	return nil
}

func collectFeeds(rows pgx.Rows) ([]types.Feed, error) {
	defer rows.Close()
	var feeds []types.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feeds = append(feeds, *f)
	}
	return feeds, rows.Err()
}

// DeleteFeed removes a feed; its products go with it.
func (r *Repository) DeleteFeed(ctx context.Context, tenantID, feedID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM feeds WHERE id = $1 AND tenant_id = $2`, feedID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete feed %s: %w", feedID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFeedNotFound
	}
	return nil
}

// SaveFeed inserts the feed or updates its name, source and mapping. A feed
// id owned by another tenant is reported as ErrFeedNotFound.
func SaveFeed(ctx context.Context, q Querier, feed *types.Feed) error {
	tag, err := q.Exec(ctx, `
		INSERT INTO feeds (id, tenant_id, name, source_url, field_mappings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    source_url = EXCLUDED.source_url,
		    field_mappings = EXCLUDED.field_mappings
		WHERE feeds.tenant_id = EXCLUDED.tenant_id
	`, feed.ID, feed.TenantID, feed.Name, feed.SourceURL, feed.FieldMappings)
	if err != nil {
		return fmt.Errorf("failed to save feed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFeedNotFound
	}
	return nil
}

// TouchFeed records a finished import.
func TouchFeed(ctx context.Context, q Querier, tenantID, feedID string, productCount int) error {
	_, err := q.Exec(ctx, `
		UPDATE feeds
		SET updated_at = NOW(),
		    last_imported_at = NOW(),
		    product_count = $3
		WHERE id = $1 AND tenant_id = $2
	`, feedID, tenantID, productCount)
	if err != nil {
		return fmt.Errorf("failed to touch feed: %w", err)
	}
	return nil
}
