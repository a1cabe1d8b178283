// Package pipeline ties retrieval, parsing, mapping and the import
// transaction together.
package pipeline

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kosarica/feed-service/config"
	"github.com/kosarica/feed-service/internal/database"
	"github.com/kosarica/feed-service/internal/mapping"
	"github.com/kosarica/feed-service/internal/storage"
	"github.com/kosarica/feed-service/internal/types"
)

const tracerName = "github.com/kosarica/feed-service/internal/pipeline"

var (
	// ErrNoSource is returned when a request names neither a URL nor an upload.
	ErrNoSource = errors.New("either a source URL or an upload is required")
	// ErrNotRefreshable is returned when refreshing a feed without a source URL.
	ErrNotRefreshable = errors.New("feed has no source URL")
)

// Retriever produces Content from a URL or an uploaded file.
type Retriever interface {
	FromURL(ctx context.Context, url string) (*types.Content, error)
	FromUpload(filename string, body io.Reader) (*types.Content, error)
}

// JobScheduler hands a freshly imported feed to downstream workers.
type JobScheduler interface {
	ScheduleContentGeneration(ctx context.Context, feed *types.Feed, products int) error
}

// Source names where a payload comes from. Exactly one of URL or Upload is set.
type Source struct {
	URL      string
	Filename string
	Upload   io.Reader
}

// Pipeline runs feed ingestion for all tenants.
type Pipeline struct {
	cfg       config.PipelineConfig
	required  []types.Attribute
	retriever Retriever
	db        database.DB
	feeds     *database.Repository
	archive   storage.Storage
	jobs      JobScheduler
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// Option configures optional collaborators.
type Option func(*Pipeline)

// WithArchive stores every retrieved payload in s.
func WithArchive(s storage.Storage) Option {
	return func(p *Pipeline) { p.archive = s }
}

// WithJobScheduler enqueues follow-up work after each committed import.
func WithJobScheduler(j JobScheduler) Option {
	return func(p *Pipeline) { p.jobs = j }
}

// New creates a Pipeline. Unset numeric settings fall back to the defaults.
func New(cfg config.PipelineConfig, retriever Retriever, db database.DB, logger zerolog.Logger, opts ...Option) *Pipeline {
	defaults := config.DefaultPipelineConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaults.ChunkSize
	}
	if cfg.SampleBytes <= 0 {
		cfg.SampleBytes = defaults.SampleBytes
	}

	required := mapping.DefaultRequired
	if cfg.RequiredAttributes != nil {
		required = make([]types.Attribute, 0, len(cfg.RequiredAttributes))
		for _, a := range cfg.RequiredAttributes {
			required = append(required, types.Attribute(a))
		}
	}

	p := &Pipeline{
		cfg:       cfg,
		required:  required,
		retriever: retriever,
		db:        db,
		feeds:     database.NewRepository(db),
		logger:    logger.With().Str("component", "pipeline").Logger(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IngestRequest asks for a feed to be retrieved, parsed and imported.
type IngestRequest struct {
	// Feed identifies the tenant and, for existing feeds, the ID. An empty
	// ID creates a new feed.
	Feed   *types.Feed
	Source Source
	// Mapping overrides the feed's stored mapping when set.
	Mapping *types.FieldMapping
	// Refreshing marks unattended runs that must never wait for a mapping.
	Refreshing bool
}

// IngestResult reports what an ingestion did.
type IngestResult struct {
	Feed    *types.Feed   `json:"feed"`
	Preview *Preview      `json:"preview"`
	Import  *ImportResult `json:"import,omitempty"`
	// NeedsMapping is set when no mapping was supplied or stored; the
	// preview then carries a suggestion and nothing was written.
	NeedsMapping bool `json:"needsMapping"`
}

// Ingest retrieves, parses and imports one feed. Without a usable mapping an
// interactive request returns a preview with NeedsMapping set, while a
// refresh fails with a MappingError.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.Ingest")
	defer span.End()

	feed := req.Feed
	if feed == nil || feed.TenantID == "" {
		return nil, errors.New("feed with tenant is required")
	}
	if feed.ID == "" {
		feed.ID = uuid.NewString()
	}
	if req.Source.URL != "" && feed.SourceURL == nil {
		u := req.Source.URL
		feed.SourceURL = &u
	}
	span.SetAttributes(
		attribute.String("feed.id", feed.ID),
		attribute.String("feed.tenant", feed.TenantID),
		attribute.Bool("feed.refreshing", req.Refreshing),
	)

	content, err := p.Retrieve(ctx, req.Source)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieve failed")
		return nil, err
	}
	content.Context.Refreshing = req.Refreshing

	parsed, err := p.Parse(ctx, content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		return nil, err
	}
	p.archiveSnapshot(ctx, feed, content, parsed)

	result := &IngestResult{Feed: feed, Preview: p.buildPreview(content, parsed)}

	var m types.FieldMapping
	switch {
	case req.Mapping != nil:
		m = *req.Mapping
	case !feed.FieldMappings.IsZero():
		m = feed.FieldMappings
	case req.Refreshing:
		err := &types.MappingError{Missing: p.required}
		importsTotal.WithLabelValues(outcomeMappingError).Inc()
		span.RecordError(err)
		return nil, err
	default:
		result.NeedsMapping = true
		p.logger.Info().
			Str("feed_id", feed.ID).
			Int("items", parsed.Len()).
			Msg("Feed parsed, waiting for field mapping")
		return result, nil
	}

	imported, err := p.Import(ctx, feed, parsed, m)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "import failed")
		return nil, err
	}
	result.Import = imported
	return result, nil
}
