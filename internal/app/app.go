// Package app assembles the feed pipeline from configuration. It is shared by
// the server and the CLI.
package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/kosarica/feed-service/config"
	"github.com/kosarica/feed-service/internal/database"
	feedhttp "github.com/kosarica/feed-service/internal/http"
	"github.com/kosarica/feed-service/internal/pipeline"
	"github.com/kosarica/feed-service/internal/retrieval"
	"github.com/kosarica/feed-service/internal/storage"
	"github.com/kosarica/feed-service/internal/taskqueue"
)

// App holds the wired services.
type App struct {
	Feeds    *database.Repository
	Tasks    *taskqueue.TaskQueue
	Archive  storage.Storage
	Pipeline *pipeline.Pipeline
}

// New wires the retriever, archive, task queue and pipeline on top of db.
func New(ctx context.Context, cfg *config.Config, db database.DB, logger zerolog.Logger) (*App, error) {
	client := feedhttp.NewClient(feedhttp.ConfigFrom(cfg.Fetch))
	retriever := retrieval.New(client, cfg.Pipeline.UploadMaxBytes, logger.With().Str("component", "retrieval").Logger())

	a := &App{
		Feeds: database.NewRepository(db),
		Tasks: taskqueue.New(db),
	}
	opts := []pipeline.Option{pipeline.WithJobScheduler(a.Tasks)}

	if cfg.Storage.Enabled {
		archive, err := storage.New(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to create snapshot storage: %w", err)
		}
		a.Archive = archive
		opts = append(opts, pipeline.WithArchive(archive))
		logger.Info().Str("type", cfg.Storage.Type).Msg("Snapshot archive enabled")
	}

	a.Pipeline = pipeline.New(cfg.Pipeline, retriever, db, logger, opts...)
	return a, nil
}

// NewLogger builds the service logger from the logging section.
func NewLogger(cfg config.LoggingConfig, service string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Str("service", service).Logger()
}
