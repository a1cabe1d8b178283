package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kosarica/feed-service/config"
	"github.com/kosarica/feed-service/internal/app"
	"github.com/kosarica/feed-service/internal/database"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "feed-service",
	Short: "Feed Service CLI - product feed preview and import tool",
	Long: `A CLI tool for previewing, importing and refreshing product feeds.
Feeds may be XML (RSS, Atom, Google Shopping or custom), delimited text
or XLSX spreadsheets, read from a local file or downloaded from a URL.`,
	PersistentPreRunE: persistentPreRun,
	SilenceUsage:      true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml or ./config.yaml)")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		// Config is optional for some commands, don't fail here
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
	}
}

// needsDB lists the commands that talk to the database.
var needsDB = map[string]bool{
	"import":  true,
	"refresh": true,
	"migrate": true,
}

// persistentPreRun runs before each command and initializes dependencies
func persistentPreRun(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}
	if cfg == nil {
		return fmt.Errorf("config required for %s command but not loaded", cmd.Name())
	}

	logCfg := cfg.Logging
	logCfg.Format = "console"
	logger = app.NewLogger(logCfg, "feed-service-cli")

	if needsDB[cmd.Name()] {
		if err := initDatabase(cmd.Context()); err != nil {
			return fmt.Errorf("database initialization failed: %w", err)
		}
		logger.Debug().Msg("Database connected")
	}
	return nil
}

func initDatabase(ctx context.Context) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := database.Connect(ctx, database.PoolConfig{
		URL:             cfg.Database.URL,
		MaxConnections:  cfg.Database.MaxConnections,
		MinConnections:  cfg.Database.MinConnections,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	}); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return nil
}

// services wires the pipeline. Commands without a database get a pipeline
// that can only retrieve and parse.
func services(ctx context.Context) (*app.App, error) {
	var db database.DB
	if pool := database.Pool(); pool != nil {
		db = pool
	}
	return app.New(ctx, cfg, db, logger)
}

func main() {
	defer database.Close()
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
