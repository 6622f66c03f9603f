package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/wegman-software/osmpoi-go/internal/bbox"
	"github.com/wegman-software/osmpoi-go/internal/config"
	"github.com/wegman-software/osmpoi-go/internal/dataset"
	"github.com/wegman-software/osmpoi-go/internal/logger"
	"github.com/wegman-software/osmpoi-go/internal/pipeline"
)

var (
	cfg        = config.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "osmpoi",
	Short: "Extract named POIs from OSM data and answer proximity queries",
	Long: `osmpoi turns an OpenStreetMap extract into a compact table of named
points of interest and finds the POIs around a list of locations.

A build runs in one transaction:
  1. Ingest nodes, ways and relations into raw tables
  2. Resolve bounding boxes for ways, then relations in dependency order
  3. Refine named elements into the poi table and drop the raw tables

Datasets are SQLite files in the data directory, or schemas in PostgreSQL
with --driver pgx.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var fileErr error
		if configFile != "" {
			fileErr = loadConfigFile(cmd.Flags())
		}

		// Initialize logger with optional file output
		if cfg.LogFile != "" {
			logger.InitWithFile(cfg.Verbose, cfg.LogFile)
		} else {
			logger.Init(cfg.Verbose)
		}

		if fileErr != nil {
			exitWithError("failed to load config", fileErr)
		}
		if err := cfg.Validate(); err != nil {
			exitWithError("invalid configuration", err)
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configFile, "config", "", "YAML config file; explicit flags take precedence")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Enable verbose output")
	f.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory holding dataset files")
	f.IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "Number of parallel workers")
	f.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Ways resolved per batch")
	f.StringVar(&cfg.Degenerate, "degenerate", cfg.Degenerate, "Elements without located members: fail or skip")

	// Logging and metrics flags
	f.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Path to log file for persistent logging (JSON format)")
	f.DurationVar(&cfg.MetricsInterval, "metrics-interval", cfg.MetricsInterval, "Interval for system metrics logging during builds (0 disables)")

	// Storage flags
	f.StringVar(&cfg.Driver, "driver", cfg.Driver, "Storage driver: sqlite3 or pgx")
	f.StringVar(&cfg.DBHost, "db-host", cfg.DBHost, "PostgreSQL host")
	f.IntVar(&cfg.DBPort, "db-port", cfg.DBPort, "PostgreSQL port")
	f.StringVarP(&cfg.DBName, "db-name", "d", cfg.DBName, "PostgreSQL database name")
	f.StringVarP(&cfg.DBUser, "db-user", "U", cfg.DBUser, "PostgreSQL user")
	f.StringVarP(&cfg.DBPassword, "db-password", "W", cfg.DBPassword, "PostgreSQL password")
}

// loadConfigFile overlays the config file onto cfg, then re-applies the
// flags that were set on the command line.
func loadConfigFile(flags *pflag.FlagSet) error {
	changed := map[string]string{}
	flags.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})
	if err := cfg.LoadFile(configFile); err != nil {
		return err
	}
	for name, v := range changed {
		if err := flags.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	logger.Sync()
	os.Exit(1)
}

func buildOptions() (dataset.AddOptions, error) {
	policy, err := bbox.ParsePolicy(cfg.Degenerate)
	if err != nil {
		return dataset.AddOptions{}, err
	}
	log := logger.Get()
	return dataset.AddOptions{
		Workers: cfg.Workers,
		Build: pipeline.Options{
			Policy:           policy,
			BatchSize:        cfg.BatchSize,
			MetricsInterval:  cfg.MetricsInterval,
			ProgressInterval: 10 * time.Second,
			OnProgress: func(e pipeline.Event) {
				if e.Stage == pipeline.StageRelations {
					log.Debug("Relation sweep",
						zap.Int("sweep", e.Sweep),
						zap.Int64("resolved", e.Count),
						zap.Int64("skipped", e.Skipped),
						zap.Int64("remaining", e.Remaining))
				}
			},
		},
	}, nil
}

func logBuildStats(msg string, stats *pipeline.BuildStats) {
	fields := []zap.Field{
		zap.Int64("nodes", stats.Ingest.Nodes),
		zap.Int64("ways", stats.Ingest.Ways),
		zap.Int64("relations", stats.Ingest.Relations),
		zap.Int64("ways_skipped", stats.Ways.Skipped),
		zap.Int64("relations_skipped", stats.Relations.Skipped),
		zap.Int("sweeps", stats.Relations.Sweeps),
		zap.Int64("points", stats.POIs.Points),
		zap.Int64("areas", stats.POIs.Areas),
		zap.Duration("duration", stats.Duration.Round(time.Millisecond)),
	}
	for stage, d := range stats.Stages {
		fields = append(fields, zap.Duration(string(stage), d.Round(time.Millisecond)))
	}
	logger.Get().Info(msg, fields...)
}
