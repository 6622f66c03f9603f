package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/spf13/cobra"

	"github.com/wegman-software/osmpoi-go/internal/config"
	"github.com/wegman-software/osmpoi-go/internal/dataset"
	"github.com/wegman-software/osmpoi-go/internal/logger"
	"github.com/wegman-software/osmpoi-go/internal/pipeline"
	"github.com/wegman-software/osmpoi-go/internal/source"
	"github.com/wegman-software/osmpoi-go/internal/store"
)

var buildSchema string

var buildCmd = &cobra.Command{
	Use:   "build <input.osm.pbf> [output.poi.db]",
	Short: "Build a POI dataset file from an OSM extract",
	Long: `Build a standalone POI dataset from an .osm.pbf or .osm extract.

With the default sqlite3 driver the result is written to output.poi.db
(default: the input name in the current directory). The file is replaced
only once the build has committed.

With --driver pgx the dataset is built into the PostgreSQL schema named by
--dataset.`,
	Args: cobra.RangeArgs(1, 2),
	Run:  runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().StringVar(&buildSchema, "dataset", "", "PostgreSQL schema to build into (pgx driver)")
}

func runBuild(cmd *cobra.Command, args []string) {
	log := logger.Get()
	input := args[0]

	ctx, stop := signalContext()
	defer stop()

	opts, err := buildOptions()
	if err != nil {
		exitWithError("invalid build options", err)
	}

	if cfg.Driver == config.DriverPostgres {
		if buildSchema == "" {
			exitWithError("--dataset is required with --driver pgx", nil)
		}
		stats, err := buildPostgres(ctx, input, buildSchema, opts)
		if err != nil {
			exitWithError("build failed", err)
		}
		logBuildStats("Build complete", stats)
		return
	}

	output := dataset.NameFromInput(input) + dataset.Ext
	if len(args) == 2 {
		output = args[1]
	}
	log.Info("Starting build",
		zap.String("input", input),
		zap.String("output", output),
		zap.String("degenerate", cfg.Degenerate))

	stats, err := dataset.BuildFile(ctx, input, output, opts)
	if err != nil {
		exitWithError("build failed", err)
	}
	logBuildStats("Build complete", stats)
}

func buildPostgres(ctx context.Context, input, schema string, opts dataset.AddOptions) (*pipeline.BuildStats, error) {
	logger.Get().Info("Starting build",
		zap.String("input", input),
		zap.String("database", cfg.DBName),
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("schema", schema))

	r, err := source.Open(ctx, input, cfg.Workers)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	s, err := store.OpenPostgres(ctx, cfg.ConnectionString(schema), schema, true)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return pipeline.Build(ctx, s, r, opts.Build)
}

// openQueryStore resolves a dataset argument: a schema under pgx, otherwise
// a path to a .poi.db file or a name in the data directory.
func openQueryStore(ctx context.Context, ref string) (*store.Store, error) {
	if cfg.Driver == config.DriverPostgres {
		return store.OpenPostgres(ctx, cfg.ConnectionString(ref), ref, false)
	}
	return openSQLiteDataset(ref)
}

// openSQLiteDataset opens a .poi.db path or a dataset in the data directory.
func openSQLiteDataset(ref string) (*store.Store, error) {
	if filepath.Ext(ref) == ".db" {
		return store.OpenSQLiteReadOnly(ref)
	}
	dir, err := dataset.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening data dir: %w", err)
	}
	return dir.OpenStore(ref)
}
