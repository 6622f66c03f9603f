package cmd

import (
	"path/filepath"

	"go.uber.org/zap"

	"github.com/spf13/cobra"

	"github.com/wegman-software/osmpoi-go/internal/loader"
	"github.com/wegman-software/osmpoi-go/internal/logger"
)

var publishSchema string

var publishCmd = &cobra.Command{
	Use:   "publish <name|file.parquet|file.poi.db>",
	Short: "Copy a dataset into a PostgreSQL schema",
	Long: `Publish a finished dataset into PostgreSQL so it can be queried with
--driver pgx. The source is a dataset name in the data directory, a .poi.db
file or a Parquet file written by "export --format parquet".

Rows are streamed with COPY and the schema's poi table is replaced in a
single transaction.`,
	Args: cobra.ExactArgs(1),
	Run:  runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().StringVar(&publishSchema, "dataset", "", "Target PostgreSQL schema (required)")
	publishCmd.MarkFlagRequired("dataset")
}

func runPublish(cmd *cobra.Command, args []string) {
	ref := args[0]
	ctx, stop := signalContext()
	defer stop()

	var src loader.Producer
	if filepath.Ext(ref) == ".parquet" {
		src = loader.FromParquet(ref)
	} else {
		s, err := openSQLiteDataset(ref)
		if err != nil {
			exitWithError("failed to open dataset", err)
		}
		defer s.Close()
		src = loader.FromStore(s)
	}

	ldr, err := loader.New(ctx, cfg.ConnectionString(""), publishSchema)
	if err != nil {
		exitWithError("failed to create loader", err)
	}
	defer ldr.Close()

	stats, err := ldr.Load(ctx, src)
	if err != nil {
		exitWithError("publish failed", err)
	}
	logger.Get().Info("Publish complete",
		zap.String("source", ref),
		zap.String("schema", publishSchema),
		zap.Int64("rows", stats.RowsLoaded))
}
