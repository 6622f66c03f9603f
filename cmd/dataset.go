package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"

	"github.com/wegman-software/osmpoi-go/internal/dataset"
	"github.com/wegman-software/osmpoi-go/internal/logger"
	"github.com/wegman-software/osmpoi-go/internal/parquet"
	"github.com/wegman-software/osmpoi-go/internal/pipeline"
)

var (
	addOverwrite bool
	exportFormat string
)

var addCmd = &cobra.Command{
	Use:   "add <input> [name]",
	Short: "Add a dataset to the data directory",
	Long: `Add a dataset built from an .osm.pbf or .osm extract, or copy in an
existing .poi.db file. The name defaults to the input file name without its
extension.`,
	Args: cobra.RangeArgs(1, 2),
	Run:  runAdd,
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List datasets in the data directory",
	Args:  cobra.NoArgs,
	Run:   runLs,
}

var exportCmd = &cobra.Command{
	Use:   "export <name> <path>",
	Short: "Copy a dataset out of the data directory",
	Long: `Export a dataset as a SQLite file (--format db, the default) or as a
zstd-compressed Parquet file of the poi table (--format parquet).`,
	Args: cobra.ExactArgs(2),
	Run:  runExport,
}

var rmCmd = &cobra.Command{
	Use:   "rm <name>...",
	Short: "Remove datasets from the data directory",
	Args:  cobra.MinimumNArgs(1),
	Run:   runRm,
}

func init() {
	rootCmd.AddCommand(addCmd, lsCmd, exportCmd, rmCmd)
	addCmd.Flags().BoolVarP(&addOverwrite, "force", "f", false, "Replace an existing dataset with the same name")
	exportCmd.Flags().StringVar(&exportFormat, "format", "db", "Export format: db or parquet")
}

func dataDir() *dataset.Dir {
	dir, err := dataset.Open(cfg.DataDir)
	if err != nil {
		exitWithError("failed to open data dir", err)
	}
	return dir
}

func runAdd(cmd *cobra.Command, args []string) {
	input := args[0]
	name := dataset.NameFromInput(input)
	if len(args) == 2 {
		name = args[1]
	}

	ctx, stop := signalContext()
	defer stop()

	opts, err := buildOptions()
	if err != nil {
		exitWithError("invalid build options", err)
	}
	opts.Overwrite = addOverwrite

	stats, err := dataDir().Add(ctx, input, name, opts)
	if err != nil {
		exitWithError("add failed", err)
	}
	if stats != nil {
		logBuildStats("Build complete", stats)
	}
}

func runLs(cmd *cobra.Command, args []string) {
	list, err := dataDir().List()
	if err != nil {
		exitWithError("failed to list datasets", err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED")
	for _, info := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", info.Name, pipeline.FormatBytes(info.Size), info.Modified.Format(time.DateTime))
	}
	w.Flush()
}

func runExport(cmd *cobra.Command, args []string) {
	name, dest := args[0], args[1]
	dir := dataDir()
	log := logger.Get()

	switch exportFormat {
	case "db":
		if err := dir.Export(name, dest); err != nil {
			exitWithError("export failed", err)
		}
	case "parquet":
		s, err := dir.OpenStore(name)
		if err != nil {
			exitWithError("failed to open dataset", err)
		}
		defer s.Close()
		rows, err := parquet.Export(context.Background(), s, dest, parquet.DefaultBatchSize)
		if err != nil {
			exitWithError("export failed", err)
		}
		log.Info("Exported rows", zap.Int64("rows", rows))
	default:
		exitWithError(fmt.Sprintf("unknown export format %q", exportFormat), nil)
	}
	log.Info("Dataset exported", zap.String("name", name), zap.String("path", dest), zap.String("format", exportFormat))
}

func runRm(cmd *cobra.Command, args []string) {
	dir := dataDir()
	for _, name := range args {
		if err := dir.Remove(name); err != nil {
			exitWithError("remove failed", err)
		}
		logger.Get().Info("Dataset removed", zap.String("name", name))
	}
}
