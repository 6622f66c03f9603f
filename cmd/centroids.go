package cmd

import (
	"bufio"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"

	"github.com/wegman-software/osmpoi-go/internal/centroid"
	"github.com/wegman-software/osmpoi-go/internal/logger"
	"github.com/wegman-software/osmpoi-go/internal/nodeindex"
	"github.com/wegman-software/osmpoi-go/internal/source"
)

var nodeIndexFile string

var centroidsCmd = &cobra.Command{
	Use:   "centroids <input.osm.pbf> <output.csv>",
	Short: "Compute node-weighted centroids of ways and relations",
	Long: `Compute a weighted mean position for every way and relation of an
extract. Each node counts once, so a relation's position leans toward its
most detailed members. Members missing from the extract or closing a
reference cycle are ignored.

Node coordinates are kept in a memory-mapped index file (--node-index,
default a temporary file that is removed afterwards).`,
	Args: cobra.ExactArgs(2),
	Run:  runCentroids,
}

func init() {
	rootCmd.AddCommand(centroidsCmd)
	centroidsCmd.Flags().StringVar(&nodeIndexFile, "node-index", "", "Path for the node coordinate index file")
}

func runCentroids(cmd *cobra.Command, args []string) {
	log := logger.Get()
	input, output := args[0], args[1]

	ctx, stop := signalContext()
	defer stop()

	indexPath := nodeIndexFile
	if indexPath == "" {
		tmp, err := os.MkdirTemp("", "osmpoi-nodes-")
		if err != nil {
			exitWithError("failed to create temp dir", err)
		}
		defer os.RemoveAll(tmp)
		indexPath = filepath.Join(tmp, "nodes.idx")
	}

	start := time.Now()
	r, err := source.Open(ctx, input, cfg.Workers)
	if err != nil {
		exitWithError("failed to open input", err)
	}
	defer r.Close()

	nodes, err := nodeindex.Create(indexPath, 0)
	if err != nil {
		exitWithError("failed to create node index", err)
	}
	defer nodes.Close()

	agg, err := centroid.Load(ctx, r, nodes)
	if err != nil {
		exitWithError("failed to read input", err)
	}
	log.Info("Input loaded",
		zap.Int("ways_and_relations", agg.Len()),
		zap.Int64("node_capacity", nodes.Capacity()),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))

	f, err := os.Create(output)
	if err != nil {
		exitWithError("failed to create output", err)
	}
	defer f.Close()
	bw := bufio.NewWriter(f)

	rows, err := centroid.WriteCSV(ctx, bw, agg)
	if err != nil {
		exitWithError("failed to write centroids", err)
	}
	if err := bw.Flush(); err != nil {
		exitWithError("failed to write centroids", err)
	}
	log.Info("Centroids complete",
		zap.Int("rows", rows),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
}
