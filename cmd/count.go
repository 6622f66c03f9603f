package cmd

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"

	"github.com/wegman-software/osmpoi-go/internal/logger"
	"github.com/wegman-software/osmpoi-go/internal/source"
)

var countCmd = &cobra.Command{
	Use:   "count <input.osm.pbf>",
	Short: "Count nodes, ways and relations in an extract",
	Args:  cobra.ExactArgs(1),
	Run:   runCount,
}

func init() {
	rootCmd.AddCommand(countCmd)
}

func runCount(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()

	start := time.Now()
	r, err := source.Open(ctx, args[0], cfg.Workers)
	if err != nil {
		exitWithError("failed to open input", err)
	}
	defer r.Close()

	counts, err := r.Count()
	if err != nil {
		exitWithError("count failed", err)
	}
	logger.Get().Info("Count complete",
		zap.Int64("total", counts.Total()),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
	fmt.Printf("nodes\t%d\nways\t%d\nrelations\t%d\n", counts.Nodes, counts.Ways, counts.Relations)
}
