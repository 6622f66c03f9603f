package cmd

import (
	"bufio"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"

	"github.com/wegman-software/osmpoi-go/internal/logger"
	"github.com/wegman-software/osmpoi-go/internal/poi"
	"github.com/wegman-software/osmpoi-go/internal/poiindex"
	"github.com/wegman-software/osmpoi-go/internal/query"
	"github.com/wegman-software/osmpoi-go/internal/style"
)

var (
	queryDistance float64
	queryStrict   bool
	queryFormat   string
	queryStyle    string
	queryInMemory bool
)

var queryCmd = &cobra.Command{
	Use:   "query <dataset> <input.csv> <output>",
	Short: "Find POIs around each point of a CSV file",
	Long: `Find the POIs near every point of input.csv (columns id, lat, lon) and
write one row per match to output ("-" for stdout).

By default a POI matches when its bounding box overlaps the search box of
--distance km around the point. With --strict a POI matches only when its
center lies within --distance km.

<dataset> is a name in the data directory, a path to a .poi.db file, or a
PostgreSQL schema with --driver pgx.`,
	Args: cobra.ExactArgs(3),
	Run:  runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().Float64Var(&queryDistance, "distance", 1, "Search radius in km")
	queryCmd.Flags().BoolVar(&queryStrict, "strict", false, "Only match POIs whose center is within the radius")
	queryCmd.Flags().StringVar(&queryFormat, "format", "csv", "Output format: csv or geojson")
	queryCmd.Flags().StringVarP(&queryStyle, "style", "S", "", "Style YAML file narrowing results by tags")
	queryCmd.Flags().BoolVar(&queryInMemory, "in-memory", false, "Load the dataset into an in-memory R-tree before searching")
}

func runQuery(cmd *cobra.Command, args []string) {
	log := logger.Get()
	ref, inPath, outPath := args[0], args[1], args[2]

	ctx, stop := signalContext()
	defer stop()

	var write func(io.Writer, []query.Result) error
	switch queryFormat {
	case "csv":
		write = query.WriteCSV
	case "geojson":
		write = query.WriteGeoJSON
	default:
		exitWithError("unknown output format "+queryFormat, nil)
	}

	var st *style.Config
	if queryStyle != "" {
		var err error
		if st, err = style.LoadConfig(queryStyle); err != nil {
			exitWithError("failed to load style", err)
		}
	}

	in, err := os.Open(inPath)
	if err != nil {
		exitWithError("failed to open input", err)
	}
	points, err := query.ReadPoints(in)
	in.Close()
	if err != nil {
		exitWithError("failed to read query points", err)
	}

	s, err := openQueryStore(ctx, ref)
	if err != nil {
		exitWithError("failed to open dataset", err)
	}
	defer s.Close()

	var searcher query.Searcher = poi.NewStoreSearcher(s)
	if queryInMemory {
		start := time.Now()
		idx, err := poiindex.Load(ctx, s)
		if err != nil {
			exitWithError("failed to load index", err)
		}
		log.Info("Index loaded", zap.Int("pois", idx.Len()), zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
		searcher = idx
	}

	engine, err := query.NewEngine(searcher, query.Options{
		RadiusKm: queryDistance,
		Strict:   queryStrict,
		Workers:  cfg.Workers,
		Style:    st,
	})
	if err != nil {
		exitWithError("invalid query", err)
	}

	log.Info("Starting query",
		zap.String("dataset", ref),
		zap.Int("points", len(points)),
		zap.Float64("distance_km", queryDistance),
		zap.Bool("strict", queryStrict))

	start := time.Now()
	results, err := engine.Run(ctx, points)
	if err != nil {
		exitWithError("query failed", err)
	}

	var out io.Writer = os.Stdout
	if outPath != "-" {
		f, err := os.Create(outPath)
		if err != nil {
			exitWithError("failed to create output", err)
		}
		defer f.Close()
		out = f
	}
	bw := bufio.NewWriter(out)
	if err := write(bw, results); err != nil {
		exitWithError("failed to write results", err)
	}
	if err := bw.Flush(); err != nil {
		exitWithError("failed to write results", err)
	}

	log.Info("Query complete",
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
}
