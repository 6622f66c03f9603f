package cmd

import (
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/wegman-software/osmpoi-go/internal/server"
)

var (
	serveListen    string
	serveCacheSize int
	serveRate      float64
	serveBurst     int
	serveMaxRadius float64
	serveMaxPoints int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve proximity queries over HTTP",
	Long: `Serve the datasets of the data directory over HTTP.

Routes:
  GET  /healthz
  GET  /datasets
  GET  /datasets/{name}/query?lat=&lon=&radius=&strict=&format=geojson
  POST /datasets/{name}/query   {"radius": 1, "strict": false, "points": [{"id": 1, "lat": 0, "lon": 0}]}
  GET  /metrics                 Prometheus metrics

Each dataset is loaded into memory on first use and kept in an LRU cache.`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", ":8080", "Address to listen on")
	serveCmd.Flags().IntVar(&serveCacheSize, "cache-size", server.DefaultCacheSize, "Datasets kept in memory")
	serveCmd.Flags().Float64Var(&serveRate, "rate", 0, "Requests per second allowed (0 disables limiting)")
	serveCmd.Flags().IntVar(&serveBurst, "burst", 10, "Request burst size")
	serveCmd.Flags().Float64Var(&serveMaxRadius, "max-radius", server.DefaultMaxRadiusKm, "Largest radius in km a query may ask for")
	serveCmd.Flags().IntVar(&serveMaxPoints, "max-points", server.DefaultMaxPoints, "Most points a single POST may carry")
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()

	srv, err := server.New(dataDir(), server.Options{
		CacheSize:   serveCacheSize,
		RateLimit:   rate.Limit(serveRate),
		Burst:       serveBurst,
		MaxRadiusKm: serveMaxRadius,
		MaxPoints:   serveMaxPoints,
		Workers:     cfg.Workers,
	})
	if err != nil {
		exitWithError("failed to create server", err)
	}
	if err := srv.ListenAndServe(ctx, serveListen); err != nil {
		exitWithError("server failed", err)
	}
}
