// Package server exposes proximity queries over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/wegman-software/osmpoi-go/internal/dataset"
	"github.com/wegman-software/osmpoi-go/internal/logger"
	"github.com/wegman-software/osmpoi-go/internal/metrics"
	"github.com/wegman-software/osmpoi-go/internal/poiindex"
)

const (
	DefaultCacheSize   = 8
	DefaultMaxRadiusKm = 100
	DefaultMaxPoints   = 10000
	maxBodyBytes       = 8 << 20
)

// Options configures a Server.
type Options struct {
	// CacheSize is the number of dataset indexes kept in memory.
	CacheSize int
	// RateLimit is the sustained request rate; zero disables limiting.
	RateLimit rate.Limit
	Burst     int
	// MaxRadiusKm and MaxPoints bound a single query.
	MaxRadiusKm float64
	MaxPoints   int
	Workers     int
}

// Server answers queries against the datasets of a data directory. Each
// dataset is loaded into an in-memory R-tree on first use.
type Server struct {
	dir     *dataset.Dir
	opts    Options
	cache   *lru.Cache[string, *poiindex.Index]
	loads   singleflight.Group
	limiter *rate.Limiter
	router  *mux.Router
	log     *zap.Logger
}

// New returns a server over dir.
func New(dir *dataset.Dir, opts Options) (*Server, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.MaxRadiusKm <= 0 {
		opts.MaxRadiusKm = DefaultMaxRadiusKm
	}
	if opts.MaxPoints <= 0 {
		opts.MaxPoints = DefaultMaxPoints
	}
	cache, err := lru.New[string, *poiindex.Index](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating index cache: %w", err)
	}
	s := &Server{
		dir:   dir,
		opts:  opts,
		cache: cache,
		log:   logger.Named("server"),
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(opts.RateLimit, burst)
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(s.rateLimit)
	api.HandleFunc("/datasets", s.handleDatasets).Methods(http.MethodGet)
	api.HandleFunc("/datasets/{name}/query", s.handleQueryGet).Methods(http.MethodGet)
	api.HandleFunc("/datasets/{name}/query", s.handleQueryPost).Methods(http.MethodPost)
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// index returns the cached index for name, loading it if needed. The cache
// key includes the file modification time so a rebuilt dataset is reloaded.
func (s *Server) index(ctx context.Context, name string) (*poiindex.Index, error) {
	if err := dataset.ValidateName(name); err != nil {
		return nil, err
	}
	info, err := os.Stat(s.dir.Path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", dataset.ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s@%d", name, info.ModTime().UnixNano())

	if idx, ok := s.cache.Get(key); ok {
		metrics.IndexCache.WithLabelValues("hit").Inc()
		return idx, nil
	}
	metrics.IndexCache.WithLabelValues("miss").Inc()

	v, err, _ := s.loads.Do(key, func() (any, error) {
		if idx, ok := s.cache.Get(key); ok {
			return idx, nil
		}
		st, err := s.dir.OpenStore(name)
		if err != nil {
			return nil, err
		}
		defer st.Close()

		start := time.Now()
		idx, err := poiindex.Load(ctx, st)
		if err != nil {
			return nil, err
		}
		s.log.Info("Loaded dataset index",
			zap.String("dataset", name),
			zap.Int("pois", idx.Len()),
			zap.Duration("elapsed", time.Since(start)))
		s.cache.Add(key, idx)
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*poiindex.Index), nil
}
