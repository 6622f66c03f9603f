// Package metrics exposes Prometheus instruments and a host load sampler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "osmpoi"

var (
	BuildStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "build_stage_duration_seconds",
		Help:      "Duration of dataset build stages.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"stage"})

	ElementsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "elements_ingested_total",
		Help:      "OSM elements written to the raw tables.",
	}, []string{"kind"})

	ElementsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "elements_skipped_total",
		Help:      "Ways and relations dropped for lack of resolvable members.",
	}, []string{"kind"})

	POIsRefined = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pois_refined_total",
		Help:      "POI rows produced by builds.",
	}, []string{"type"})

	QueryPoints = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "query_points_total",
		Help:      "Query points searched.",
	}, []string{"mode"})

	QueryResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "query_results_total",
		Help:      "Result rows returned by searches.",
	}, []string{"mode"})

	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "query_point_duration_seconds",
		Help:      "Time to search one query point.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"mode"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"route", "code"})

	IndexCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "index_cache_lookups_total",
		Help:      "Dataset index cache lookups by result.",
	}, []string{"result"})

	ProcessRSS = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_process_rss_bytes",
		Help:      "Resident memory sampled during builds.",
	})

	ProcessCPU = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_process_cpu_percent",
		Help:      "Process CPU sampled during builds.",
	})
)
