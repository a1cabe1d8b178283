package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess      = "success"
	outcomeFailed       = "failed"
	outcomeMappingError = "mapping_error"
)

var (
	retrievalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feed_service",
		Name:      "retrievals_total",
		Help:      "Feed retrievals by source and outcome.",
	}, []string{"source", "outcome"})

	parsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feed_service",
		Name:      "parses_total",
		Help:      "Successful feed parses by kind and whether the fallback parser was used.",
	}, []string{"kind", "fallback"})

	parseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "feed_service",
		Name:      "parse_failures_total",
		Help:      "Payloads where neither parser found items.",
	})

	importsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feed_service",
		Name:      "imports_total",
		Help:      "Import attempts by outcome.",
	}, []string{"outcome"})

	importedProducts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feed_service",
		Name:      "imported_products_total",
		Help:      "Items handled by imports, by result.",
	}, []string{"result"})

	importDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "feed_service",
		Name:      "import_duration_seconds",
		Help:      "Duration of committed import transactions.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)
