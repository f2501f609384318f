// Package metrics holds the Prometheus collectors for enrichment runs, the
// saddlepoint solver and the result cache.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MikeSquared-Agency/SaddleSum/internal/saddlesum"
)

const (
	MetricRunsTotal         = "saddlesum_runs_total"
	MetricRunDuration       = "saddlesum_run_duration_seconds"
	MetricRunHits           = "saddlesum_run_hits"
	MetricSolverFitsTotal   = "saddlesum_solver_fits_total"
	MetricSolverCacheHits   = "saddlesum_solver_cache_hits_total"
	MetricSolverRejects     = "saddlesum_solver_early_rejects_total"
	MetricResultCacheTotal  = "saddlesum_result_cache_requests_total"
	MetricDatabasesImported = "saddlesum_databases_imported_total"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"

	CacheHit  = "hit"
	CacheMiss = "miss"
)

type Metrics struct {
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	runHits         prometheus.Histogram
	solverFits      prometheus.Counter
	solverCacheHits prometheus.Counter
	solverRejects   prometheus.Counter
	resultCache     *prometheus.CounterVec
	imports         prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRunsTotal,
				Help: "Enrichment runs by statistic and status.",
			},
			[]string{"statistic", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricRunDuration,
				Help:    "Enrichment run latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"statistic"},
		),
		runHits: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricRunHits,
				Help:    "Number of terms reported per run.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
			},
		),
		solverFits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSolverFitsTotal,
			Help: "Saddlepoint fits computed.",
		}),
		solverCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSolverCacheHits,
			Help: "Queries answered from the lambda cache without a new fit.",
		}),
		solverRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSolverRejects,
			Help: "Queries rejected before Newton convergence.",
		}),
		resultCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricResultCacheTotal,
				Help: "Result cache lookups by outcome.",
			},
			[]string{"result"},
		),
		imports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricDatabasesImported,
			Help: "Term files imported into stored databases.",
		}),
	}
	if reg != nil {
		for _, c := range m.Collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.runsTotal, m.runDuration, m.runHits,
		m.solverFits, m.solverCacheHits, m.solverRejects,
		m.resultCache, m.imports,
	}
}

// ObserveRun records one finished run. The solver counters are only
// meaningful for successful runs.
func (m *Metrics) ObserveRun(statistic string, seconds float64, hits int, stats saddlesum.Stats, err error) {
	if err != nil {
		m.runsTotal.WithLabelValues(statistic, StatusFailure).Inc()
		return
	}
	m.runsTotal.WithLabelValues(statistic, StatusSuccess).Inc()
	m.runDuration.WithLabelValues(statistic).Observe(seconds)
	m.runHits.Observe(float64(hits))
	m.solverFits.Add(float64(stats.Fits))
	m.solverCacheHits.Add(float64(stats.CacheHits))
	m.solverRejects.Add(float64(stats.EarlyRejects))
}

func (m *Metrics) IncResultCache(result string) {
	m.resultCache.WithLabelValues(result).Inc()
}

func (m *Metrics) IncImports() {
	m.imports.Inc()
}
