package obs

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// ProposalComputeTotal counts proposal computations by outcome.
	ProposalComputeTotal *prometheus.CounterVec
	// ProposalComputeDuration records engine latency in milliseconds.
	ProposalComputeDuration prometheus.Histogram
	// ProposalLines records the number of line items per computed proposal.
	ProposalLines prometheus.Histogram
	// QuoteCacheTotal counts quote cache lookups by outcome.
	QuoteCacheTotal *prometheus.CounterVec
	// CatalogReloadTotal counts catalog reload attempts by outcome.
	CatalogReloadTotal *prometheus.CounterVec
	// ProposalRecordsTotal counts proposal persistence attempts.
	ProposalRecordsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		ProposalComputeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposal_compute_total",
			Help:      "Count of proposal computations by outcome.",
		}, []string{"result"})
		ProposalComputeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "proposal_compute_duration_ms",
			Help:      "Latency of proposal computations in milliseconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		})
		ProposalLines = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "proposal_lines",
			Help:      "Number of line items per computed proposal.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 20},
		})
		QuoteCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_cache_total",
			Help:      "Count of quote cache lookups by outcome.",
		}, []string{"result"})
		CatalogReloadTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_reload_total",
			Help:      "Count of catalog reload attempts by outcome.",
		}, []string{"result"})
		ProposalRecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposal_records_total",
			Help:      "Count of proposal records persisted against customers.",
		}, []string{"mode", "result"})

		mustRegisterCollector(reg, ProposalComputeTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ProposalComputeTotal = v
			}
		})
		mustRegisterCollector(reg, ProposalComputeDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				ProposalComputeDuration = v
			}
		})
		mustRegisterCollector(reg, ProposalLines, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				ProposalLines = v
			}
		})
		mustRegisterCollector(reg, QuoteCacheTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QuoteCacheTotal = v
			}
		})
		mustRegisterCollector(reg, CatalogReloadTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CatalogReloadTotal = v
			}
		})
		mustRegisterCollector(reg, ProposalRecordsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ProposalRecordsTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}

// ObserveProposalCompute records one engine run. It is a no-op until the metrics are registered.
func ObserveProposalCompute(result string, lines int, elapsed time.Duration) {
	if ProposalComputeTotal != nil {
		ProposalComputeTotal.WithLabelValues(result).Inc()
	}
	if ProposalComputeDuration != nil {
		ProposalComputeDuration.Observe(DurationMillis(elapsed))
	}
	if ProposalLines != nil && lines > 0 {
		ProposalLines.Observe(float64(lines))
	}
}

// ObserveQuoteCache records a cache hit, miss or error.
func ObserveQuoteCache(result string) {
	if QuoteCacheTotal != nil {
		QuoteCacheTotal.WithLabelValues(result).Inc()
	}
}

// ObserveCatalogReload records a reload attempt outcome.
func ObserveCatalogReload(result string) {
	if CatalogReloadTotal != nil {
		CatalogReloadTotal.WithLabelValues(result).Inc()
	}
}

// ObserveProposalRecord records a persistence attempt for the given recording mode.
func ObserveProposalRecord(mode, result string) {
	if ProposalRecordsTotal != nil {
		ProposalRecordsTotal.WithLabelValues(mode, result).Inc()
	}
}
