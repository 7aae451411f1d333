package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so tests can build as many as they need.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry        *prometheus.Registry
	transfers       *prometheus.CounterVec
	transferLatency prometheus.Histogram
	verdicts        *prometheus.CounterVec
	trades          *prometheus.CounterVec
	revenuePool     prometheus.Gauge
	allocations     prometheus.Counter
	allocatedTotal  prometheus.Counter
	journalDropped  prometheus.Counter
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		transfers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transfers_total",
			Help: "Transfers by terminal status",
		}, []string{"status"}),
		transferLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_transfer_duration_seconds",
			Help:    "Time taken to process a transfer",
			Buckets: prometheus.DefBuckets,
		}),
		verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fraud_verdicts_total",
			Help: "Fraud verdicts by decision and reason",
		}, []string{"decision", "reason"}),
		trades: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "investment_trades_total",
			Help: "Executed trades by side and asset",
		}, []string{"side", "asset"}),
		revenuePool: factory.NewGauge(prometheus.GaugeOpts{
			Name: "revenue_pool_accrued",
			Help: "Fees and commissions awaiting allocation",
		}),
		allocations: factory.NewCounter(prometheus.CounterOpts{
			Name: "revenue_allocations_total",
			Help: "Number of non-empty revenue allocations",
		}),
		allocatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "revenue_allocated_amount_total",
			Help: "Sum of all allocated revenue",
		}),
		journalDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "journal_entries_dropped_total",
			Help: "Journal entries dropped on a full buffer or that failed to persist or publish",
		}),
	}
}

func (m *Collector) RecordTransfer(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(status).Inc()
	m.transferLatency.Observe(duration.Seconds())
}

func (m *Collector) RecordVerdict(decision, reason string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(decision, reason).Inc()
}

func (m *Collector) RecordTrade(side, asset string) {
	if m == nil {
		return
	}
	m.trades.WithLabelValues(side, asset).Inc()
}

func (m *Collector) SetRevenuePool(accrued float64) {
	if m == nil {
		return
	}
	m.revenuePool.Set(accrued)
}

func (m *Collector) RecordAllocation(total float64) {
	if m == nil {
		return
	}
	m.allocations.Inc()
	m.allocatedTotal.Add(total)
}

func (m *Collector) RecordJournalDrop() {
	if m == nil {
		return
	}
	m.journalDropped.Inc()
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Collector) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
