package metrics

import (
	"math/big"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "arena"

// Metrics holds the arena collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ActionsTotal   *prometheus.CounterVec   // by action and result kind
	ActionDuration *prometheus.HistogramVec // by action
	TreasuryWei    prometheus.Gauge
	Waifus         prometheus.Gauge
	VerifyFailures prometheus.Counter
}

// New creates the collectors and registers them, together with the Go runtime
// and process collectors, on a fresh registry.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Arena actions by outcome.",
			},
			[]string{"action", "result"},
		),
		ActionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Time spent executing an action, including the commit.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"action"},
		),
		TreasuryWei: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "treasury_wei",
			Help:      "Current treasury balance in wei.",
		}),
		Waifus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "waifus",
			Help:      "Number of waifus created.",
		}),
		VerifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verify_failures_total",
			Help:      "Journal replays that did not match persisted state.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.ActionsTotal,
		m.ActionDuration,
		m.TreasuryWei,
		m.Waifus,
		m.VerifyFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAction records one action attempt.
func (m *Metrics) ObserveAction(action, result string, elapsed time.Duration) {
	m.ActionsTotal.WithLabelValues(action, result).Inc()
	m.ActionDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// SetTreasury updates the balance gauge. Precision beyond float64 is lost.
func (m *Metrics) SetTreasury(wei *big.Int) {
	f, _ := new(big.Float).SetInt(wei).Float64()
	m.TreasuryWei.Set(f)
}

// SetWaifus updates the entity count gauge.
func (m *Metrics) SetWaifus(n uint64) {
	m.Waifus.Set(float64(n))
}
