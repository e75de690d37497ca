package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/codex-usage/codex-usage/internal/burnrate"
	"github.com/codex-usage/codex-usage/internal/quota"
)

const namespace = "codex_usage"

// Fetch results recorded by FetchResult.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultCached  = "cached"
	ResultLimited = "limited"
)

// Metrics holds the watch-mode collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	WindowUsed       *prometheus.GaugeVec
	BurnRate         *prometheus.GaugeVec
	ExhaustsInSecond *prometheus.GaugeVec
	FetchTotal       *prometheus.CounterVec
	CyclesTotal      *prometheus.CounterVec
	LastFetch        *prometheus.GaugeVec
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		WindowUsed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "window_used_percent",
				Help:      "Used percent of a quota window",
			},
			[]string{"account", "window"},
		),

		BurnRate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "burn_rate_percent_per_minute",
				Help:      "Consumption velocity of a quota window",
			},
			[]string{"account", "window"},
		),

		ExhaustsInSecond: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "window_exhausts_in_seconds",
				Help:      "Projected seconds until a window reaches 100% at the current burn rate",
			},
			[]string{"account", "window"},
		),

		FetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_total",
				Help:      "Usage fetches by outcome",
			},
			[]string{"account", "result"}, // ok / error / cached / limited
		),

		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Cycle runs by outcome state",
			},
			[]string{"outcome"},
		),

		LastFetch: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_fetch_timestamp_seconds",
				Help:      "Capture time of the latest snapshot",
			},
			[]string{"account"},
		),
	}

	m.registry.MustRegister(
		m.WindowUsed,
		m.BurnRate,
		m.ExhaustsInSecond,
		m.FetchTotal,
		m.CyclesTotal,
		m.LastFetch,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the private registry for handlers and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSnapshot records the used percent of every window present in s.
func (m *Metrics) ObserveSnapshot(s *quota.Snapshot) {
	if m == nil || s == nil {
		return
	}
	if s.Primary != nil {
		m.WindowUsed.WithLabelValues(s.Account, "5h").Set(s.Primary.UsedPercent)
	}
	if s.Secondary != nil {
		m.WindowUsed.WithLabelValues(s.Account, "weekly").Set(s.Secondary.UsedPercent)
	}
	if s.CodeReviewUsed != nil {
		m.WindowUsed.WithLabelValues(s.Account, "code_review").Set(*s.CodeReviewUsed)
	}
	m.LastFetch.WithLabelValues(s.Account).Set(float64(s.CapturedAt.Unix()))
}

// ObserveRate records burn rates and, when usage is rising, the projected
// exhaustion time of each window.
func (m *Metrics) ObserveRate(account string, r burnrate.Rate, latest burnrate.Sample) {
	if m == nil {
		return
	}
	windows := []struct {
		label string
		rate  burnrate.WindowRate
		used  float64
	}{
		{"5h", r.Primary, latest.PrimaryUsed},
		{"weekly", r.Secondary, latest.SecondaryUsed},
		{"code_review", r.CodeReview, latest.CodeReviewUsed},
	}
	for _, w := range windows {
		m.BurnRate.WithLabelValues(account, w.label).Set(w.rate.Velocity)
		if d, ok := w.rate.Exhaustion(w.used); ok {
			m.ExhaustsInSecond.WithLabelValues(account, w.label).Set(d.Seconds())
		} else {
			m.ExhaustsInSecond.DeleteLabelValues(account, w.label)
		}
	}
}

// FetchResult counts one fetch attempt.
func (m *Metrics) FetchResult(account, result string) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(account, result).Inc()
}

// CycleOutcome counts one cycle run.
func (m *Metrics) CycleOutcome(outcome string) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(outcome).Inc()
}
