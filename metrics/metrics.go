// Package metrics exposes reactor counters to Prometheus.
//
// Two integration points are provided: a Collector scraping a reactor's
// Stats snapshot, and a middleware counting commits and errors per action
// label.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/davidroman0O/reactor"
)

// Collector implements prometheus.Collector over a reactor's Stats.
type Collector[S any] struct {
	r *reactor.Reactor[S]

	updatesDesc       *prometheus.Desc
	skippedDesc       *prometheus.Desc
	errorsDesc        *prometheus.Desc
	notificationsDesc *prometheus.Desc
	pendingDesc       *prometheus.Desc
}

// NewCollector creates a Collector for the given reactor. Register it with a
// prometheus.Registerer to scrape the reactor's counters.
func NewCollector[S any](r *reactor.Reactor[S]) *Collector[S] {
	labels := prometheus.Labels{"reactor": r.Name(), "reactor_id": r.ID()}
	return &Collector[S]{
		r: r,
		updatesDesc: prometheus.NewDesc(
			"reactor_updates_total",
			"Number of committed state updates.",
			nil, labels,
		),
		skippedDesc: prometheus.NewDesc(
			"reactor_updates_skipped_total",
			"Number of updates dropped by the equality check.",
			nil, labels,
		),
		errorsDesc: prometheus.NewDesc(
			"reactor_errors_total",
			"Number of failed mutations and asynchronous actions.",
			nil, labels,
		),
		notificationsDesc: prometheus.NewDesc(
			"reactor_notifications_total",
			"Number of subscriber callback invocations.",
			nil, labels,
		),
		pendingDesc: prometheus.NewDesc(
			"reactor_actions_pending",
			"Number of asynchronous action invocations in flight.",
			nil, labels,
		),
	}
}

var _ prometheus.Collector = (*Collector[struct{}])(nil)

// Describe implements prometheus.Collector.
func (c *Collector[S]) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.updatesDesc
	ch <- c.skippedDesc
	ch <- c.errorsDesc
	ch <- c.notificationsDesc
	ch <- c.pendingDesc
}

// Collect implements prometheus.Collector.
func (c *Collector[S]) Collect(ch chan<- prometheus.Metric) {
	stats := c.r.Stats()
	ch <- prometheus.MustNewConstMetric(c.updatesDesc, prometheus.CounterValue, float64(stats.Updates))
	ch <- prometheus.MustNewConstMetric(c.skippedDesc, prometheus.CounterValue, float64(stats.Skipped))
	ch <- prometheus.MustNewConstMetric(c.errorsDesc, prometheus.CounterValue, float64(stats.Errors))
	ch <- prometheus.MustNewConstMetric(c.notificationsDesc, prometheus.CounterValue, float64(stats.Notifications))
	ch <- prometheus.MustNewConstMetric(c.pendingDesc, prometheus.GaugeValue, float64(stats.Pending))
}

// Middleware returns a reactor middleware counting commits and errors per
// action label, registered on reg.
func Middleware[S any](reg prometheus.Registerer, reactorName string) (reactor.Middleware[S], error) {
	commits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "reactor_commits_total",
		Help:        "Number of committed state updates by action label.",
		ConstLabels: prometheus.Labels{"reactor": reactorName},
	}, []string{"action"})
	errors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "reactor_commit_errors_total",
		Help:        "Number of failed updates by action label.",
		ConstLabels: prometheus.Labels{"reactor": reactorName},
	}, []string{"action"})

	for _, c := range []prometheus.Collector{commits, errors} {
		if err := reg.Register(c); err != nil {
			return reactor.Middleware[S]{}, err
		}
	}

	return reactor.Middleware[S]{
		Name: "prometheus",
		OnAfterUpdate: func(prev, next *S, action string) error {
			commits.WithLabelValues(action).Inc()
			return nil
		},
		OnError: func(err error, action string) {
			errors.WithLabelValues(action).Inc()
		},
	}, nil
}
