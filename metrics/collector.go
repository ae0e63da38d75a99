package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports a Metrics as Prometheus counters.  Values are read at
// scrape time, so the hot path never touches the Prometheus client.
type Collector struct {
	m *Metrics

	started   *prometheus.Desc
	succeeded *prometheus.Desc
	failed    *prometheus.Desc
	canceled  *prometheus.Desc
	fallbacks *prometheus.Desc
	hashes    *prometheus.Desc
	verifies  *prometheus.Desc
	expired   *prometheus.Desc
	hashRate  *prometheus.Desc
}

// NewCollector returns a Collector for m whose metric names start with
// namespace (e.g. "powcaptcha").
func NewCollector(m *Metrics, namespace string) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}
	return &Collector{
		m:         m,
		started:   desc("attempts_started_total", "Solve attempts started."),
		succeeded: desc("attempts_succeeded_total", "Solve attempts that produced a token."),
		failed:    desc("attempts_failed_total", "Solve attempts that failed."),
		canceled:  desc("attempts_canceled_total", "Solve attempts canceled before completion."),
		fallbacks: desc("fallback_solves_total", "Searches run by the fallback solver."),
		hashes:    desc("hashes_total", "Digests computed by all solvers."),
		verifies:  desc("verifications_total", "Solutions submitted for verification."),
		expired:   desc("tokens_expired_total", "Tokens invalidated by the expiry timer."),
		hashRate:  desc("hashes_per_second", "Average hash rate since start."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.started, c.succeeded, c.failed, c.canceled, c.fallbacks,
		c.hashes, c.verifies, c.expired, c.hashRate,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.m.Snapshot()
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.started, s.AttemptsStarted)
	counter(c.succeeded, s.AttemptsSucceeded)
	counter(c.failed, s.AttemptsFailed)
	counter(c.canceled, s.AttemptsCanceled)
	counter(c.fallbacks, s.FallbackSolves)
	counter(c.hashes, s.HashesComputed)
	counter(c.verifies, s.Verifications)
	counter(c.expired, s.TokensExpired)
	ch <- prometheus.MustNewConstMetric(c.hashRate, prometheus.GaugeValue, s.HashesPerSecond)
}
