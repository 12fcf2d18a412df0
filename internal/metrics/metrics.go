// Package metrics defines the Prometheus metrics a single tdns invocation
// collects, and writes them out once as a textfile-collector file
// (SPEC_FULL.md's --metrics-file) rather than serving them over HTTP: unlike
// the teacher's long-running daemon, this process exits after one update, so
// promhttp.Handler has nothing to serve. All metrics use the "tdns_" prefix,
// matching the teacher's namespaced promauto style.
package metrics

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "tdns"

// Registry holds one invocation's metrics, isolated from the global default
// registry so concurrent tests (and, in principle, concurrent invocations in
// the same process) don't collide.
type Registry struct {
	reg *prometheus.Registry

	UpdateAttempts     *prometheus.CounterVec
	UpdateRejections   *prometheus.CounterVec
	AuthoritiesTotal   prometheus.Gauge
	AuthoritiesReached prometheus.Gauge
	ConvergenceSeconds prometheus.Histogram
}

// New returns a Registry with every metric registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		UpdateAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_attempts_total",
			Help:      "Total RFC 2136 UPDATE submissions, by outcome.",
		}, []string{"outcome"}),
		UpdateRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_rejections_total",
			Help:      "Total UPDATE submissions rejected by the primary master, by rcode.",
		}, []string{"rcode"}),
		AuthoritiesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "authorities_total",
			Help:      "Number of authority endpoints discovered for the zone.",
		}),
		AuthoritiesReached: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "authorities_satisfied",
			Help:      "Number of authority endpoints that reached the satisfied state.",
		}),
		ConvergenceSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "convergence_duration_seconds",
			Help:      "Wall-clock time spent waiting for propagation to converge.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
	}

	reg.MustRegister(r.UpdateAttempts, r.UpdateRejections, r.AuthoritiesTotal, r.AuthoritiesReached, r.ConvergenceSeconds)
	return r
}

// WriteFile renders every registered metric in the Prometheus text exposition
// format and writes it to path, overwriting any existing file — the shape
// node_exporter's textfile collector expects.
func (r *Registry) WriteFile(path string) error {
	families, err := r.reg.Gather()
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(os.TempDir(), "tdns-metrics-*.prom")
	if err != nil {
		return err
	}
	tmpPath := f.Name()

	enc := expfmt.NewEncoder(f, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return err
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, path)
}
