package devserver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pleasebuild/jspack/internal/driver"
)

// metricsSet exposes the BuildContext's progress counters (// section 6 build-context: progress, errorCount, warningCount,
// elapsedTime) as Prometheus gauges, grounded on kraklabs-cie's and
// nmxmxh-inos_v1's use of client_golang for their own runtime metrics —
// read on scrape via prometheus.NewGaugeFunc rather than pushed, since the
// BuildContext is replaced wholesale on every rebuild.
type metricsSet struct {
	registry *prometheus.Registry
	bc       *driver.BuildContext
}

func newMetricsSet(bc *driver.BuildContext) *metricsSet {
	m := &metricsSet{registry: prometheus.NewRegistry(), bc: bc}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "jspack",
			Name:      "build_progress_ratio",
			Help:      "Fraction of build tasks completed in [0,1] for the current/last build.",
		}, func() float64 {
			if m.bc == nil {
				return 0
			}
			return m.bc.Progress()
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "jspack",
			Name:      "build_error_count",
			Help:      "Accumulated error-severity log entries for the current/last build.",
		}, func() float64 {
			if m.bc == nil {
				return 0
			}
			return float64(m.bc.ErrorCount())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "jspack",
			Name:      "build_warning_count",
			Help:      "Accumulated warning-severity log entries for the current/last build.",
		}, func() float64 {
			if m.bc == nil {
				return 0
			}
			return float64(m.bc.WarningCount())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "jspack",
			Name:      "build_elapsed_seconds",
			Help:      "Time elapsed since the current/last build started.",
		}, func() float64 {
			if m.bc == nil {
				return 0
			}
			return m.bc.Elapsed().Seconds()
		}),
	)
	return m
}

// SetBuildContext swaps in the BuildContext of the most recent rebuild, so
// the gauges above track the live build rather than the server's startup
// snapshot.
func (m *metricsSet) SetBuildContext(bc *driver.BuildContext) { m.bc = bc }

func (m *metricsSet) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
