package busmessage

import "github.com/prometheus/client_golang/prometheus"

// Metrics instruments the codec with Prometheus counters and a histogram.
// Registration is explicit: a library must never reach for the global
// default registry on import, so NewMetrics takes a prometheus.Registerer
// the caller controls (matching how runZeroInc-conniver wires
// client_golang into a low-level protocol library via a constructor
// rather than an init-time global).
type Metrics struct {
	sealedTotal      prometheus.Counter
	parsedTotal      prometheus.Counter
	parseErrorsTotal *prometheus.CounterVec
	sealedBodyBytes  prometheus.Histogram
}

// NewMetrics registers the codec's metrics with reg and returns a Metrics
// ready to pass to Message operations. reg may be nil, in which case the
// returned Metrics silently discards observations — useful for tests and
// callers that don't want instrumentation.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sealedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "busmessage",
			Name:      "sealed_total",
			Help:      "Total number of messages successfully sealed.",
		}),
		parsedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "busmessage",
			Name:      "parsed_total",
			Help:      "Total number of messages successfully parsed from a buffer.",
		}),
		parseErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busmessage",
			Name:      "parse_errors_total",
			Help:      "Total number of buffers rejected by FromBuffer, labeled by error code.",
		}, []string{"reason"}),
		sealedBodyBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "busmessage",
			Name:      "sealed_body_bytes",
			Help:      "Size in bytes of the body of sealed messages.",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.sealedTotal, m.parsedTotal, m.parseErrorsTotal, m.sealedBodyBytes)
	}
	return m
}

func (m *Metrics) observeSealed(bodySize int) {
	if m == nil {
		return
	}
	m.sealedTotal.Inc()
	m.sealedBodyBytes.Observe(float64(bodySize))
}

func (m *Metrics) observeParsed() {
	if m == nil {
		return
	}
	m.parsedTotal.Inc()
}

func (m *Metrics) observeParseError(code Code) {
	if m == nil {
		return
	}
	m.parseErrorsTotal.WithLabelValues(code.String()).Inc()
}
