package download

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 提供低基数的缓存协议指标，不按 URL 或 host 打标签。
type Metrics struct {
	lookups         *prometheus.CounterVec
	downloads       prometheus.Counter
	redirects       prometheus.Counter
	failures        *prometheus.CounterVec
	bytesDownloaded prometheus.Counter
}

// NewMetrics 构建并注册指标；reg 为 nil 时使用默认注册器。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "url_cache",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by result (hit or miss).",
		}, []string{"result"}),
		downloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "url_cache",
			Subsystem: "download",
			Name:      "committed_total",
			Help:      "Entries committed with a body.",
		}),
		redirects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "url_cache",
			Subsystem: "download",
			Name:      "redirects_total",
			Help:      "Redirect stubs committed.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "url_cache",
			Subsystem: "download",
			Name:      "failures_total",
			Help:      "Failed downloads by error kind.",
		}, []string{"kind"}),
		bytesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "url_cache",
			Subsystem: "download",
			Name:      "bytes_total",
			Help:      "Body bytes written to storage.",
		}),
	}

	reg.MustRegister(m.lookups, m.downloads, m.redirects, m.failures, m.bytesDownloaded)
	return m
}

func (m *Metrics) observeLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.lookups.WithLabelValues("hit").Inc()
		return
	}
	m.lookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) observeCommit(bytes int64) {
	if m == nil {
		return
	}
	m.downloads.Inc()
	m.bytesDownloaded.Add(float64(bytes))
}

func (m *Metrics) observeRedirect() {
	if m == nil {
		return
	}
	m.redirects.Inc()
}

func (m *Metrics) observeFailure(err error) {
	if m == nil || err == nil {
		return
	}
	m.failures.WithLabelValues(errorKind(err)).Inc()
}
