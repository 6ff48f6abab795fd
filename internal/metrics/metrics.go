package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	merges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfmerger",
			Name:      "merges_total",
			Help:      "Merge attempts by result (success, insufficient_input, decode_error, encode_error, busy)",
		},
		[]string{"result"},
	)

	mergeLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pdfmerger",
			Name:      "merge_duration_seconds",
			Help:      "Duration of merge engine runs",
			Buckets:   prometheus.DefBuckets,
		},
	)

	mergedPages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pdfmerger",
			Name:      "merged_pages_total",
			Help:      "Total pages written into merged documents",
		},
	)

	filesRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfmerger",
			Name:      "files_read_total",
			Help:      "Source files read into sessions by result (ok, failed, rejected)",
		},
		[]string{"result"},
	)

	exports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfmerger",
			Name:      "exports_total",
			Help:      "Exports by blob backend and result",
		},
		[]string{"backend", "result"},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pdfmerger",
			Name:      "sessions_active",
			Help:      "Number of live merge sessions",
		},
	)

	registerOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(merges, mergeLatency, mergedPages, filesRead, exports, sessionsActive)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveMerge(result string, pages int, dur time.Duration) {
	merges.WithLabelValues(result).Inc()
	mergeLatency.Observe(dur.Seconds())
	if pages > 0 {
		mergedPages.Add(float64(pages))
	}
}

func IncFileRead(result string) { filesRead.WithLabelValues(result).Inc() }
func IncExport(backend, result string) { exports.WithLabelValues(backend, result).Inc() }
func SetSessionsActive(n int) { sessionsActive.Set(float64(n)) }
