package tts

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the §4.7 step-4 cache hit/miss counters and synthesis
// latency histogram, registered once per process.
type Metrics struct {
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	synthesis   prometheus.Histogram
	fallbacks   prometheus.Counter
}

// NewMetrics registers the TTS Pipeline's metrics against reg. Passing a
// fresh prometheus.NewRegistry() in tests avoids colliding with the
// default global registry across parallel test packages.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheHits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tts_cache_hits_total",
			Help: "TTS cache lookups resolved without calling the synthesis backend.",
		}),
		cacheMisses: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tts_cache_misses_total",
			Help: "TTS cache lookups that required a synthesis call.",
		}),
		synthesis: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "tts_synthesis_seconds",
			Help:    "Latency of a single-unit TTS synthesis call.",
			Buckets: prometheus.DefBuckets,
		}),
		fallbacks: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tts_unit_fallbacks_total",
			Help: "Units that failed synthesis and were skipped (tts_fallback emitted).",
		}),
	}
	return m
}
