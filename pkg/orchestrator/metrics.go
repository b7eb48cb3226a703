package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the per-turn latency histograms spec §4.7 step 4 asks for
// ("metrics increment hit/miss counters and latency histograms"), fed by
// Pipeline.recordLatency and mirrored onto Session.LatencyBreakdown for
// in-process introspection. Grounded on the teacher's managed_stream.go
// GetLatencyBreakdown, which measured the same ASR/LLM/TTS legs without
// exporting them anywhere; this adds the Prometheus export the teacher
// never wired up.
type Metrics struct {
	asr      prometheus.Histogram
	llm      prometheus.Histogram
	ttsFirst prometheus.Histogram
	total    prometheus.Histogram
}

// NewMetrics registers the Pipeline's per-turn latency histograms against
// reg. Pass a fresh prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		asr: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "orchestrator_turn_asr_seconds",
			Help:    "Latency from speech-end to transcript commit for one learner turn.",
			Buckets: prometheus.DefBuckets,
		}),
		llm: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "orchestrator_turn_llm_seconds",
			Help:    "Latency of the LLM completion call for one turn.",
			Buckets: prometheus.DefBuckets,
		}),
		ttsFirst: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "orchestrator_turn_tts_first_chunk_seconds",
			Help:    "Latency from LLM completion to the first synthesized audio chunk.",
			Buckets: prometheus.DefBuckets,
		}),
		total: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "orchestrator_turn_total_seconds",
			Help:    "End-to-end latency from transcript commit to first spoken audio chunk.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// observe records one completed turn's breakdown. A nil Metrics is a no-op,
// so Pipelines built without one (e.g. in tests) never need a guard at the
// call site.
func (m *Metrics) observe(b LatencyBreakdown) {
	if m == nil {
		return
	}
	if b.ASR > 0 {
		m.asr.Observe(b.ASR.Seconds())
	}
	m.llm.Observe(b.LLM.Seconds())
	m.ttsFirst.Observe(b.TTSFirst.Seconds())
	m.total.Observe(b.Total.Seconds())
}
