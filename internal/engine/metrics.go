package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	sentences *prometheus.CounterVec
	duration  prometheus.Histogram
	active    prometheus.Gauge
	lookups   *prometheus.CounterVec
	options   *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		// Labels: status (ok, grammar_error, error)
		sentences: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "phrasegroup",
			Subsystem: "engine",
			Name:      "sentences_total",
			Help:      "Sentences processed, by outcome",
		}, []string{"status"}),

		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "phrasegroup",
			Subsystem: "engine",
			Name:      "sentence_duration_seconds",
			Help:      "Time to collect translation options for one sentence",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "phrasegroup",
			Subsystem: "engine",
			Name:      "active_sentences",
			Help:      "Sentences currently being processed",
		}),

		// Labels: table (decoding table name)
		lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "phrasegroup",
			Subsystem: "engine",
			Name:      "lookups_total",
			Help:      "Source span lookups issued to decoding tables",
		}, []string{"table"}),

		// Labels: table
		options: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "phrasegroup",
			Subsystem: "engine",
			Name:      "options_per_span",
			Help:      "Translation options returned per non-empty span",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		}, []string{"table"}),
	}
}
