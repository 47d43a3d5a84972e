// Package metrics exposes Prometheus instruments for the voice layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Listening = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicecart_recognition_listening",
		Help: "1 while a recognition session is listening",
	})

	Speaking = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicecart_speech_speaking",
		Help: "1 while coordinated speech is in flight",
	})

	RecognitionSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicecart_recognition_sessions_total",
		Help: "Recognition sessions started",
	})

	RecognitionRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicecart_recognition_restarts_total",
		Help: "Automatic recognition restarts by outcome",
	}, []string{"outcome"})

	RecognitionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicecart_recognition_errors_total",
		Help: "Recognition errors by kind",
	}, []string{"kind"})

	Utterances = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicecart_utterances_total",
		Help: "Speak requests by outcome",
	}, []string{"outcome"})

	UtteranceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicecart_utterance_duration_seconds",
		Help:    "Time from speak request to playback end",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 3.0, 5.0, 8.0},
	})

	SettleResumes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicecart_settle_resumes_total",
		Help: "Recognition resumes after coordinated speech",
	})

	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicecart_commands_total",
		Help: "Interpreted commands by category",
	}, []string{"category"})

	CommandsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicecart_commands_dropped_total",
		Help: "Repeated commands dropped inside the de-duplication window",
	})

	Narrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicecart_narrations_total",
		Help: "Narration announcements by event",
	}, []string{"event"})
)

// Bool converts a flag to a gauge value.
func Bool(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
