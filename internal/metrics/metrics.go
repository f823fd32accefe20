// Package metrics records run metrics with Prometheus collectors on a private
// registry. A CLI run dumps them to a textfile for the node_exporter textfile
// collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder owns the collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	commandTotal    *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	windowsTotal    *prometheus.CounterVec
	windowDuration  prometheus.Histogram
	segmentsTotal   prometheus.Counter
	audioSeconds    prometheus.Counter
	fallbackTotal   *prometheus.CounterVec
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		// Labels: command (ffmpeg/ffprobe/whisper), status (success/failed/timeout)
		commandTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunkscribe_command_executions_total",
				Help: "External command executions by command and status",
			},
			[]string{"command", "status"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chunkscribe_command_duration_seconds",
				Help:    "External command duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"command"},
		),
		windowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunkscribe_windows_total",
				Help: "Transcription windows processed by status",
			},
			[]string{"status"},
		),
		windowDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chunkscribe_window_duration_seconds",
				Help:    "Wall time spent per window (extract + recognize)",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),
		segmentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chunkscribe_segments_total",
			Help: "Segments produced across all windows",
		}),
		audioSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chunkscribe_audio_seconds_total",
			Help: "Seconds of source audio transcribed",
		}),
		fallbackTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunkscribe_model_fallback_total",
				Help: "Model loads that fell back to a smaller model",
			},
			[]string{"from", "to"},
		),
	}
	r.registry.MustRegister(
		r.commandTotal,
		r.commandDuration,
		r.windowsTotal,
		r.windowDuration,
		r.segmentsTotal,
		r.audioSeconds,
		r.fallbackTotal,
	)
	return r
}

// Registry exposes the underlying registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordCommand records one external command execution.
func (r *Recorder) RecordCommand(command, status string, seconds float64) {
	if r == nil {
		return
	}
	r.commandTotal.WithLabelValues(command, status).Inc()
	r.commandDuration.WithLabelValues(command).Observe(seconds)
}

// RecordWindow records a finished window.
func (r *Recorder) RecordWindow(success bool, seconds float64, segments int, audioSeconds float64) {
	if r == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	r.windowsTotal.WithLabelValues(status).Inc()
	r.windowDuration.Observe(seconds)
	if success {
		r.segmentsTotal.Add(float64(segments))
		r.audioSeconds.Add(audioSeconds)
	}
}

// RecordFallback records a model fallback.
func (r *Recorder) RecordFallback(from, to string) {
	if r == nil {
		return
	}
	r.fallbackTotal.WithLabelValues(from, to).Inc()
}

// WriteTextfile writes the current values in the Prometheus text format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
