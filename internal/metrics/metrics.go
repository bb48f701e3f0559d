// Package metrics provides Prometheus metrics for the transcoding engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts finished jobs by mode and outcome.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vtranscoder_jobs_total",
		Help: "Total number of processed files, by mode (handbrake/ffmpeg/copy) and outcome.",
	}, []string{"mode", "outcome"})

	// JobDuration tracks wall-clock time per job.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vtranscoder_job_duration_seconds",
		Help:    "Duration of encode and copy jobs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 16), // 1s to ~9h
	}, []string{"mode"})

	// SubtitlesTotal counts subtitle files produced or attempted, by source and result.
	SubtitlesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vtranscoder_subtitles_total",
		Help: "Total subtitle operations, by source (extract/convert/external/opensubtitles) and result.",
	}, []string{"source", "result"})

	// EncodePercent is the progress of the job in flight.
	EncodePercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vtranscoder_encode_percent",
		Help: "Percent complete of the current encode or copy, 0 when idle.",
	})

	// InWindow is 1 while the schedule window is open.
	InWindow = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vtranscoder_schedule_in_window",
		Help: "Whether the processing window is currently open (1) or closed (0).",
	})

	// LoopErrorsTotal counts recovered run loop iteration failures.
	LoopErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vtranscoder_loop_errors_total",
		Help: "Total run loop iterations that failed and entered the cooldown.",
	})
)

// RecordJob increments the job counter and observes its duration.
func RecordJob(mode, outcome string, elapsed time.Duration) {
	JobsTotal.WithLabelValues(mode, outcome).Inc()
	if elapsed > 0 {
		JobDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	}
}

// RecordSubtitle increments the subtitle counter.
func RecordSubtitle(source, result string) {
	SubtitlesTotal.WithLabelValues(source, result).Inc()
}

// SetWindow records whether the schedule window is open.
func SetWindow(open bool) {
	if open {
		InWindow.Set(1)
		return
	}
	InWindow.Set(0)
}
