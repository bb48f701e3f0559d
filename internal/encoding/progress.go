package encoding

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vtranscoder/internal/jobsource"
	"vtranscoder/internal/logging"
	"vtranscoder/internal/metrics"
	"vtranscoder/internal/state"
)

// Progress is one parsed progress report from an encoder.
type Progress struct {
	Percent float64
	FPS     float64
	ETA     time.Duration
}

// LinearETA extrapolates the remaining time from elapsed and percent. It
// returns 0 outside (0, 100).
func LinearETA(elapsed time.Duration, percent float64) time.Duration {
	if percent <= 0 || percent >= 100 || elapsed <= 0 {
		return 0
	}
	remaining := float64(elapsed) * (100 - percent) / percent
	return time.Duration(remaining).Round(time.Second)
}

// tracker persists progress reports for the job in flight and logs them in
// 5% steps. Reports may arrive from the stdout and stderr readers at once.
type tracker struct {
	mu sync.Mutex


	progress ProgressStore
	job      jobsource.Job
	mode     Mode
	start    time.Time
	now      func() time.Time
	sampler  *logging.ProgressSampler
	logger   *slog.Logger
}

func (t *tracker) elapsed() time.Duration {
	return t.now().Sub(t.start)
}

func (t *tracker) report(p Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()

	metrics.EncodePercent.Set(p.Percent)
	if t.progress != nil {
		err := t.progress.Update(func(snapshot *state.ProgressSnapshot) {
			snapshot.Active = true
			snapshot.Encoding = true
			snapshot.CurrentFile = t.job.Source
			snapshot.OutputFile = t.job.Output
			snapshot.StartTime = t.start
			snapshot.Percent = p.Percent
			snapshot.FPS = p.FPS
			snapshot.ETA = state.Duration(p.ETA)
			snapshot.Status = fmt.Sprintf("%s %.1f%%", t.mode.verb(), p.Percent)
			snapshot.Subtitles.Active = false
		})
		if err != nil {
			t.logger.Debug("progress update failed", logging.Error(err))
		}
	}
	if !t.sampler.ShouldLog(p.Percent, string(t.mode)) {
		return
	}
	attrs := []logging.Attr{logging.Float64("progress_percent", p.Percent)}
	if p.FPS > 0 {
		attrs = append(attrs, logging.Float64("progress_fps", p.FPS))
	}
	if p.ETA > 0 {
		attrs = append(attrs, logging.Duration("progress_eta", p.ETA))
	}
	t.logger.Info(string(t.mode)+" progress", logging.Args(attrs...)...)
}
