package workflow

import (
	"errors"
	"io/fs"
	"os"

	"vtranscoder/internal/logging"
)

// recoverInterrupted cleans up after a job that was running when the
// previous process died. Only an output the encoder had started writing is
// removed.
func (l *Loop) recoverInterrupted() {
	snapshot, err := l.store.Progress.Load()
	if err != nil {
		l.logger.Warn("progress unreadable; resetting", logging.Error(err))
		l.resetProgress()
		return
	}
	if !snapshot.Active {
		return
	}

	removed := false
	if output := snapshot.OutputFile; snapshot.Encoding && output != "" {
		ledger, err := l.store.History.Ledger()
		switch {
		case err != nil:
			l.logger.Warn("history unreadable; keeping interrupted output",
				logging.Error(err),
				logging.Alert("partial_output_kept"),
			)
		case ledger.SucceededOutput(output):
		default:
			if err := os.Remove(output); err == nil {
				removed = true
			} else if !errors.Is(err, fs.ErrNotExist) {
				l.logger.Warn("remove interrupted output failed", logging.String("path", output), logging.Error(err))
			}
		}
	}
	logging.WarnWithContext(l.logger, "recovered interrupted job", "crash_recovery",
		logging.String("source", snapshot.CurrentFile),
		logging.String("output", snapshot.OutputFile),
		logging.Bool("output_removed", removed),
		logging.String(logging.FieldImpact, "the file is retried on the next pass"),
	)
	l.resetProgress()
}
