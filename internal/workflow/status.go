package workflow

import (
	"time"

	"vtranscoder/internal/config"
	"vtranscoder/internal/jobsource"
)

// State is the loop's coarse lifecycle position.
type State string

const (
	StateIdle             State = "idle"
	StateValidatingConfig State = "validating_config"
	StateInWindow         State = "in_window"
	StateOutOfWindow      State = "out_of_window"
	StateCooldown         State = "cooldown"
	StateFatal            State = "fatal"
	StateStopped          State = "stopped"
)

// Status is a point-in-time view of the loop.
type Status struct {
	State      State          `json:"state"`
	CurrentJob *jobsource.Job `json:"currentJob,omitempty"`
	LastError  string         `json:"lastError,omitempty"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Status returns the latest loop information.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	status := l.status
	if status.CurrentJob != nil {
		job := *status.CurrentJob
		status.CurrentJob = &job
	}
	return status
}

func (l *Loop) setState(state State) {
	l.mu.Lock()
	l.status.State = state
	l.status.UpdatedAt = l.now()
	l.mu.Unlock()
}

func (l *Loop) setLastError(err error) {
	l.mu.Lock()
	if err != nil {
		l.status.LastError = err.Error()
	} else {
		l.status.LastError = ""
	}
	l.mu.Unlock()
}

func (l *Loop) setCurrent(job *jobsource.Job) {
	l.mu.Lock()
	if job != nil {
		copy := *job
		l.status.CurrentJob = &copy
	} else {
		l.status.CurrentJob = nil
	}
	l.status.UpdatedAt = l.now()
	l.mu.Unlock()
}

func (l *Loop) setConfig(cfg *config.Config) {
	l.mu.Lock()
	l.lastCfg = cfg
	l.mu.Unlock()
}

func (l *Loop) config() *config.Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastCfg
}
