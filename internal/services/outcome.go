package services

import "fmt"

// OutcomeKind classifies how a pipeline stage finished.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeFailed
	OutcomeCancelled
	OutcomeSkipped
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the result of a stage. Err carries the failure reason and is nil
// for every kind except OutcomeFailed.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

func Succeeded() Outcome { return Outcome{Kind: OutcomeSuccess} }

func Cancelled() Outcome { return Outcome{Kind: OutcomeCancelled} }

func Skipped() Outcome { return Outcome{Kind: OutcomeSkipped} }

// Failed wraps err as a failed outcome. A nil err is replaced with a generic
// transient marker so callers can always inspect Err.
func Failed(err error) Outcome {
	if err == nil {
		err = ErrTransient
	}
	return Outcome{Kind: OutcomeFailed, Err: err}
}

func (o Outcome) Success() bool { return o.Kind == OutcomeSuccess }

func (o Outcome) Cancelled() bool { return o.Kind == OutcomeCancelled }

func (o Outcome) String() string {
	if o.Kind == OutcomeFailed && o.Err != nil {
		return fmt.Sprintf("failed: %v", o.Err)
	}
	return o.Kind.String()
}
