package session

import "time"

type Decision int

const (
	DecisionNone Decision = iota
	DecisionPartial
	DecisionFinalize
)

func (d Decision) String() string {
	switch d {
	case DecisionPartial:
		return "partial"
	case DecisionFinalize:
		return "finalize"
	default:
		return "none"
	}
}

// WindowState is the part of a session the scheduler looks at.
type WindowState struct {
	Uncommitted      time.Duration
	SinceLastPartial time.Duration
}

// Scheduler decides, per inbound chunk, whether to run a recognition pass.
// It holds no state and never blocks.
type Scheduler struct {
	PartialInterval time.Duration
	MaxBuffer       time.Duration
}

func (s Scheduler) Evaluate(w WindowState) Decision {
	if w.Uncommitted >= s.MaxBuffer {
		return DecisionFinalize
	}
	if w.SinceLastPartial >= s.PartialInterval {
		return DecisionPartial
	}
	return DecisionNone
}
