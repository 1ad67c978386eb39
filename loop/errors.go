package loop

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptySequence means there is nothing to loop
	ErrEmptySequence = errors.New("loop: empty sequence")
	// ErrInvalidBounds means end <= start; corrected, not fatal
	ErrInvalidBounds = errors.New("loop: invalid bounds")
	// ErrDurationCapped means the loop was truncated to MaxLoopDuration; not fatal
	ErrDurationCapped = errors.New("loop: duration capped")
	// ErrTransportUnavailable aborts Start
	ErrTransportUnavailable = errors.New("loop: transport unavailable")
	// ErrScheduleCancel wraps a handle that failed to cancel during teardown
	ErrScheduleCancel = errors.New("loop: schedule cancel failed")
)

// AdvisoryKind classifies corrected or ignored conditions
type AdvisoryKind int

const (
	AdvisoryEmptySequence AdvisoryKind = iota
	AdvisoryInvalidBounds
	AdvisoryDurationCapped
	AdvisoryDroppedNotes
	AdvisoryCancelFailed
)

func (k AdvisoryKind) String() string {
	switch k {
	case AdvisoryEmptySequence:
		return "EmptySequence"
	case AdvisoryInvalidBounds:
		return "InvalidBounds"
	case AdvisoryDurationCapped:
		return "DurationCapped"
	case AdvisoryDroppedNotes:
		return "DroppedNotes"
	case AdvisoryCancelFailed:
		return "ScheduleCancelError"
	default:
		return fmt.Sprintf("AdvisoryKind(%d)", int(k))
	}
}

// Advisory reports a condition that was repaired or skipped rather than failed
type Advisory struct {
	Kind   AdvisoryKind
	Detail string
	Err    error
}

func (a Advisory) Error() string {
	return fmt.Sprintf("%s: %s", a.Kind, a.Detail)
}

func (a Advisory) Unwrap() error {
	return a.Err
}

func newAdvisory(kind AdvisoryKind, format string, args ...any) Advisory {
	var err error
	switch kind {
	case AdvisoryEmptySequence:
		err = ErrEmptySequence
	case AdvisoryInvalidBounds:
		err = ErrInvalidBounds
	case AdvisoryDurationCapped:
		err = ErrDurationCapped
	case AdvisoryCancelFailed:
		err = ErrScheduleCancel
	}
	return Advisory{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}
