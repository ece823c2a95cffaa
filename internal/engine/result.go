package engine

import (
	"context"
	"errors"
)

// ErrTargetGone is returned for calls against a target the engine no longer has.
var ErrTargetGone = errors.New("render target gone")

// Result classifies the outcome of an engine call.
type Result int

const (
	Ok Result = iota
	TargetGone
	Transient
)

func (r Result) String() string {
	switch r {
	case Ok:
		return "ok"
	case TargetGone:
		return "target_gone"
	default:
		return "transient"
	}
}

// Classify maps an engine error onto a Result so callers pick deliberately
// between ignoring a failure and surfacing it.
func Classify(err error) Result {
	switch {
	case err == nil:
		return Ok
	case errors.Is(err, ErrTargetGone):
		return TargetGone
	case errors.Is(err, context.Canceled):
		return TargetGone
	default:
		return Transient
	}
}
