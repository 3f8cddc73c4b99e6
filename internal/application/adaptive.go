package application

import (
	"time"

	"github.com/ericfisherdev/ciwatch/internal/domain/model"
)

// fastCheckThreshold is the longest-check duration under which the next
// interval is halved: short checks finish soon, so poll sooner.
const fastCheckThreshold = 10 * time.Second

// PollState is the lifecycle of a single wait for checks.
type PollState int

const (
	PollInitial PollState = iota
	PollPolling
	PollCompleted
	PollFailed
	PollTimedOut
	PollCriticalFailure
)

// String returns a human-readable name for the poll state.
func (s PollState) String() string {
	switch s {
	case PollInitial:
		return "initial"
	case PollPolling:
		return "polling"
	case PollCompleted:
		return "completed"
	case PollFailed:
		return "failed"
	case PollTimedOut:
		return "timed_out"
	case PollCriticalFailure:
		return "critical_failure"
	default:
		return "unknown"
	}
}

// CalculateNextInterval returns the delay before the next poll.
//
// Fixed strategies always return InitialInterval. Exponential strategies grow
// current by Multiplier, capped at MaxInterval. When lastCheckDuration is
// positive and under ten seconds the result is halved, but never below
// InitialInterval. A non-positive lastCheckDuration means it is unknown.
func CalculateNextInterval(current time.Duration, strategy model.PollStrategy, lastCheckDuration time.Duration) time.Duration {
	var next time.Duration

	switch strategy.Type {
	case model.PollExponential:
		multiplier := strategy.Multiplier
		if multiplier == 0 {
			multiplier = model.DefaultPollMultiplier
		}
		maxInterval := strategy.MaxInterval
		if maxInterval == 0 {
			maxInterval = model.DefaultPollMaxInterval
		}
		next = min(time.Duration(float64(current)*multiplier), maxInterval)
	default:
		next = strategy.InitialInterval
	}

	if lastCheckDuration > 0 && lastCheckDuration < fastCheckThreshold {
		next = max(next/2, strategy.InitialInterval)
	}

	return next
}
