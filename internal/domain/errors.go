package domain

import "errors"

var (
	// ErrStageUnknown is returned when a stage name is outside the fixed set
	ErrStageUnknown = errors.New("unknown stage")

	// ErrMalformedRow is returned when a fetched row fails normalization
	ErrMalformedRow = errors.New("malformed row")

	// ErrUnauthorized is returned when a registry mutation is attempted by an
	// actor without admin or superadmin privilege
	ErrUnauthorized = errors.New("actor not authorized")

	// ErrNotSubscribed is returned when unsubscribing a chat that is not subscribed
	ErrNotSubscribed = errors.New("chat not subscribed")

	// ErrAlreadySubscribed is returned when subscribing a chat twice
	ErrAlreadySubscribed = errors.New("chat already subscribed")

	// ErrTargetGone is returned by the messenger when the destination chat no
	// longer exists or the bot was removed from it; the notifier evicts the
	// target instead of retrying
	ErrTargetGone = errors.New("delivery target gone")

	// ErrCycleInFlight is returned when a manual trigger finds a cycle already
	// running for the stage; the trigger is coalesced, not queued twice
	ErrCycleInFlight = errors.New("poll cycle already in flight")
)
