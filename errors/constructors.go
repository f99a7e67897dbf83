package errors

import (
	"fmt"
	"time"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *PulseError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *PulseError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// FetchTransient marks a collector failure that may succeed on a later tick
// (network, auth, timeout).
func FetchTransient(source string, err error) *PulseError {
	return Wrap(err, ErrCodeFetchTransient, fmt.Sprintf("fetch from '%s' failed", source)).
		WithDetail("source", source)
}

// FetchTerminal marks a source as permanently misconfigured for this session.
func FetchTerminal(source string, err error) *PulseError {
	return Wrap(err, ErrCodeFetchTerminal, fmt.Sprintf("source '%s' cannot be collected", source)).
		WithDetail("source", source)
}

// CompositionDeadline is the internal signal for a source that missed the tick deadline.
func CompositionDeadline(source string, deadline time.Duration) *PulseError {
	return New(ErrCodeCompositionDeadline,
		fmt.Sprintf("source '%s' did not answer within %s", source, deadline)).
		WithDetail("source", source).
		WithDetail("deadline", deadline.String())
}

// RecorderIO wraps a failed session-log write. Recording stops after one of these.
func RecorderIO(path string, err error) *PulseError {
	return Wrap(err, ErrCodeRecorderIO, "recording disabled after write failure").
		WithDetail("path", path)
}

// FrameEncode reports a Snapshot that could not be serialized. Only that
// frame is lost; the log itself is untouched.
func FrameEncode(sequence uint64, err error) *PulseError {
	return Wrap(err, ErrCodeFrameEncode, fmt.Sprintf("cannot encode snapshot %d", sequence)).
		WithDetail("sequence", sequence)
}

// ReplayCorruption reports a complete frame that failed to decode.
func ReplayCorruption(offset int64, err error) *PulseError {
	return Wrap(err, ErrCodeReplayCorruption, fmt.Sprintf("corrupt frame at offset %d", offset)).
		WithDetail("offset", offset)
}

// ReplayTruncated reports that the log ends with an incomplete frame.
func ReplayTruncated(offset int64) *PulseError {
	return New(ErrCodeReplayTruncated, fmt.Sprintf("recording ended early at offset %d", offset)).
		WithDetail("offset", offset)
}

// InvalidNavigation reports a navigation request that was clamped or rejected.
func InvalidNavigation(reason string) *PulseError {
	return New(ErrCodeInvalidNavigation, reason)
}

// SessionOpen wraps a failure to create or open a session log.
func SessionOpen(path string, err error) *PulseError {
	return Wrap(err, ErrCodeSessionOpen, fmt.Sprintf("cannot open session: %s", path)).
		WithDetail("path", path)
}

// SessionInUse reports a session log that is still being written by a live process.
func SessionInUse(path string, pid int) *PulseError {
	return New(ErrCodeSessionInUse,
		fmt.Sprintf("session %s is still being recorded by PID %d", path, pid)).
		WithDetail("path", path).
		WithDetail("pid", pid)
}

// ProducerClaimed reports a second producer trying to publish on a bus.
func ProducerClaimed(current, requested string) *PulseError {
	return New(ErrCodeProducerClaimed,
		fmt.Sprintf("bus already has producer '%s', cannot attach '%s'", current, requested)).
		WithDetail("current", current).
		WithDetail("requested", requested)
}
