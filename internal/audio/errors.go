package audio

import "errors"

// Domain errors for the audio package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, audio.ErrStaleTarget) {
//	    // the UI referenced a device that no longer exists
//	}
var (
	// ErrStaleTarget is returned when a command references an index that is
	// not present in the registry. No state is changed.
	ErrStaleTarget = errors.New("audio: command target not found")

	// ErrUnknownCategory is returned when a category value is not recognised
	// or not valid for the requested operation.
	ErrUnknownCategory = errors.New("audio: unknown category")

	// ErrMalformedPayload is returned when a backend notification cannot be decoded.
	ErrMalformedPayload = errors.New("audio: malformed notification payload")

	// ErrProcessorStopped is returned when dispatching to a processor that has exited.
	ErrProcessorStopped = errors.New("audio: processor stopped")

	// ErrSubscriptionClosed is reported when the backend notification stream ends.
	ErrSubscriptionClosed = errors.New("audio: notification stream closed")

	// ErrInvalidCommand is returned when a command fails basic validation.
	ErrInvalidCommand = errors.New("audio: invalid command")
)
