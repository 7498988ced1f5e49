package pipeline

import "errors"

// Submission errors, returned synchronously to the submitter. Processing-time
// failures are captured on the message instead, never returned here.
var (
	// ErrUnknownMessageType indicates no handler is registered for the
	// envelope's type.
	ErrUnknownMessageType = errors.New("pipeline: unknown message type")

	// ErrQueueRejected indicates the queue refused the message because it is
	// at capacity or the client exceeded its rate limit.
	ErrQueueRejected = errors.New("pipeline: message rejected by queue")

	// ErrNotRunning indicates an operation that requires a started router.
	ErrNotRunning = errors.New("pipeline: router is not running")

	// ErrAlreadyRunning indicates Start was called on a running router.
	ErrAlreadyRunning = errors.New("pipeline: router is already running")
)
