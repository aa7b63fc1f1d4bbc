package paging

import "errors"

var (
	// ErrAlreadyRunning is returned by Run when the engine loop is already active.
	ErrAlreadyRunning = errors.New("paging engine already running")

	// ErrHandlerAborted wraps the error returned by an ErrorHandler that
	// chose to stop the engine.
	ErrHandlerAborted = errors.New("fetch error handler aborted engine")
)
