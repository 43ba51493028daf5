package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrFatalDocument marks a document that cannot be processed at all
	// (corrupt input, every parser stage failed). It is the only error class
	// that moves a document to the failed state.
	ErrFatalDocument = errors.New("document not processable")
	// ErrCanceled marks a run aborted by caller cancellation. No partial
	// result is cached for a canceled run.
	ErrCanceled = errors.New("processing canceled")
)
