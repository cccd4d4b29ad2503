package pipeline

import "errors"

var (
	// ErrEmptyPayload rejects zero-byte input before any lease is taken.
	ErrEmptyPayload = errors.New("empty audio payload")

	// ErrPayloadTooLarge rejects oversized input before any lease is taken.
	ErrPayloadTooLarge = errors.New("audio payload too large")

	// ErrLeaseFailed wraps storage-backend failures to create or write the
	// temporary audio object. Fatal for the request.
	ErrLeaseFailed = errors.New("resource lease failed")
)
