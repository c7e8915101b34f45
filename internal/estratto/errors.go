package estratto

import "errors"

// Model errors drive the retry policy in the chunk adapter; protocol
// errors are fatal to the current import.
var (
	// ErrRateLimited is returned when the extraction model answers 429.
	ErrRateLimited = errors.New("extraction model rate limited")

	// ErrModelOverloaded is returned on 5xx overload responses.
	ErrModelOverloaded = errors.New("extraction model overloaded")

	// ErrEmptyResponse is returned when the model answers with no choices.
	ErrEmptyResponse = errors.New("empty response from extraction model")

	// ErrBadCursor is returned when a window response claims more chunks
	// remain but carries a missing or non-increasing continuation cursor.
	ErrBadCursor = errors.New("window protocol: continuation cursor missing or not increasing")

	// ErrWindowCap is returned when the orchestrator exceeds its window
	// circuit breaker.
	ErrWindowCap = errors.New("window protocol: maximum window count exceeded")

	// ErrWindowTimeout is returned when one window request exceeds its
	// deadline. The import can be retried from the same cursor.
	ErrWindowTimeout = errors.New("window request timed out, retry from the current cursor")

	// ErrNoPages is returned when a statement PDF has no pages.
	ErrNoPages = errors.New("statement PDF contains no pages")
)
