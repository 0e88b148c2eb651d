package ollama

import "errors"

// Sentinel errors for client operations. Callers should use errors.Is.
var (
	// ErrStatus indicates a non-2xx HTTP status from the server.
	ErrStatus = errors.New("ollama: unexpected HTTP status")
	// ErrMissingBody indicates a streamed call returned no readable body.
	ErrMissingBody = errors.New("ollama: response has no body")
	// ErrEmptyResponse indicates a structured call produced no response text.
	// Distinct from extraction failure, which always yields a fallback value.
	ErrEmptyResponse = errors.New("ollama: structured response contains no content")
)
