package generation

import "errors"

// Common errors returned by the generation package
var (
	// ErrGenerationFailed is returned when text generation fails for any general reason
	ErrGenerationFailed = errors.New("failed to generate text")

	// ErrUpstreamUnavailable is returned when the model endpoint is unreachable or times out
	ErrUpstreamUnavailable = errors.New("generative model endpoint unavailable")

	// ErrInvalidResponse is returned when the model response cannot be parsed or is malformed
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the model blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrInvalidConfig is returned when the generator configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")

	// ErrStreamingUnsupported is returned when a streaming task is dispatched
	// against a provider that only implements request/response generation
	ErrStreamingUnsupported = errors.New("configured provider does not support streaming")
)
