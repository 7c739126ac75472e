package generation

import "context"

// Fragment is one element of a streamed generation. Exactly one of Text
// or Err is meaningful; a non-nil Err is always the last fragment sent.
type Fragment struct {
	Text string
	Err  error
}

// Generator defines the request/response surface of a generative model.
// This interface is the boundary between the task pipeline and external
// model services.
type Generator interface {
	// Generate produces the complete text for the prompt, blocking until
	// the model finishes.
	Generate(ctx context.Context, prompt string) (string, error)
}

// StreamGenerator extends Generator with token-level streaming. The
// returned channel yields fragments in generation order and is closed on
// exhaustion; a fragment carrying Err terminates the stream early.
type StreamGenerator interface {
	Generator

	GenerateStream(ctx context.Context, prompt string) (<-chan Fragment, error)
}

// HealthChecker is implemented by adapters that can report endpoint
// availability.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}
