package ai

import "context"

// Backend is the capability a generation provider exposes to the
// orchestrator. Implementations convert the neutral prompt to their wire
// format and classify every failure as an Outcome.
type Backend interface {
	// Generate runs one generation. It never returns an error; failures
	// are Outcome variants.
	Generate(ctx context.Context, prompt *Prompt) Outcome

	// CountTokens estimates the token count of a text using the backend's
	// cheapest local encoder.
	CountTokens(text string) int

	// Name is the endpoint tag used in configuration and statistics.
	Name() string
}
