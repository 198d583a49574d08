package service

import "context"

// Embedder produces embedding vectors for text.
type Embedder interface {
	// GenerateEmbedding embeds a single text.
	GenerateEmbedding(ctx context.Context, text string) ([]float64, error)

	// GenerateEmbeddings embeds a batch of texts, preserving order.
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float64, error)
}

// TextGenerator produces completions.
type TextGenerator interface {
	// GenerateText completes userPrompt under systemPrompt.
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// TextGeneratorSource yields the generator matching the current
// suggestion model selection. Sources re-resolve on every call so a
// runtime model switch takes effect immediately.
type TextGeneratorSource interface {
	// SuggestionGenerator returns the current suggestion generator, or
	// an error when the selected provider is not configured.
	SuggestionGenerator(ctx context.Context) (TextGenerator, error)

	// SuggestionAvailable reports whether a suggestion generator can be
	// resolved right now.
	SuggestionAvailable(ctx context.Context) bool
}

// ConnectionChecker verifies a provider endpoint is reachable and
// credentialed.
type ConnectionChecker interface {
	CheckConnection(ctx context.Context) error
}

// FeedbackProcessor folds user feedback into subsequent generations.
type FeedbackProcessor interface {
	// ProcessFeedback records feedback on the most recent suggestion of
	// the session.
	ProcessFeedback(ctx context.Context, sessionID, feedback string) error
}
