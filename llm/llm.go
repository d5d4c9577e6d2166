// Package llm defines the contract the pipeline expects from a language
// model backend. Concrete providers live under contrib/provider.
package llm

import (
	"context"

	"github.com/AiQura/ama-app/message"
)

// Client is implemented by every chat model backend. A single Generate shape
// serves all four pipeline call patterns: free-text completion (query
// expansion, extraction), binary classification (grading), structured answer
// generation, and reflection critique.
type Client interface {
	// Generate produces one assistant reply for the given conversation.
	Generate(ctx context.Context, messages []*message.Message) (*message.Message, error)

	// SetTemperature updates the temperature setting for generation
	SetTemperature(temp float64)

	// SetMaxTokens updates the maximum tokens limit for generation
	SetMaxTokens(max int64)

	// SetModel updates the model to use for generation
	SetModel(model string)
}
