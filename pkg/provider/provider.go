// Package provider defines the completion-provider boundary: the only place
// the pipeline touches model inference. Providers are adapters; the engine
// never depends on a specific model.
package provider

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the provider cannot serve requests at all, as
// opposed to a single failed call.
var ErrUnavailable = errors.New("provider: unavailable")

// Request is one completion request. Context carries the condensed memory
// block the answer should be grounded in; Samples > 1 asks for repeated
// completions so the caller can measure answer agreement.
type Request struct {
	Prompt    string
	Context   string
	MaxTokens int
	Samples   int
}

// Response is the provider's answer. Completions holds every sampled
// completion (including Text) when Samples > 1; otherwise it is empty.
type Response struct {
	Text        string
	Completions []string
	TokensUsed  int
}

// Provider produces completions. Implementations must honor ctx
// cancellation and return an error rather than hang; the engine maps
// provider errors to failed steps, never to aborted chains.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}
