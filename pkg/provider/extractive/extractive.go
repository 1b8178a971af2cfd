// Package extractive implements a deterministic completion provider that
// synthesizes answers directly from the condensed memory context. It calls
// no external model, which makes it the default for tests, offline runs, and
// the degraded path when a real provider fails.
package extractive

import (
	"context"
	"strings"

	"github.com/mindloom/mindloom/pkg/provider"
)

const (
	// snippetLimit bounds how many context entries feed the answer.
	snippetLimit = 3
	// snippetMaxChars truncates each entry to a fixed preview length.
	snippetMaxChars = 200
)

// Provider is the extractive synthesizer.
type Provider struct{}

// New creates an extractive provider.
func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string { return "extractive" }

// Complete builds an answer from the leading context entries. The output is
// a pure function of the request, so repeated samples always agree and the
// measured answer entropy is zero.
func (p *Provider) Complete(ctx context.Context, req provider.Request) (provider.Response, error) {
	if err := ctx.Err(); err != nil {
		return provider.Response{}, err
	}

	answer := synthesize(req)
	resp := provider.Response{
		Text:       answer,
		TokensUsed: estimateTokens(req.Prompt) + estimateTokens(req.Context) + estimateTokens(answer),
	}
	if req.Samples > 1 {
		resp.Completions = make([]string, req.Samples)
		for i := range resp.Completions {
			resp.Completions[i] = answer
		}
	}
	return resp, nil
}

func synthesize(req provider.Request) string {
	snippets := extractSnippets(req.Context)
	if len(snippets) == 0 {
		return "No stored knowledge matches this question: " + strings.TrimSpace(req.Prompt)
	}
	return strings.Join(snippets, " ")
}

// extractSnippets pulls the content out of annotated context lines of the
// form "[score=0.83] text", skipping blanks and keeping input order.
func extractSnippets(context string) []string {
	var snippets []string
	for _, line := range strings.Split(context, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") {
			if end := strings.Index(line, "] "); end >= 0 {
				line = line[end+2:]
			}
		}
		if len(line) > snippetMaxChars {
			line = line[:snippetMaxChars]
		}
		snippets = append(snippets, line)
		if len(snippets) == snippetLimit {
			break
		}
	}
	return snippets
}

func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}
