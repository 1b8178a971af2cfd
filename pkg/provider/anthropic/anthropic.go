// Package anthropic adapts the Claude Messages API to the pipeline's
// completion-provider boundary.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mindloom/mindloom/pkg/provider"
)

// DefaultModel is used when the config does not name one.
const DefaultModel = "claude-sonnet-4-20250514"

const defaultMaxTokens = 1024

const systemPrompt = "Answer using only the provided context. " +
	"Quote the context verbatim where possible and say so when the context does not contain the answer."

// Provider calls the Claude Messages API.
type Provider struct {
	client anthropic.Client
	model  string
}

// New creates an Anthropic-backed provider. The API key comes from the
// environment when empty, per SDK convention.
func New(apiKey, model string) *Provider {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = DefaultModel
	}
	return &Provider{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

func (p *Provider) Name() string { return "anthropic" }

// Complete sends one Messages request per sample. Samples share a prompt but
// are independent calls, so disagreement between them is real model variance
// rather than an artifact of batching.
func (p *Provider) Complete(ctx context.Context, req provider.Request) (provider.Response, error) {
	samples := req.Samples
	if samples < 1 {
		samples = 1
	}

	var resp provider.Response
	for i := 0; i < samples; i++ {
		text, tokens, err := p.complete(ctx, req)
		if err != nil {
			return provider.Response{}, err
		}
		if i == 0 {
			resp.Text = text
		}
		if samples > 1 {
			resp.Completions = append(resp.Completions, text)
		}
		resp.TokensUsed += tokens
	}
	return resp, nil
}

func (p *Provider) complete(ctx context.Context, req provider.Request) (string, int, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	var user strings.Builder
	if req.Context != "" {
		user.WriteString("Context:\n")
		user.WriteString(req.Context)
		user.WriteString("\n\n")
	}
	user.WriteString("Question: ")
	user.WriteString(req.Prompt)

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user.String())),
		},
	})
	if err != nil {
		return "", 0, fmt.Errorf("anthropic: messages call: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	tokens := int(msg.Usage.InputTokens + msg.Usage.OutputTokens)
	return text.String(), tokens, nil
}
