package fixer

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicDelegate struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	temp      float64
}

func newAnthropicDelegate(key string, opts Options) *anthropicDelegate {
	clientOpts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(0), // retries are handled by withRetry
	}
	if opts.AnthropicBaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.AnthropicBaseURL))
	}
	return &anthropicDelegate{
		client:    anthropic.NewClient(clientOpts...),
		model:     anthropic.Model(opts.AnthropicModel),
		maxTokens: int64(opts.MaxTokens),
		temp:      opts.Temperature,
	}
}

func (d *anthropicDelegate) Name() string { return "anthropic/" + string(d.model) }

func (d *anthropicDelegate) Complete(ctx context.Context, req Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       d.model,
		MaxTokens:   d.maxTokens,
		Temperature: anthropic.Float(d.temp),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	message, err := d.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}
	if len(message.Content) == 0 {
		return "", ErrEmptyResponse
	}
	content := message.Content[0]
	if content.Type != "text" {
		return "", fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type)
	}
	return content.Text, nil
}
