package fixer

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

type openAIDelegate struct {
	llm         *openai.LLM
	model       string
	maxTokens   int
	temperature float64
}

func newOpenAIDelegate(key string, opts Options) (*openAIDelegate, error) {
	clientOpts := []openai.Option{
		openai.WithToken(key),
		openai.WithModel(opts.OpenAIModel),
	}
	if opts.OpenAIBaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(opts.OpenAIBaseURL))
	}
	llm, err := openai.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return &openAIDelegate{
		llm:         llm,
		model:       opts.OpenAIModel,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}, nil
}

func (d *openAIDelegate) Name() string { return "openai/" + d.model }

func (d *openAIDelegate) Complete(ctx context.Context, req Request) (string, error) {
	var msgs []llms.MessageContent
	if req.System != "" {
		msgs = append(msgs, llms.TextParts(schema.ChatMessageTypeSystem, req.System))
	}
	msgs = append(msgs, llms.TextParts(schema.ChatMessageTypeHuman, req.Prompt))

	resp, err := d.llm.GenerateContent(ctx, msgs,
		llms.WithTemperature(d.temperature),
		llms.WithMaxTokens(d.maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}
