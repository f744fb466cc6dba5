package fixer

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrEmptyResponse is returned by a delegate that produced no text.
var ErrEmptyResponse = errors.New("delegate returned an empty response")

// Request is one fix proposal request for a context window.
type Request struct {
	System string
	Prompt string
}

// Delegate proposes a textual fix for a rendered prompt.
type Delegate interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Options configure the remote delegates.
type Options struct {
	OpenAIModel      string
	OpenAIBaseURL    string
	AnthropicModel   string
	AnthropicBaseURL string
	Timeout          time.Duration
	MaxRetries       int
	MaxTokens        int
	Temperature      float64
}

func (o Options) withDefaults() Options {
	if o.OpenAIModel == "" {
		o.OpenAIModel = "gpt-4o"
	}
	if o.AnthropicModel == "" {
		o.AnthropicModel = "claude-3-5-haiku-latest"
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 1024
	}
	return o
}

// KeyKind classifies a fixer key by prefix: "anthropic", "openai", or "" when the
// key is missing or not recognised.
func KeyKind(key string) string {
	key = strings.TrimSpace(key)
	switch {
	case strings.HasPrefix(key, "sk-ant-"):
		return "anthropic"
	case strings.HasPrefix(key, "sk-"):
		return "openai"
	}
	return ""
}

// NewDelegate builds the delegate matching the key, wrapped with retries.
// It returns nil when the key is absent or malformed, which selects the
// deterministic rules for every fix.
func NewDelegate(key string, opts Options) (Delegate, error) {
	opts = opts.withDefaults()
	var (
		d   Delegate
		err error
	)
	switch KeyKind(key) {
	case "anthropic":
		d = newAnthropicDelegate(strings.TrimSpace(key), opts)
	case "openai":
		d, err = newOpenAIDelegate(strings.TrimSpace(key), opts)
		if err != nil {
			return nil, err
		}
	default:
		return nil, nil
	}
	return withRetry(d, opts.MaxRetries, opts.Timeout), nil
}
