// Package openai provides an oracle backed by the OpenAI Chat Completions
// API. The snapshot is rendered into the shared routing prompt and the
// model's JSON reply is parsed into a routing decision.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/hupe1980/defimesh/oracle"
)

// Options configures the OpenAI oracle adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Oracle asks an OpenAI chat model for routing decisions.
type Oracle struct {
	client *openai.Client
	opts   Options
}

var _ oracle.Oracle = (*Oracle)(nil)

// New creates a new OpenAI oracle using the official client. The API key is
// read from the environment by the SDK.
func New(optFns ...func(o *Options)) *Oracle {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a new OpenAI oracle from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Oracle {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.2,
		MaxCompletionTokens: 512,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Oracle{client: client, opts: opts}
}

// Decide implements oracle.Oracle.
func (o *Oracle) Decide(ctx context.Context, snap oracle.Snapshot) (*oracle.Decision, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(oracle.SystemPrompt),
			openai.UserMessage(oracle.BuildPrompt(snap)),
		},
		Model:               o.opts.Model,
		Temperature:         openai.Float(o.opts.Temperature),
		MaxCompletionTokens: openai.Int(o.opts.MaxCompletionTokens),
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	return oracle.ParseDecision(resp.Choices[0].Message.Content)
}
