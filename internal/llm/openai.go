package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the completion backend. BaseURL is optional and
// supports OpenAI-compatible providers.
type OpenAIConfig struct {
	APIKey   string
	Model    string
	BaseURL  string
	MaxChars int
	Timeout  time.Duration
}

// OpenAI implements Analyzer against the OpenAI chat-completions API.
type OpenAI struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAI constructs the client; the API key is required.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 12000
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
}

// Analyze sends the sampled page content through the fixed CRO prompt.
func (o *OpenAI) Analyze(ctx context.Context, in Input) (*Result, error) {
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPrompt(in, o.cfg.MaxChars),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	analysis := resp.Choices[0].Message.Content
	return &Result{
		Analysis:   analysis,
		WordCount:  CountWords(in.Text),
		TokenCount: resp.Usage.TotalTokens,
	}, nil
}
