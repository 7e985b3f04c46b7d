package llmservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"faq-rag/internal/apperror"
	"faq-rag/internal/config"
	"faq-rag/internal/retry"
)

// Collaborator is the name upstream failures of this package are reported under.
const Collaborator = "chat_model"

// Client sends single prompts to a chat model.
type Client struct {
	llm         llms.Model
	temperature float64
	policy      retry.Policy
}

// NewClient wraps an existing langchaingo model.
func NewClient(llm llms.Model, temperature float64, policy retry.Policy) *Client {
	return &Client{llm: llm, temperature: temperature, policy: policy}
}

// NewChatModel creates the model configured in cfg. The openai provider talks to any
// OpenAI compatible endpoint, Gemini included.
func NewChatModel(cfg config.LLMConfig, policy retry.Policy) (*Client, error) {
	log.Debug().Str("provider", cfg.Provider).Str("base_url", cfg.BaseURL).Str("model", cfg.Model).Msg("Creating chat model")

	var (
		llm llms.Model
		err error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.APIKey, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	case config.ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err = ollama.New(opts...)
	default:
		return nil, apperror.Wrap(apperror.CodeConfiguration, fmt.Sprintf("unknown llm provider %q", cfg.Provider), nil)
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeConfiguration, "failed to initialize chat model", err)
	}
	return NewClient(llm, cfg.Temperature, policy), nil
}

// Complete sends prompt as a single human message and returns the completion verbatim.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	text, err := retry.Do(ctx, c.policy, Collaborator, func(ctx context.Context) (string, error) {
		text, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, llms.WithTemperature(c.temperature))
		return text, retry.Classify(err)
	})
	if err != nil {
		log.Error().Err(err).Msg("Chat model call failed")
		return "", apperror.Upstream(Collaborator, err)
	}
	return text, nil
}
