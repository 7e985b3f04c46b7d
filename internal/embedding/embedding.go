package embedding

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"faq-rag/internal/apperror"
	"faq-rag/internal/config"
	"faq-rag/internal/retry"
)

// Collaborator is the name upstream failures of this package are reported under.
const Collaborator = "embedding_model"

// Provider embeds texts through a langchaingo embedder and retries transient failures.
// The same Provider must be used to build an index and to query it.
type Provider struct {
	embedder embeddings.Embedder
	model    string
	policy   retry.Policy
}

var _ embeddings.Embedder = (*Provider)(nil)

// NewProvider wraps an existing embedder. model identifies the embedding space.
func NewProvider(embedder embeddings.Embedder, model string, policy retry.Policy) *Provider {
	return &Provider{embedder: embedder, model: model, policy: policy}
}

// NewEmbedder creates the provider configured in cfg.
func NewEmbedder(cfg config.EmbeddingConfig, policy retry.Policy) (*Provider, error) {
	log.Debug().Interface("config", map[string]string{
		"provider": cfg.Provider,
		"base_url": cfg.BaseURL,
		"model":    cfg.Model,
	}).Msg("Creating embedder")

	var (
		client embeddings.EmbedderClient
		model  string
		err    error
	)
	switch cfg.Provider {
	case config.ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		client, err = ollama.New(opts...)
		model = cfg.Provider + ":" + cfg.Model
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.APIKey, "Bearer ")),
			openai.WithEmbeddingModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		client, err = openai.New(opts...)
		model = cfg.Provider + ":" + cfg.Model
	case config.ProviderHash:
		hash := NewHashEmbedder(cfg.Dimension)
		client = hash
		model = cfg.Provider + ":" + strconv.Itoa(hash.Dimension())
	default:
		return nil, apperror.Wrap(apperror.CodeConfiguration, fmt.Sprintf("unknown embedding provider %q", cfg.Provider), nil)
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeConfiguration, "failed to initialize embedding client", err)
	}

	opts := []embeddings.Option{}
	if cfg.BatchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(cfg.BatchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeConfiguration, "failed to create embedder", err)
	}
	return NewProvider(embedder, model, policy), nil
}

// Model identifies the embedding space, e.g. "ollama:nomic-embed-text".
func (p *Provider) Model() string {
	return p.model
}

func (p *Provider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := retry.Do(ctx, p.policy, Collaborator, func(ctx context.Context) ([][]float32, error) {
		vectors, err := p.embedder.EmbedDocuments(ctx, texts)
		return vectors, retry.Classify(err)
	})
	if err != nil {
		return nil, apperror.Upstream(Collaborator, err)
	}
	if len(vectors) != len(texts) {
		return nil, apperror.Upstream(Collaborator, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors)))
	}
	return vectors, nil
}

func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := retry.Do(ctx, p.policy, Collaborator, func(ctx context.Context) ([]float32, error) {
		vector, err := p.embedder.EmbedQuery(ctx, text)
		return vector, retry.Classify(err)
	})
	if err != nil {
		return nil, apperror.Upstream(Collaborator, err)
	}
	return vector, nil
}
