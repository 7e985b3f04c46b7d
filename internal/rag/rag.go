package rag

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/prompts"

	"faq-rag/internal/apperror"
	"faq-rag/internal/config"
	"faq-rag/internal/models"
)

// Index is the persisted vector index. The builder replaces it wholesale; the
// pipeline and the quiz only read it.
type Index interface {
	Rebuild(ctx context.Context, docs []models.EmbeddedDocument) error
	Search(ctx context.Context, vector []float32, topK int, minScore float32) ([]models.QueryResult, error)
	Documents(ctx context.Context) ([]models.Document, error)
	Count(ctx context.Context) (int, error)
	Load(ctx context.Context) error
}

// ChatModel completes a single prompt.
type ChatModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// RAG answers questions from the FAQ index.
type RAG struct {
	embedder  embeddings.Embedder
	index     Index
	chat      ChatModel
	topK      int
	threshold float32
	prompt    prompts.PromptTemplate
}

func NewRAG(embedder embeddings.Embedder, index Index, chat ChatModel, cfg config.IndexConfig) *RAG {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 4
	}
	return &RAG{
		embedder:  embedder,
		index:     index,
		chat:      chat,
		topK:      topK,
		threshold: cfg.ScoreThreshold,
		prompt:    NewAnswerPrompt(),
	}
}

// NewAnswerPrompt returns the fixed answer template with {context} and {question} slots.
func NewAnswerPrompt() prompts.PromptTemplate {
	return prompts.PromptTemplate{
		Template:       models.AnswerPromptTemplate,
		InputVariables: []string{"context", "question"},
		TemplateFormat: prompts.TemplateFormatFString,
	}
}

// Retrieve returns the stored entries most similar to question that clear the
// relevance threshold. An empty result is not an error.
func (r *RAG) Retrieve(ctx context.Context, question string) ([]models.QueryResult, error) {
	vector, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}
	return r.index.Search(ctx, vector, r.topK, r.threshold)
}

// Query answers question using only the retrieved FAQ entries as context.
func (r *RAG) Query(ctx context.Context, question string) (models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.Answer{}, apperror.Wrap(apperror.CodeInvalidInput, "question cannot be empty", nil)
	}

	sources, err := r.Retrieve(ctx, question)
	if err != nil {
		return models.Answer{}, err
	}
	if len(sources) == 0 {
		log.Info().Str("question", question).Msg("No entry cleared the relevance threshold, answering with empty context")
	}

	prompt, err := r.prompt.Format(map[string]any{
		"context":  JoinContext(sources),
		"question": question,
	})
	if err != nil {
		return models.Answer{}, err
	}

	text, err := r.chat.Complete(ctx, prompt)
	if err != nil {
		return models.Answer{}, err
	}

	log.Debug().Str("question", question).Int("sources", len(sources)).Msg("Answered question")
	return models.Answer{Question: question, Text: text, Sources: sources}, nil
}

// JoinContext concatenates the retrieved documents' text.
func JoinContext(results []models.QueryResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Content)
	}
	return strings.Join(parts, models.ContextSeparator)
}
