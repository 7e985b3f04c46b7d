package rag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"faq-rag/internal/models"
	"faq-rag/internal/parser"
)

// BuildReport summarizes a finished build.
type BuildReport struct {
	Source    string        `json:"source"`
	Documents int           `json:"documents"`
	Duration  time.Duration `json:"duration"`
}

// Builder creates the index from a FAQ source.
type Builder struct {
	mu       sync.Mutex
	loader   parser.Loader
	embedder embeddings.Embedder
	index    Index
	hooks    []func(BuildReport)
}

func NewBuilder(loader parser.Loader, embedder embeddings.Embedder, index Index) *Builder {
	return &Builder{loader: loader, embedder: embedder, index: index}
}

// OnBuilt registers fn to run after every successful build.
func (b *Builder) OnBuilt(fn func(BuildReport)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = append(b.hooks, fn)
}

// Build loads every row of sourcePath, embeds it and replaces the index. Nothing
// is written unless loading and embedding succeed for every row. Concurrent
// builds run one after another.
func (b *Builder) Build(ctx context.Context, sourcePath string) (BuildReport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	docs, err := b.loader.Load(sourcePath)
	if err != nil {
		log.Error().Err(err).Str("source", sourcePath).Msg("Failed to load FAQ source")
		return BuildReport{}, err
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vectors, err := b.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		log.Error().Err(err).Msg("Failed to embed documents")
		return BuildReport{}, err
	}
	if len(vectors) != len(docs) {
		return BuildReport{}, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	embedded := make([]models.EmbeddedDocument, len(docs))
	for i, d := range docs {
		embedded[i] = models.EmbeddedDocument{Document: d, Embedding: vectors[i]}
	}
	if err := b.index.Rebuild(ctx, embedded); err != nil {
		log.Error().Err(err).Msg("Failed to rebuild index")
		return BuildReport{}, err
	}

	report := BuildReport{Source: sourcePath, Documents: len(docs), Duration: time.Since(start)}
	log.Info().Str("source", sourcePath).Int("documents", report.Documents).Dur("took", report.Duration).Msg("Knowledge base built")
	for _, fn := range b.hooks {
		fn(report)
	}
	return report, nil
}
