package quiz

import (
	"context"

	"github.com/tmc/langchaingo/embeddings"

	"faq-rag/internal/apperror"
	"faq-rag/internal/config"
	"faq-rag/internal/embedding"
)

// Band grades how close a user's answer is to the reference answer.
type Band string

const (
	BandGreat     Band = "great"
	BandPartial   Band = "partial"
	BandDifferent Band = "different"
)

// Feedback is the message shown for a band.
func (b Band) Feedback() string {
	switch b {
	case BandGreat:
		return "Great job! Your answer closely matches the reference answer."
	case BandPartial:
		return "Partially correct. Compare your answer with the reference answer."
	case BandDifferent:
		return "Your answer is quite different from the reference answer."
	}
	return ""
}

// ScorerCollaborator names the similarity scorer in upstream failures.
const ScorerCollaborator = "similarity_scorer"

// Comparator scores answers by the cosine similarity of their embeddings.
type Comparator struct {
	embedder embeddings.Embedder
	great    float64
	partial  float64
}

func NewComparator(embedder embeddings.Embedder, cfg config.QuizConfig) *Comparator {
	return &Comparator{embedder: embedder, great: cfg.GreatThreshold, partial: cfg.PartialThreshold}
}

// Score returns a relative similarity; only its position against the band
// thresholds is meaningful.
func (c *Comparator) Score(ctx context.Context, reference, candidate string) (float64, error) {
	vectors, err := c.embedder.EmbedDocuments(ctx, []string{reference, candidate})
	if err != nil {
		// The embedder's own failure stays in the chain as the cause.
		return 0, apperror.Upstream(ScorerCollaborator, err)
	}
	if len(vectors) != 2 {
		return 0, apperror.Upstream(ScorerCollaborator, nil)
	}
	return embedding.Cosine(vectors[0], vectors[1]), nil
}

// Band maps a score to its band: >= great, >= partial, otherwise different.
func (c *Comparator) Band(score float64) Band {
	switch {
	case score >= c.great:
		return BandGreat
	case score >= c.partial:
		return BandPartial
	default:
		return BandDifferent
	}
}
