package quiz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"

	"faq-rag/internal/apperror"
	"faq-rag/internal/config"
	"faq-rag/internal/embedding"
	"faq-rag/internal/retry"
)

var testPolicy = retry.Policy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

func newHashComparator(t *testing.T) *Comparator {
	t.Helper()
	p, err := embedding.NewEmbedder(config.EmbeddingConfig{Provider: config.ProviderHash, Dimension: 256, BatchSize: 8}, testPolicy)
	require.NoError(t, err)
	return NewComparator(p, config.QuizConfig{GreatThreshold: 0.7, PartialThreshold: 0.4})
}

func TestBandBoundaries(t *testing.T) {
	c := NewComparator(nil, config.QuizConfig{GreatThreshold: 0.7, PartialThreshold: 0.4})

	require.Equal(t, BandGreat, c.Band(0.7))
	require.Equal(t, BandGreat, c.Band(0.95))
	require.Equal(t, BandPartial, c.Band(0.6999))
	require.Equal(t, BandPartial, c.Band(0.4))
	require.Equal(t, BandDifferent, c.Band(0.3999))
	require.Equal(t, BandDifferent, c.Band(-0.2))
}

func TestFeedbackMessages(t *testing.T) {
	require.Contains(t, BandGreat.Feedback(), "Great job!")
	require.Contains(t, BandPartial.Feedback(), "Partially correct.")
	require.Contains(t, BandDifferent.Feedback(), "quite different")
	require.Empty(t, Band("").Feedback())
}

func TestScoreIdenticalAnswerIsGreat(t *testing.T) {
	c := newHashComparator(t)
	ref := "Yes, we have a JavaScript course for beginners."

	score, err := c.Score(context.Background(), ref, ref)
	require.NoError(t, err)
	require.GreaterOrEqual(t, score, 0.7)
	require.Equal(t, BandGreat, c.Band(score))
}

func TestScoreOrdersAnswersByOverlap(t *testing.T) {
	c := newHashComparator(t)
	ref := "Yes, we have a JavaScript course for beginners."

	near, err := c.Score(context.Background(), ref, "We have a course for beginners in JavaScript, yes.")
	require.NoError(t, err)
	partial, err := c.Score(context.Background(), ref, "We have a course")
	require.NoError(t, err)
	unrelated, err := c.Score(context.Background(), ref, "No idea")
	require.NoError(t, err)

	require.Equal(t, BandGreat, c.Band(near))
	require.Equal(t, BandPartial, c.Band(partial))
	require.Equal(t, BandDifferent, c.Band(unrelated))
}

func TestScoreReportsScorerFailure(t *testing.T) {
	failing, err := embeddings.NewEmbedder(embeddings.EmbedderClientFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("down")
	}))
	require.NoError(t, err)
	c := NewComparator(failing, config.QuizConfig{GreatThreshold: 0.7, PartialThreshold: 0.4})

	_, err = c.Score(context.Background(), "a", "b")
	require.True(t, apperror.IsCode(err, apperror.CodeUpstream))
	require.Equal(t, ScorerCollaborator, apperror.CollaboratorOf(err))
}

func TestScoreNamesScorerWhenProviderFails(t *testing.T) {
	failing, err := embeddings.NewEmbedder(embeddings.EmbedderClientFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("connection refused")
	}))
	require.NoError(t, err)
	provider := embedding.NewProvider(failing, "ollama:nomic-embed-text", testPolicy)
	c := NewComparator(provider, config.QuizConfig{GreatThreshold: 0.7, PartialThreshold: 0.4})

	_, err = c.Score(context.Background(), "a", "b")
	require.True(t, apperror.IsCode(err, apperror.CodeUpstream))
	require.Equal(t, ScorerCollaborator, apperror.CollaboratorOf(err))
	require.ErrorContains(t, err, embedding.Collaborator)
	require.ErrorContains(t, err, "connection refused")
}
