package chromemdb

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"faq-rag/internal/apperror"
	"faq-rag/internal/config"
	"faq-rag/internal/models"
)

func testConfig(t *testing.T) config.IndexConfig {
	t.Helper()
	return config.IndexConfig{Path: t.TempDir(), Collection: "faq_collection"}
}

func embedded(row int, prompt, response string, vector []float32) models.EmbeddedDocument {
	doc := models.NewDocument(models.FAQEntry{
		Row:      row,
		Prompt:   prompt,
		Response: response,
		Columns:  []string{"prompt", "response"},
	})
	return models.EmbeddedDocument{Document: doc, Embedding: vector}
}

func sampleDocs() []models.EmbeddedDocument {
	return []models.EmbeddedDocument{
		embedded(0, "Do you teach javascript?", "Yes", []float32{1, 0, 0}),
		embedded(1, "Is there a refund policy?", "7 days", []float32{0, 1, 0}),
		embedded(2, "Do you give certificates?", "Yes", []float32{0.6, 0.8, 0}),
	}
}

func TestRebuildSearchAndDocuments(t *testing.T) {
	ctx := context.Background()
	m := NewVectorDBManager(testConfig(t), "hash:3", nil)
	require.NoError(t, m.Rebuild(ctx, sampleDocs()))

	results, err := m.Search(ctx, []float32{1, 0, 0}, 4, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "row-0", results[0].ID)
	require.InDelta(t, 1.0, results[0].Score, 1e-5)
	require.Equal(t, "row-2", results[1].ID)
	require.InDelta(t, 0.6, results[1].Score, 1e-5)
	require.Equal(t, "Do you teach javascript?", results[0].Entry.Prompt)
	require.Equal(t, "prompt: Do you teach javascript?\nresponse: Yes", results[0].Content)

	docs, err := m.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	for i, d := range docs {
		require.Equal(t, models.DocumentID(i), d.ID)
	}

	count, err := m.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestSearchThresholdExcludesEverything(t *testing.T) {
	ctx := context.Background()
	m := NewVectorDBManager(testConfig(t), "hash:3", nil)
	require.NoError(t, m.Rebuild(ctx, sampleDocs()))

	results, err := m.Search(ctx, []float32{0, 0, 1}, 4, 0.7)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestLoadFromFileInFreshManager(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Compress = true
	cfg.EncryptionKey = "0123456789abcdef0123456789abcdef"
	require.NoError(t, NewVectorDBManager(cfg, "hash:3", nil).Rebuild(ctx, sampleDocs()))

	_, err := os.Stat(cfg.IndexFile() + ".tmp")
	require.True(t, os.IsNotExist(err))

	reopened := NewVectorDBManager(cfg, "hash:3", nil)
	results, err := reopened.Search(ctx, []float32{0, 1, 0}, 1, 0.7)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "Is there a refund policy?", results[0].Entry.Prompt)
}

func TestMissingIndex(t *testing.T) {
	m := NewVectorDBManager(testConfig(t), "hash:3", nil)

	_, err := m.Search(context.Background(), []float32{1, 0, 0}, 4, 0.7)
	require.True(t, apperror.IsCode(err, apperror.CodeIndexMissing))

	_, err = m.Documents(context.Background())
	require.True(t, apperror.IsCode(err, apperror.CodeIndexMissing))
}

func TestEmbeddingModelMismatch(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	require.NoError(t, NewVectorDBManager(cfg, "ollama:nomic-embed-text", nil).Rebuild(ctx, sampleDocs()))

	err := NewVectorDBManager(cfg, "openai:text-embedding-3-small", nil).Load(ctx)
	require.True(t, apperror.IsCode(err, apperror.CodeConfiguration))
}

func TestRebuildReplacesPreviousIndex(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	m := NewVectorDBManager(cfg, "hash:3", nil)
	require.NoError(t, m.Rebuild(ctx, sampleDocs()))
	require.NoError(t, m.Rebuild(ctx, sampleDocs()[:1]))

	count, err := m.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	reopened := NewVectorDBManager(cfg, "hash:3", nil)
	count, err = reopened.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestFailedRebuildKeepsPreviousIndex(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	m := NewVectorDBManager(cfg, "hash:3", nil)
	require.NoError(t, m.Rebuild(ctx, sampleDocs()))
	before, err := os.ReadFile(cfg.IndexFile())
	require.NoError(t, err)

	require.Error(t, m.Rebuild(ctx, nil))

	after, err := os.ReadFile(cfg.IndexFile())
	require.NoError(t, err)
	require.Equal(t, before, after)

	count, err := m.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestReloadSkipsOwnExport(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	m := NewVectorDBManager(cfg, "hash:3", nil)
	require.Equal(t, cfg.IndexFile(), m.FilePath())
	require.NoError(t, m.Rebuild(ctx, sampleDocs()))

	read, err := m.Reload(ctx)
	require.NoError(t, err)
	require.False(t, read)

	other := NewVectorDBManager(cfg, "hash:3", nil)
	require.NoError(t, other.Rebuild(ctx, sampleDocs()[:2]))

	read, err = m.Reload(ctx)
	require.NoError(t, err)
	require.True(t, read)
	count, err := m.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	read, err = m.Reload(ctx)
	require.NoError(t, err)
	require.False(t, read)
}

func TestReloadMissingIndex(t *testing.T) {
	m := NewVectorDBManager(testConfig(t), "hash:3", nil)
	read, err := m.Reload(context.Background())
	require.False(t, read)
	require.True(t, apperror.IsCode(err, apperror.CodeIndexMissing))
}
