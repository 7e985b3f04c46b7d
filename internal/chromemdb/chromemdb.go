package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"faq-rag/internal/apperror"
	"faq-rag/internal/config"
	"faq-rag/internal/models"
)

const embeddingModelKey = "embedding_model"

// VectorDBManager keeps the FAQ index as a chromem-go collection that is persisted
// as a single file. Searches read the in-memory collection; a rebuild writes a new
// file next to the old one and renames it into place before swapping collections.
type VectorDBManager struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection

	collectionName string
	filePath       string
	compress       bool
	encryptionKey  string
	embeddingModel string
	embed          chromem.EmbeddingFunc

	// stamp identifies the file the in-memory collection came from.
	stamp fileStamp
}

type fileStamp struct {
	modTime time.Time
	size    int64
}

func stampOf(info fs.FileInfo) fileStamp {
	return fileStamp{modTime: info.ModTime(), size: info.Size()}
}

func (s fileStamp) same(other fileStamp) bool {
	return s.size == other.size && s.modTime.Equal(other.modTime)
}

// NewVectorDBManager creates a manager for the index described by cfg. Nothing is
// read from disk until the first search or an explicit Load.
// embeddingModel identifies the embedding space the index must be built with; embed
// is used by chromem-go only when it has to embed text itself.
func NewVectorDBManager(cfg config.IndexConfig, embeddingModel string, embed chromem.EmbeddingFunc) *VectorDBManager {
	return &VectorDBManager{
		collectionName: cfg.Collection,
		filePath:       cfg.IndexFile(),
		compress:       cfg.Compress,
		encryptionKey:  cfg.EncryptionKey,
		embeddingModel: embeddingModel,
		embed:          embed,
	}
}

// FilePath is where the index is persisted.
func (m *VectorDBManager) FilePath() string {
	return m.filePath
}

// Load reads the persisted index, replacing whatever is held in memory.
func (m *VectorDBManager) Load(ctx context.Context) error {
	info, err := os.Stat(m.filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperror.Wrap(apperror.CodeIndexMissing, "knowledge base has not been built", err)
		}
		return fmt.Errorf("failed to stat index file: %w", err)
	}

	db := chromem.NewDB()
	if err := db.ImportFromFile(m.filePath, m.encryptionKey, m.collectionName); err != nil {
		return fmt.Errorf("failed to import index: %w", err)
	}
	c := db.GetCollection(m.collectionName, m.embed)
	if c == nil {
		return apperror.Wrap(apperror.CodeIndexMissing, fmt.Sprintf("index file has no collection %q", m.collectionName), nil)
	}
	if err := m.checkEmbeddingModel(ctx, c); err != nil {
		return err
	}

	m.mu.Lock()
	m.db = db
	m.collection = c
	m.stamp = stampOf(info)
	m.mu.Unlock()

	log.Info().Str("file", m.filePath).Int("documents", c.Count()).Msg("Loaded index")
	return nil
}

// Reload loads the index file unless it is the one already held in memory,
// such as the file this manager just wrote in Rebuild. It reports whether the
// file was read.
func (m *VectorDBManager) Reload(ctx context.Context) (bool, error) {
	info, err := os.Stat(m.filePath)
	if err == nil {
		m.mu.RLock()
		unchanged := m.collection != nil && m.stamp.same(stampOf(info))
		m.mu.RUnlock()
		if unchanged {
			log.Debug().Str("file", m.filePath).Msg("Index file unchanged, skipping reload")
			return false, nil
		}
	}
	if err := m.Load(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (m *VectorDBManager) checkEmbeddingModel(ctx context.Context, c *chromem.Collection) error {
	if c.Count() == 0 {
		return nil
	}
	doc, err := c.GetByID(ctx, models.DocumentID(0))
	if err != nil {
		return fmt.Errorf("failed to read first document: %w", err)
	}
	if got := doc.Metadata[embeddingModelKey]; got != m.embeddingModel {
		return apperror.Wrap(apperror.CodeConfiguration,
			fmt.Sprintf("index was built with embedding model %q but %q is configured; rebuild the knowledge base", got, m.embeddingModel), nil)
	}
	return nil
}

// Rebuild replaces the whole index with docs. On any error the previous index,
// on disk and in memory, is left untouched.
func (m *VectorDBManager) Rebuild(ctx context.Context, docs []models.EmbeddedDocument) error {
	if len(docs) == 0 {
		return errors.New("no documents to index")
	}

	db := chromem.NewDB()
	c, err := db.CreateCollection(m.collectionName, map[string]string{embeddingModelKey: m.embeddingModel}, m.embed)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	chromemDocs := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		meta := d.Metadata()
		meta[embeddingModelKey] = m.embeddingModel
		chromemDocs = append(chromemDocs, chromem.Document{
			ID:        d.ID,
			Content:   d.Content,
			Metadata:  meta,
			Embedding: d.Embedding,
		})
	}
	if err := c.AddDocuments(ctx, chromemDocs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create index folder: %w", err)
	}
	tmp := m.filePath + ".tmp"
	if err := db.ExportToFile(tmp, m.compress, m.encryptionKey, m.collectionName); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to export index: %w", err)
	}
	if err := os.Rename(tmp, m.filePath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace index file: %w", err)
	}
	info, err := os.Stat(m.filePath)
	if err != nil {
		return fmt.Errorf("failed to stat index file: %w", err)
	}

	m.mu.Lock()
	m.db = db
	m.collection = c
	m.stamp = stampOf(info)
	m.mu.Unlock()

	log.Info().Str("file", m.filePath).Int("documents", len(docs)).Msg("Rebuilt index")
	return nil
}

func (m *VectorDBManager) current(ctx context.Context) (*chromem.Collection, error) {
	m.mu.RLock()
	c := m.collection
	m.mu.RUnlock()
	if c != nil {
		return c, nil
	}
	if err := m.Load(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collection, nil
}

// Search returns up to topK documents whose cosine similarity to vector is at least
// minScore, most similar first.
func (m *VectorDBManager) Search(ctx context.Context, vector []float32, topK int, minScore float32) ([]models.QueryResult, error) {
	c, err := m.current(ctx)
	if err != nil {
		return nil, err
	}

	n := min(topK, c.Count())
	if n <= 0 {
		return nil, nil
	}
	results, err := c.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	out := make([]models.QueryResult, 0, len(results))
	for _, r := range results {
		if r.Similarity < minScore {
			continue
		}
		doc, err := models.DocumentFromMetadata(r.ID, r.Content, r.Metadata)
		if err != nil {
			return nil, err
		}
		out = append(out, models.QueryResult{Document: doc, Score: r.Similarity})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// Documents returns every stored document in row order.
func (m *VectorDBManager) Documents(ctx context.Context) ([]models.Document, error) {
	c, err := m.current(ctx)
	if err != nil {
		return nil, err
	}

	count := c.Count()
	docs := make([]models.Document, 0, count)
	for i := 0; i < count; i++ {
		stored, err := c.GetByID(ctx, models.DocumentID(i))
		if err != nil {
			return nil, fmt.Errorf("failed to read document %d: %w", i, err)
		}
		doc, err := models.DocumentFromMetadata(stored.ID, stored.Content, stored.Metadata)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Count returns the number of indexed documents.
func (m *VectorDBManager) Count(ctx context.Context) (int, error) {
	c, err := m.current(ctx)
	if err != nil {
		return 0, err
	}
	return c.Count(), nil
}
