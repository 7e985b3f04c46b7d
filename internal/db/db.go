package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"faq-rag/internal/apperror"
	"faq-rag/internal/config"
	"faq-rag/internal/models"
)

// Document is one indexed FAQ row.
type Document struct {
	bun.BaseModel `bun:"table:faq_documents,alias:d"`

	ID             string            `bun:"id,pk"`
	Row            int               `bun:"row_index,notnull"`
	Content        string            `bun:"content,notnull"`
	Metadata       map[string]string `bun:"metadata,type:jsonb"`
	EmbeddingModel string            `bun:"embedding_model,notnull"`
	Embedding      pgvector.Vector   `bun:"embedding,type:vector"`
	Distance       float64           `bun:"distance,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(cfg config.PGVectorConfig) *sql.DB {
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
}

// Store keeps the FAQ index in a postgres table with a pgvector column.
type Store struct {
	db             *bun.DB
	table          string
	embeddingModel string
}

func NewStore(db *bun.DB, table, embeddingModel string) *Store {
	return &Store{db: db, table: table, embeddingModel: embeddingModel}
}

func (s *Store) tableExpr() (string, bun.Ident) {
	return "? AS d", bun.Ident(s.table)
}

// Rebuild drops and recreates the table inside one transaction, so readers see
// either the old index or the new one.
func (s *Store) Rebuild(ctx context.Context, docs []models.EmbeddedDocument) error {
	if len(docs) == 0 {
		return errors.New("no documents to index")
	}
	dim := len(docs[0].Embedding)

	rows := make([]Document, 0, len(docs))
	for _, d := range docs {
		if len(d.Embedding) != dim {
			return fmt.Errorf("document %s has %d dimensions, expected %d", d.ID, len(d.Embedding), dim)
		}
		rows = append(rows, Document{
			ID:             d.ID,
			Row:            d.Entry.Row,
			Content:        d.Content,
			Metadata:       d.Metadata(),
			EmbeddingModel: s.embeddingModel,
			Embedding:      pgvector.NewVector(d.Embedding),
		})
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
			return fmt.Errorf("failed to enable pgvector: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS ?", bun.Ident(s.table)); err != nil {
			return fmt.Errorf("failed to drop documents: %w", err)
		}
		if _, err := tx.ExecContext(ctx, createTableSQL(dim), bun.Ident(s.table)); err != nil {
			return fmt.Errorf("failed to create documents table: %w", err)
		}
		if _, err := tx.NewInsert().Model(&rows).ModelTableExpr("?", bun.Ident(s.table)).Exec(ctx); err != nil {
			return fmt.Errorf("failed to store documents: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Info().Str("table", s.table).Int("documents", len(rows)).Msg("Rebuilt index")
	return nil
}

func createTableSQL(dim int) string {
	return fmt.Sprintf(`CREATE TABLE ? (
	id TEXT PRIMARY KEY,
	row_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	metadata JSONB,
	embedding_model TEXT NOT NULL,
	embedding vector(%d)
)`, dim)
}

func (s *Store) ensureTable(ctx context.Context) error {
	var name sql.NullString
	if err := s.db.NewRaw("SELECT to_regclass(?)", s.table).Scan(ctx, &name); err != nil {
		return fmt.Errorf("failed to look up documents table: %w", err)
	}
	if !name.Valid {
		return apperror.Wrap(apperror.CodeIndexMissing, "knowledge base has not been built", nil)
	}

	var model string
	err := s.db.NewRaw("SELECT embedding_model FROM ? LIMIT 1", bun.Ident(s.table)).Scan(ctx, &model)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read embedding model: %w", err)
	}
	if model != "" && model != s.embeddingModel {
		return apperror.Wrap(apperror.CodeConfiguration,
			fmt.Sprintf("index was built with embedding model %q but %q is configured; rebuild the knowledge base", model, s.embeddingModel), nil)
	}
	return nil
}

func (s *Store) searchQuery(dest *[]Document, vector []float32, topK int, minScore float32) *bun.SelectQuery {
	vec := pgvector.NewVector(vector)
	return s.db.NewSelect().
		Model(dest).
		ModelTableExpr(s.tableExpr()).
		ColumnExpr("d.id, d.row_index, d.content, d.metadata").
		ColumnExpr("d.embedding <=> ? AS distance", vec).
		Where("1 - (d.embedding <=> ?) >= ?", vec, minScore).
		OrderExpr("d.embedding <=> ?", vec).
		Limit(topK)
}

// Search ranks by cosine distance and reports similarity as 1 - distance.
func (s *Store) Search(ctx context.Context, vector []float32, topK int, minScore float32) ([]models.QueryResult, error) {
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	var rows []Document
	if err := s.searchQuery(&rows, vector, topK, minScore).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}

	out := make([]models.QueryResult, 0, len(rows))
	for _, r := range rows {
		doc, err := models.DocumentFromMetadata(r.ID, r.Content, r.Metadata)
		if err != nil {
			return nil, err
		}
		out = append(out, models.QueryResult{Document: doc, Score: float32(1 - r.Distance)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// Documents returns every stored document in row order.
func (s *Store) Documents(ctx context.Context) ([]models.Document, error) {
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}

	var rows []Document
	err := s.db.NewSelect().
		Model(&rows).
		ModelTableExpr(s.tableExpr()).
		ColumnExpr("d.id, d.row_index, d.content, d.metadata").
		OrderExpr("d.row_index").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	docs := make([]models.Document, 0, len(rows))
	for _, r := range rows {
		doc, err := models.DocumentFromMetadata(r.ID, r.Content, r.Metadata)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.ensureTable(ctx); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.NewRaw("SELECT count(*) FROM ?", bun.Ident(s.table)).Scan(ctx, &n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// Load verifies the table exists and matches the configured embedding model.
func (s *Store) Load(ctx context.Context) error {
	return s.ensureTable(ctx)
}

