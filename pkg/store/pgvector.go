package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
)

type VectorStoreConfig struct {
	ConnString string
	TableName  string
}

// VectorStore keeps documents in a Postgres table with a pgvector column.
type VectorStore struct {
	config   VectorStoreConfig
	pool     *pgxpool.Pool
	embedder types.Embedder
	table    string
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig, embedder types.Embedder) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "documents"
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &VectorStore{
		config:   config,
		pool:     pool,
		embedder: embedder,
		table:    pgx.Identifier{config.TableName}.Sanitize(),
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			seq BIGSERIAL,
			content TEXT NOT NULL,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, vs.table, vs.embedder.Dimension())

	_, err = vs.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		pgx.Identifier{vs.config.TableName + "_embedding_idx"}.Sanitize(), vs.table)

	_, err = vs.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Add upserts documents in a single transaction. A conflicting id keeps
// its seq, so list order does not change.
func (vs *VectorStore) Add(ctx context.Context, documents []string, ids []string) error {
	if err := validateAdd(documents, ids); err != nil {
		return err
	}

	clean := make([]string, len(documents))
	for i, doc := range documents {
		clean[i] = sanitizeUTF8(doc)
	}

	embeddings, err := vs.embedder.CreateEmbedding(ctx, clean)
	if err != nil {
		return fmt.Errorf("failed to create embeddings: %w", err)
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, content, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`,
		vs.table)

	for i, id := range ids {
		_, err = tx.Exec(ctx, stmt, id, clean[i], pgvector.NewVector(embeddings[i]))
		if err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (vs *VectorStore) Get(ctx context.Context) (models.GetResult, error) {
	rows, err := vs.pool.Query(ctx, fmt.Sprintf("SELECT id, content FROM %s ORDER BY seq", vs.table))
	if err != nil {
		return models.GetResult{}, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	result := models.GetResult{IDs: []string{}, Documents: []string{}}
	for rows.Next() {
		var id, content string
		if err := rows.Scan(&id, &content); err != nil {
			return models.GetResult{}, fmt.Errorf("failed to scan row: %w", err)
		}
		result.IDs = append(result.IDs, id)
		result.Documents = append(result.Documents, content)
	}
	if err := rows.Err(); err != nil {
		return models.GetResult{}, fmt.Errorf("failed to list documents: %w", err)
	}

	return result, nil
}

func (vs *VectorStore) Query(ctx context.Context, queryTexts []string, nResults int) (models.QueryResult, error) {
	if nResults <= 0 {
		nResults = 1
	}

	embeddings, err := vs.embedder.CreateEmbedding(ctx, queryTexts)
	if err != nil {
		return models.QueryResult{}, fmt.Errorf("failed to create query embeddings: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT content
		FROM %s
		ORDER BY embedding <=> $1, seq
		LIMIT $2`,
		vs.table)

	result := models.QueryResult{Documents: make([][]string, len(queryTexts))}
	for q, embedding := range embeddings {
		docs, err := vs.nearest(ctx, query, embedding, nResults)
		if err != nil {
			return models.QueryResult{}, err
		}
		result.Documents[q] = docs
	}

	return result, nil
}

func (vs *VectorStore) nearest(ctx context.Context, query string, embedding []float32, limit int) ([]string, error) {
	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := []string{}
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		docs = append(docs, content)
	}
	return docs, rows.Err()
}

func (vs *VectorStore) Close() error {
	if vs.pool != nil {
		vs.pool.Close()
	}
	return nil
}

// sanitizeUTF8 drops invalid bytes, which Postgres rejects in TEXT columns.
func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
