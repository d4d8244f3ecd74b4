package types

import (
	"context"

	"github.com/xhad/recall/internal/models"
)

// Core interfaces
type DocumentStore interface {
	Add(ctx context.Context, documents []string, ids []string) error
	Get(ctx context.Context) (models.GetResult, error)
	Query(ctx context.Context, queryTexts []string, nResults int) (models.QueryResult, error)
	Close() error
}

type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Generator turns a retrieved context and a question into an answer.
// Mode reports which backend is active, "mock" or "model".
type Generator interface {
	Generate(ctx context.Context, docContext, question string) (string, error)
	Mode() string
}
