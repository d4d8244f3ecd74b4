package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/xhad/recall/internal/types"
)

var (
	ErrLengthMismatch = errors.New("documents and ids length mismatch")
	ErrEmptyID        = errors.New("document id must not be empty")
	ErrUnknownBackend = errors.New("unknown store backend")
)

type Config struct {
	Backend    string // "badger", "pgvector" or "memory"
	Path       string // badger directory
	ConnString string
	TableName  string
}

// New opens the configured backend. Every backend embeds text with the
// given embedder, so the embedder must not change between runs against
// the same persisted data.
func New(ctx context.Context, config Config, embedder types.Embedder) (types.DocumentStore, error) {
	switch config.Backend {
	case "memory":
		return NewMemoryStore(embedder), nil
	case "", "badger":
		return NewBadgerStore(config.Path, embedder)
	case "pgvector":
		return NewWithConfig(ctx, VectorStoreConfig{
			ConnString: config.ConnString,
			TableName:  config.TableName,
		}, embedder)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, config.Backend)
	}
}

func validateAdd(documents, ids []string) error {
	if len(documents) != len(ids) {
		return fmt.Errorf("%w: %d documents, %d ids", ErrLengthMismatch, len(documents), len(ids))
	}
	for _, id := range ids {
		if id == "" {
			return ErrEmptyID
		}
	}
	return nil
}

// rank returns the indexes of the n vectors closest to query by cosine
// similarity. Equal scores keep their original order.
func rank(query []float32, vectors [][]float32, n int) []int {
	if n <= 0 {
		n = 1
	}
	scores := make([]float64, len(vectors))
	idxs := make([]int, len(vectors))
	for i, v := range vectors {
		scores[i] = cosineSimilarity(query, v)
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool {
		return scores[idxs[a]] > scores[idxs[b]]
	})
	if n > len(idxs) {
		n = len(idxs)
	}
	return idxs[:n]
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
