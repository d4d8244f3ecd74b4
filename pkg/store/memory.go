package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
)

// MemoryStore keeps documents in process memory and searches them by
// brute-force cosine similarity.
type MemoryStore struct {
	embedder types.Embedder

	mu       sync.RWMutex
	ids      []string
	contents []string
	vectors  [][]float32
	index    map[string]int
}

func NewMemoryStore(embedder types.Embedder) *MemoryStore {
	return &MemoryStore{
		embedder: embedder,
		index:    make(map[string]int),
	}
}

// Add inserts documents in order. An id that already exists keeps its
// position and gets the new content.
func (s *MemoryStore) Add(ctx context.Context, documents []string, ids []string) error {
	if err := validateAdd(documents, ids); err != nil {
		return err
	}
	vectors, err := s.embedder.CreateEmbedding(ctx, documents)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range ids {
		if j, ok := s.index[id]; ok {
			s.contents[j] = documents[i]
			s.vectors[j] = vectors[i]
			continue
		}
		s.index[id] = len(s.ids)
		s.ids = append(s.ids, id)
		s.contents = append(s.contents, documents[i])
		s.vectors = append(s.vectors, vectors[i])
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context) (models.GetResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := models.GetResult{
		IDs:       make([]string, len(s.ids)),
		Documents: make([]string, len(s.contents)),
	}
	copy(result.IDs, s.ids)
	copy(result.Documents, s.contents)
	return result, nil
}

func (s *MemoryStore) Query(ctx context.Context, queryTexts []string, nResults int) (models.QueryResult, error) {
	queryVectors, err := s.embedder.CreateEmbedding(ctx, queryTexts)
	if err != nil {
		return models.QueryResult{}, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := models.QueryResult{Documents: make([][]string, len(queryTexts))}
	for q, vec := range queryVectors {
		idxs := rank(vec, s.vectors, nResults)
		docs := make([]string, 0, len(idxs))
		for _, i := range idxs {
			docs = append(docs, s.contents[i])
		}
		result.Documents[q] = docs
	}
	return result, nil
}

func (s *MemoryStore) Close() error { return nil }
