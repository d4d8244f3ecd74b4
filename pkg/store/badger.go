package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"
	"github.com/timshannon/badgerhold/v4"
	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
)

// documentRecord is the persisted form of one document.
type documentRecord struct {
	models.Document
	Embedding []float32
	Seq       uint64
	CreatedAt time.Time
}

// BadgerStore persists documents and their embeddings in a local badger
// directory. Search loads every record and ranks them in memory.
type BadgerStore struct {
	embedder types.Embedder
	store    *badgerhold.Store

	// serializes sequence assignment across concurrent adds
	mu      sync.Mutex
	nextSeq uint64
}

func NewBadgerStore(path string, embedder types.Embedder) (*BadgerStore, error) {
	if path == "" {
		path = "./db"
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	count, err := store.Count(&documentRecord{}, nil)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	log.Debug().Str("path", path).Uint64("documents", count).Msg("badger document store opened")

	return &BadgerStore{
		embedder: embedder,
		store:    store,
		nextSeq:  count,
	}, nil
}

// Add writes all documents in one transaction. An existing id keeps its
// position and creation time and gets the new content.
func (s *BadgerStore) Add(ctx context.Context, documents []string, ids []string) error {
	if err := validateAdd(documents, ids); err != nil {
		return err
	}
	vectors, err := s.embedder.CreateEmbedding(ctx, documents)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextSeq := s.nextSeq
	err = s.store.Badger().Update(func(tx *badger.Txn) error {
		for i, id := range ids {
			var existing documentRecord
			err := s.store.TxGet(tx, id, &existing)
			switch {
			case err == nil:
				existing.Content = documents[i]
				existing.Embedding = vectors[i]
				if err := s.store.TxUpsert(tx, id, &existing); err != nil {
					return err
				}
			case errors.Is(err, badgerhold.ErrNotFound):
				record := documentRecord{
					Document:  models.Document{ID: id, Content: documents[i]},
					Embedding: vectors[i],
					Seq:       nextSeq,
					CreatedAt: time.Now(),
				}
				if err := s.store.TxInsert(tx, id, &record); err != nil {
					return err
				}
				nextSeq++
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save documents: %w", err)
	}
	s.nextSeq = nextSeq
	return nil
}

func (s *BadgerStore) all() ([]documentRecord, error) {
	var records []documentRecord
	if err := s.store.Find(&records, badgerhold.Where("ID").Ne("").SortBy("Seq")); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return records, nil
}

func (s *BadgerStore) Get(_ context.Context) (models.GetResult, error) {
	records, err := s.all()
	if err != nil {
		return models.GetResult{}, err
	}

	result := models.GetResult{
		IDs:       make([]string, 0, len(records)),
		Documents: make([]string, 0, len(records)),
	}
	for _, r := range records {
		result.IDs = append(result.IDs, r.ID)
		result.Documents = append(result.Documents, r.Content)
	}
	return result, nil
}

func (s *BadgerStore) Query(ctx context.Context, queryTexts []string, nResults int) (models.QueryResult, error) {
	queryVectors, err := s.embedder.CreateEmbedding(ctx, queryTexts)
	if err != nil {
		return models.QueryResult{}, fmt.Errorf("failed to embed query: %w", err)
	}

	records, err := s.all()
	if err != nil {
		return models.QueryResult{}, err
	}
	vectors := make([][]float32, len(records))
	for i, r := range records {
		vectors[i] = r.Embedding
	}

	result := models.QueryResult{Documents: make([][]string, len(queryTexts))}
	for q, vec := range queryVectors {
		idxs := rank(vec, vectors, nResults)
		docs := make([]string, 0, len(idxs))
		for _, i := range idxs {
			docs = append(docs, records[i].Content)
		}
		result.Documents[q] = docs
	}
	return result, nil
}

func (s *BadgerStore) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}
