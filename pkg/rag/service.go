// Package rag answers questions from stored documents: it retrieves the
// single closest document for a query and hands it, with the query, to the
// active generator.
package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
)

// Service holds no state of its own between calls; consistency across
// concurrent requests is whatever the store provides.
type Service struct {
	store     types.DocumentStore
	generator types.Generator
	now       func() time.Time
}

type Option func(*Service)

// WithClock replaces the clock used for generated document ids.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store types.DocumentStore, generator types.Generator, opts ...Option) *Service {
	s := &Service{
		store:     store,
		generator: generator,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode reports the generator selected at startup.
func (s *Service) Mode() string {
	return s.generator.Mode()
}

// NewDocumentID formats t as doc_YYYYMMDD_HHMMSS_microseconds, which sorts
// lexically by creation time.
func NewDocumentID(t time.Time) string {
	return fmt.Sprintf("doc_%s_%06d", t.Format("20060102_150405"), t.Nanosecond()/int(time.Microsecond))
}

// AddDocument stores content under id, or under a generated id when id is
// empty, and returns the id used.
func (s *Service) AddDocument(ctx context.Context, content, id string) (string, error) {
	if id == "" {
		id = NewDocumentID(s.now())
	}

	if err := s.store.Add(ctx, []string{content}, []string{id}); err != nil {
		return "", fmt.Errorf("failed to add document %s: %w", id, err)
	}

	log.Debug().Str("id", id).Int("length", len(content)).Msg("document added")
	return id, nil
}

func (s *Service) ListDocuments(ctx context.Context) (models.DocumentList, error) {
	result, err := s.store.Get(ctx)
	if err != nil {
		return models.DocumentList{}, fmt.Errorf("failed to list documents: %w", err)
	}

	list := models.DocumentList{
		IDs:       result.IDs,
		Documents: result.Documents,
	}
	if list.IDs == nil {
		list.IDs = []string{}
	}
	if list.Documents == nil {
		list.Documents = []string{}
	}
	if len(list.IDs) != len(list.Documents) {
		return models.DocumentList{}, fmt.Errorf("store returned %d ids for %d documents", len(list.IDs), len(list.Documents))
	}
	list.Count = len(list.IDs)

	return list, nil
}

// Query retrieves the nearest document for text and generates an answer
// from it. An empty store yields an empty context, not an error.
func (s *Service) Query(ctx context.Context, text string) (models.Answer, error) {
	results, err := s.store.Query(ctx, []string{text}, 1)
	if err != nil {
		return models.Answer{}, fmt.Errorf("failed to retrieve context: %w", err)
	}

	docContext := ""
	if len(results.Documents) > 0 && len(results.Documents[0]) > 0 {
		docContext = results.Documents[0][0]
	}

	answer, err := s.generator.Generate(ctx, docContext, text)
	if err != nil {
		return models.Answer{}, err
	}

	log.Debug().
		Str("mode", s.generator.Mode()).
		Bool("context_found", docContext != "").
		Msg("query answered")

	return models.Answer{Text: answer}, nil
}
