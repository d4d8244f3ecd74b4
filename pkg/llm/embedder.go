package llm

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/recall/internal/types"
	"github.com/xhad/recall/pkg/processor"
)

var ErrUnknownEmbedder = errors.New("unknown embedder type")

// EmbedderConfig selects and configures the text embedder.
type EmbedderConfig struct {
	Type      string // "hash" or "ollama"
	Model     string
	BaseURL   string // Ollama server URL
	Dimension int
}

type Tokenizer interface {
	Tokenize(text string) []string
}

func NewEmbedderWithConfig(config EmbedderConfig, tokenizer Tokenizer) (types.Embedder, error) {
	switch config.Type {
	case "", "hash":
		return NewHashEmbedder(config.Dimension, tokenizer), nil
	case "ollama":
		return NewOllamaEmbedder(config)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEmbedder, config.Type)
	}
}

// HashEmbedder maps tokens into a fixed number of signed buckets. It needs
// no model and gives identical vectors for identical token bags.
type HashEmbedder struct {
	dimension int
	tokenizer Tokenizer
}

func NewHashEmbedder(dimension int, tokenizer Tokenizer) *HashEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	if tokenizer == nil {
		p := processor.NewWithConfig(processor.ProcessorConfig{})
		tokenizer = &p
	}
	return &HashEmbedder{dimension: dimension, tokenizer: tokenizer}
}

func (e *HashEmbedder) Dimension() int { return e.dimension }

func (e *HashEmbedder) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.embed(text)
	}
	return vectors, nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dimension)
	for _, tok := range e.tokenizer.Tokenize(text) {
		h := xxhash.Sum64String(tok)
		idx := h % uint64(e.dimension)
		if h>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

type embeddingClient interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// OllamaEmbedder calls an embedding model served by Ollama.
type OllamaEmbedder struct {
	Config EmbedderConfig
	client embeddingClient
}

func NewOllamaEmbedder(config EmbedderConfig) (*OllamaEmbedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest" // Default Ollama model
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	if config.Dimension <= 0 {
		config.Dimension = 768
	}

	emb, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &OllamaEmbedder{
		Config: config,
		client: emb,
	}, nil
}

func (e *OllamaEmbedder) Dimension() int { return e.Config.Dimension }

func (e *OllamaEmbedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings, err := e.client.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(embeddings), len(texts))
	}
	for i, vec := range embeddings {
		if len(vec) != e.Config.Dimension {
			return nil, fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(vec), e.Config.Dimension)
		}
	}
	return embeddings, nil
}
