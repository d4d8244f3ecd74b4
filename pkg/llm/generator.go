package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/recall/internal/types"
)

const (
	ModeMock  = "mock"
	ModeModel = "model"
)

// DefaultTemperature is Ollama's own sampling default. The langchaingo
// client always sends a temperature, so an unset one must be filled in
// rather than omitted.
const DefaultTemperature = 0.8

const promptTemplate = "Context:\n%s\n\nQuestion: %s\n\nAnswer clearly and concisely:"

// BuildPrompt embeds the retrieved context and the question verbatim.
func BuildPrompt(docContext, question string) string {
	return fmt.Sprintf(promptTemplate, docContext, question)
}

// GeneratorConfig represents the configuration for the model backend.
type GeneratorConfig struct {
	Model       string
	BaseURL     string // Ollama server URL
	Temperature *float64 // nil means DefaultTemperature
}

// NewGenerator selects the backend once; callers hold the result for the
// lifetime of the process.
func NewGenerator(mock bool, config GeneratorConfig) (types.Generator, error) {
	if mock {
		return MockGenerator{}, nil
	}
	return NewModelGenerator(config)
}

// MockGenerator answers with the retrieved context and never calls a model.
type MockGenerator struct{}

func (MockGenerator) Generate(_ context.Context, docContext, _ string) (string, error) {
	return docContext, nil
}

func (MockGenerator) Mode() string { return ModeMock }

// ModelGenerator sends the prompt to a language model and returns its text.
type ModelGenerator struct {
	config GeneratorConfig
	llm    llms.Model
}

// NewModelGenerator creates a ModelGenerator backed by an Ollama server.
func NewModelGenerator(config GeneratorConfig) (*ModelGenerator, error) {
	if config.Model == "" {
		config.Model = "tinyllama"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	if t := config.Temperature; t != nil && (*t < 0 || *t > 2) {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}

	llm, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewModelGeneratorWithLLM(config, llm), nil
}

// NewModelGeneratorWithLLM wraps any langchaingo model.
func NewModelGeneratorWithLLM(config GeneratorConfig, model llms.Model) *ModelGenerator {
	return &ModelGenerator{
		config: config,
		llm:    model,
	}
}

func (g *ModelGenerator) Generate(ctx context.Context, docContext, question string) (string, error) {
	answer, err := llms.GenerateFromSinglePrompt(ctx, g.llm, BuildPrompt(docContext, question),
		llms.WithTemperature(g.temperature()))
	if err != nil {
		return "", fmt.Errorf("generation error: %w", err)
	}
	return answer, nil
}

func (g *ModelGenerator) temperature() float64 {
	if g.config.Temperature == nil {
		return DefaultTemperature
	}
	return *g.config.Temperature
}

func (g *ModelGenerator) Mode() string { return ModeModel }
