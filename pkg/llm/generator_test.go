package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/xhad/recall/pkg/llm"
)

// fakeModel records every prompt it receives.
type fakeModel struct {
	prompts  []string
	opts     llms.CallOptions
	response string
	err      error
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, m := range messages {
		for _, part := range m.Parts {
			if text, ok := part.(llms.TextContent); ok {
				f.prompts = append(f.prompts, text.Text)
			}
		}
	}
	for _, opt := range options {
		opt(&f.opts)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.response}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestBuildPrompt(t *testing.T) {
	prompt := llm.BuildPrompt("The sky is blue", "what colour is the sky?")
	assert.Equal(t, "Context:\nThe sky is blue\n\nQuestion: what colour is the sky?\n\nAnswer clearly and concisely:", prompt)

	assert.Equal(t, "Context:\n\n\nQuestion: \n\nAnswer clearly and concisely:", llm.BuildPrompt("", ""))
}

func TestMockGenerator(t *testing.T) {
	g, err := llm.NewGenerator(true, llm.GeneratorConfig{})
	require.NoError(t, err)
	assert.Equal(t, llm.ModeMock, g.Mode())

	answer, err := g.Generate(context.Background(), "The sky is blue", "anything")
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue", answer)

	answer, err = g.Generate(context.Background(), "", "anything")
	require.NoError(t, err)
	assert.Equal(t, "", answer)
}

func TestNewGeneratorModelMode(t *testing.T) {
	g, err := llm.NewGenerator(false, llm.GeneratorConfig{
		Model:   "tinyllama",
		BaseURL: "http://localhost:11434",
	})
	require.NoError(t, err)
	assert.Equal(t, llm.ModeModel, g.Mode())
}

func TestNewModelGeneratorRejectsTemperature(t *testing.T) {
	temperature := 3.0
	_, err := llm.NewModelGenerator(llm.GeneratorConfig{Temperature: &temperature})
	assert.Error(t, err)
}

func TestModelGenerator_Generate(t *testing.T) {
	model := &fakeModel{response: "Paris."}
	temperature := 0.2
	g := llm.NewModelGeneratorWithLLM(llm.GeneratorConfig{Model: "tinyllama", Temperature: &temperature}, model)

	answer, err := g.Generate(context.Background(), "Paris is the capital of France", "capital of France")
	require.NoError(t, err)

	assert.Equal(t, "Paris.", answer)
	require.Len(t, model.prompts, 1)
	assert.Equal(t, "Context:\nParis is the capital of France\n\nQuestion: capital of France\n\nAnswer clearly and concisely:", model.prompts[0])
	assert.Equal(t, 0.2, model.opts.Temperature)
}

func TestModelGenerator_NoCaching(t *testing.T) {
	model := &fakeModel{response: "ok"}
	g := llm.NewModelGeneratorWithLLM(llm.GeneratorConfig{}, model)

	for i := 0; i < 3; i++ {
		_, err := g.Generate(context.Background(), "ctx", "same question")
		require.NoError(t, err)
	}
	assert.Len(t, model.prompts, 3)
}

func TestModelGenerator_PropagatesErrors(t *testing.T) {
	backendErr := errors.New("connection refused")
	g := llm.NewModelGeneratorWithLLM(llm.GeneratorConfig{}, &fakeModel{err: backendErr})

	_, err := g.Generate(context.Background(), "ctx", "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, backendErr)
}

func TestModelGenerator_DefaultTemperature(t *testing.T) {
	model := &fakeModel{response: "ok"}
	g := llm.NewModelGeneratorWithLLM(llm.GeneratorConfig{}, model)

	_, err := g.Generate(context.Background(), "ctx", "q")
	require.NoError(t, err)
	assert.Equal(t, llm.DefaultTemperature, model.opts.Temperature)
}

func TestModelGenerator_ZeroTemperatureIsKept(t *testing.T) {
	model := &fakeModel{response: "ok"}
	zero := 0.0
	g := llm.NewModelGeneratorWithLLM(llm.GeneratorConfig{Temperature: &zero}, model)

	_, err := g.Generate(context.Background(), "ctx", "q")
	require.NoError(t, err)
	assert.Equal(t, 0.0, model.opts.Temperature)
}

// ollamaRequest is the subset of an Ollama chat request the generator sets.
type ollamaRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Options map[string]interface{} `json:"options"`
}

func TestModelGenerator_OllamaRequest(t *testing.T) {
	tests := []struct {
		name        string
		temperature *float64
		expected    float64
	}{
		{"unset uses server default", nil, llm.DefaultTemperature},
		{"configured", func() *float64 { v := 0.3; return &v }(), 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				path string
				req  ollamaRequest
			)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				path = r.URL.Path
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"model":"tinyllama","message":{"role":"assistant","content":"Paris."},"done":true}` + "\n"))
			}))
			defer server.Close()

			g, err := llm.NewGenerator(false, llm.GeneratorConfig{
				BaseURL:     server.URL,
				Temperature: tt.temperature,
			})
			require.NoError(t, err)

			answer, err := g.Generate(context.Background(), "ctx", "q?")
			require.NoError(t, err)
			assert.Equal(t, "Paris.", answer)

			assert.Equal(t, "/api/chat", path)
			assert.Equal(t, "tinyllama", req.Model)
			require.Len(t, req.Messages, 1)
			assert.Equal(t, "user", req.Messages[0].Role)
			assert.Equal(t, "Context:\nctx\n\nQuestion: q?\n\nAnswer clearly and concisely:", req.Messages[0].Content)

			require.Contains(t, req.Options, "temperature")
			assert.InDelta(t, tt.expected, req.Options["temperature"], 1e-6)
		})
	}
}
