package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
	"github.com/xhad/recall/pkg/llm"
	"github.com/xhad/recall/pkg/rag"
	"github.com/xhad/recall/pkg/store"
)

type failingStore struct {
	err error
}

func (f failingStore) Add(context.Context, []string, []string) error { return f.err }
func (f failingStore) Get(context.Context) (models.GetResult, error) {
	return models.GetResult{}, f.err
}
func (f failingStore) Query(context.Context, []string, int) (models.QueryResult, error) {
	return models.QueryResult{}, f.err
}
func (f failingStore) Close() error { return nil }

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, string, string) (string, error) {
	return "", errors.New("connection refused")
}
func (failingGenerator) Mode() string { return llm.ModeModel }

func newTestServer(t *testing.T, documentStore types.DocumentStore, generator types.Generator, config Config) *httptest.Server {
	t.Helper()
	if documentStore == nil {
		documentStore = store.NewMemoryStore(llm.NewHashEmbedder(384, nil))
	}
	if generator == nil {
		generator = llm.MockGenerator{}
	}
	srv := httptest.NewServer(New(rag.New(documentStore, generator), config).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, target, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(target, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func postQuery(t *testing.T, base, q string) *http.Response {
	t.Helper()
	resp, err := http.Post(base+"/query?q="+url.QueryEscape(q), "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestInfo(t *testing.T) {
	srv := newTestServer(t, nil, nil, Config{})

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	info := decode[InfoResponse](t, resp)
	assert.Equal(t, "recall", info.Name)
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, "running", info.Status)
	assert.True(t, info.MockMode)
	assert.Contains(t, info.Endpoints, "POST /query")
}

func TestInfoModelMode(t *testing.T) {
	srv := newTestServer(t, nil, failingGenerator{}, Config{})

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.False(t, decode[InfoResponse](t, resp).MockMode)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil, nil, Config{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAddListQueryScenario(t *testing.T) {
	srv := newTestServer(t, nil, nil, Config{})

	resp := postJSON(t, srv.URL+"/add", `{"content": "Paris is the capital of France", "id": "doc1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	added := decode[AddResponse](t, resp)
	assert.Equal(t, "success", added.Status)
	assert.Equal(t, "Content added to knowledge base", added.Message)
	assert.Equal(t, "doc1", added.ID)

	listResp, err := http.Get(srv.URL + "/list")
	require.NoError(t, err)
	defer listResp.Body.Close()
	list := decode[models.DocumentList](t, listResp)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, []string{"doc1"}, list.IDs)
	assert.Equal(t, []string{"Paris is the capital of France"}, list.Documents)

	queryResp := postQuery(t, srv.URL, "capital of France")
	require.Equal(t, http.StatusOK, queryResp.StatusCode)
	assert.Equal(t, "Paris is the capital of France", decode[QueryResponse](t, queryResp).Answer)
}

func TestAddGeneratesID(t *testing.T) {
	srv := newTestServer(t, nil, nil, Config{})

	resp := postJSON(t, srv.URL+"/add", `{"content": "The sky is blue"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Regexp(t, `^doc_\d{8}_\d{6}_\d{6}$`, decode[AddResponse](t, resp).ID)
}

func TestAddAcceptsEmptyContent(t *testing.T) {
	srv := newTestServer(t, nil, nil, Config{})

	resp := postJSON(t, srv.URL+"/add", `{"content": "", "id": "empty"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAddRejectsBadBodies(t *testing.T) {
	srv := newTestServer(t, nil, nil, Config{})

	tests := []struct {
		name string
		body string
	}{
		{"missing content", `{"id": "doc1"}`},
		{"null content", `{"content": null}`},
		{"non-string content", `{"content": 42}`},
		{"malformed json", `{"content": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/add", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, decode[errorResponse](t, resp).Error)
		})
	}
}

func TestListEmpty(t *testing.T) {
	srv := newTestServer(t, nil, nil, Config{})

	resp, err := http.Get(srv.URL + "/list")
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.Equal(t, float64(0), raw["count"])
	assert.Equal(t, []interface{}{}, raw["ids"])
	assert.Equal(t, []interface{}{}, raw["documents"])
}

func TestQuery(t *testing.T) {
	srv := newTestServer(t, nil, nil, Config{})

	t.Run("empty store answers empty", func(t *testing.T) {
		resp := postQuery(t, srv.URL, "anything")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "", decode[QueryResponse](t, resp).Answer)
	})

	t.Run("missing q", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/query", "", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("empty q is valid", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/query?q=", "", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("GET is not allowed", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/query?q=x")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestCollaboratorErrors(t *testing.T) {
	t.Run("store failure", func(t *testing.T) {
		srv := newTestServer(t, failingStore{err: errors.New("store unavailable")}, nil, Config{})

		resp := postJSON(t, srv.URL+"/add", `{"content": "x"}`)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Contains(t, decode[errorResponse](t, resp).Error, "store unavailable")

		listResp, err := http.Get(srv.URL + "/list")
		require.NoError(t, err)
		defer listResp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, listResp.StatusCode)

		queryResp := postQuery(t, srv.URL, "x")
		assert.Equal(t, http.StatusInternalServerError, queryResp.StatusCode)
	})

	t.Run("generator failure", func(t *testing.T) {
		srv := newTestServer(t, nil, failingGenerator{}, Config{})

		resp := postQuery(t, srv.URL, "x")
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Contains(t, decode[errorResponse](t, resp).Error, "connection refused")
	})
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, nil, nil, Config{RateLimit: 0.001, Burst: 1})

	first, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	first.Body.Close()
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	second.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}

func TestWebSocket(t *testing.T) {
	srv := newTestServer(t, nil, nil, Config{})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	exchange := func(in Message) Message {
		require.NoError(t, conn.WriteJSON(in))
		var out Message
		require.NoError(t, conn.ReadJSON(&out))
		return out
	}

	added := exchange(Message{Type: MessageAdd, Content: "The sky is blue", ID: "sky"})
	assert.Equal(t, MessageAdded, added.Type)
	assert.Equal(t, "sky", added.Content)

	answer := exchange(Message{Type: MessageQuery, Content: "what colour is the sky"})
	assert.Equal(t, MessageResponse, answer.Type)
	assert.Equal(t, "The sky is blue", answer.Content)

	unknown := exchange(Message{Type: "stream"})
	assert.Equal(t, MessageError, unknown.Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var invalid Message
	require.NoError(t, conn.ReadJSON(&invalid))
	assert.Equal(t, MessageError, invalid.Type)
}
