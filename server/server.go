package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/pkg/llm"
	"github.com/xhad/recall/pkg/rag"
	"golang.org/x/time/rate"
)

const (
	Name    = "recall"
	Version = "1.0.0"
)

type Config struct {
	Port      int
	RateLimit float64 // requests per second, 0 disables limiting
	Burst     int
}

type Server struct {
	config   Config
	service  *rag.Service
	validate *validator.Validate
	limiter  *rate.Limiter
	router   *mux.Router
}

type InfoResponse struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Status    string            `json:"status"`
	MockMode  bool              `json:"mock_mode"`
	Endpoints map[string]string `json:"endpoints"`
}

// AddRequest fields are pointers so a missing field can be told apart
// from an empty string.
type AddRequest struct {
	Content *string `json:"content" validate:"required"`
	ID      *string `json:"id"`
}

type AddResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	ID      string `json:"id"`
}

type queryParams struct {
	Q *string `validate:"required"`
}

type QueryResponse struct {
	Answer string `json:"answer"`
}

func New(service *rag.Service, config Config) *Server {
	s := &Server{
		config:   config,
		service:  service,
		validate: validator.New(),
	}
	if config.RateLimit > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(
		hlog.NewHandler(log.Logger),
		hlog.AccessHandler(accessLog),
		s.rateLimit,
	)

	r.HandleFunc("/", wrapper(s.handleInfo)).Methods(http.MethodGet)
	r.HandleFunc("/add", wrapper(s.handleAdd)).Methods(http.MethodPost)
	r.HandleFunc("/list", wrapper(s.handleList)).Methods(http.MethodGet)
	r.HandleFunc("/query", wrapper(s.handleQuery)).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to five seconds.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", s.config.Port).Str("mode", s.service.Mode()).Msg("starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Info().Msg("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	var evt *zerolog.Event
	if status >= http.StatusInternalServerError {
		evt = hlog.FromRequest(r).Warn()
	} else {
		evt = hlog.FromRequest(r).Info()
	}
	evt.Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeJSON(w, r, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleInfo(_ http.ResponseWriter, _ *http.Request) (InfoResponse, *HTTPError) {
	return InfoResponse{
		Name:     Name,
		Version:  Version,
		Status:   "running",
		MockMode: s.service.Mode() == llm.ModeMock,
		Endpoints: map[string]string{
			"GET /":       "API information",
			"POST /add":   "Add content to knowledge base",
			"GET /list":   "List all documents",
			"POST /query": "Query the knowledge base",
		},
	}, nil
}

func (s *Server) handleAdd(_ http.ResponseWriter, r *http.Request) (AddResponse, *HTTPError) {
	var req AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return AddResponse{}, NewHTTPError400(fmt.Sprintf("invalid request body: %s", err))
	}
	if err := s.validate.Struct(req); err != nil {
		return AddResponse{}, NewHTTPError400("content is required")
	}

	id := ""
	if req.ID != nil {
		id = *req.ID
	}

	id, err := s.service.AddDocument(r.Context(), *req.Content, id)
	if err != nil {
		return AddResponse{}, NewHTTPError(err)
	}

	return AddResponse{
		Status:  "success",
		Message: "Content added to knowledge base",
		ID:      id,
	}, nil
}

func (s *Server) handleList(_ http.ResponseWriter, r *http.Request) (models.DocumentList, *HTTPError) {
	list, err := s.service.ListDocuments(r.Context())
	if err != nil {
		return models.DocumentList{}, NewHTTPError(err)
	}
	return list, nil
}

func (s *Server) handleQuery(_ http.ResponseWriter, r *http.Request) (QueryResponse, *HTTPError) {
	var params queryParams
	if values := r.URL.Query(); values.Has("q") {
		q := values.Get("q")
		params.Q = &q
	}
	if err := s.validate.Struct(params); err != nil {
		return QueryResponse{}, NewHTTPError400("query parameter q is required")
	}

	answer, err := s.service.Query(r.Context(), *params.Q)
	if err != nil {
		return QueryResponse{}, NewHTTPError(err)
	}
	return QueryResponse{Answer: answer.Text}, nil
}
