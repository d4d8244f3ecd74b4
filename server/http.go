package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// HTTPError carries the status code a handler wants to answer with.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return e.Message
}

func NewHTTPError(err error) *HTTPError {
	return &HTTPError{
		StatusCode: http.StatusInternalServerError,
		Message:    err.Error(),
	}
}

func NewHTTPError400(message string) *HTTPError {
	return &HTTPError{
		StatusCode: http.StatusBadRequest,
		Message:    message,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// functions that understand they need to return a http error
type httpWrapper[T any] func(res http.ResponseWriter, req *http.Request) (T, *HTTPError)

// wrapper encodes the handler result as JSON, or the error with its status.
func wrapper[T any](handler httpWrapper[T]) http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		data, err := handler(res, req)
		if err != nil {
			statusCode := err.StatusCode
			if statusCode == 0 {
				statusCode = http.StatusInternalServerError
			}
			if statusCode >= http.StatusInternalServerError {
				log.Ctx(req.Context()).Error().Str("path", req.URL.Path).Msgf("error for route: %s", err.Error())
			}
			writeJSON(res, req, statusCode, errorResponse{Error: err.Message})
			return
		}
		writeJSON(res, req, http.StatusOK, data)
	}
}

func writeJSON(res http.ResponseWriter, req *http.Request, status int, data interface{}) {
	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(status)
	if err := json.NewEncoder(res).Encode(data); err != nil {
		log.Ctx(req.Context()).Error().Err(err).Msg("error for json encoding")
	}
}
