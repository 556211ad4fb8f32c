// Package api serves the search pipeline over HTTP.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lox/email-vector-engine/internal/metrics"
	"github.com/lox/email-vector-engine/internal/search"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SearchRequest is the body of POST /search
type SearchRequest struct {
	Query          string  `json:"query"`
	CollectionName *string `json:"collection_name"`
	UseLLM         *bool   `json:"use_llm"`
	LLMModel       *string `json:"llm_model"`
	LLMURL         *string `json:"llm_url"`
	NResults       *int    `json:"n_results"`
}

type errorResponse struct {
	Error string `json:"error"`
	Query string `json:"query,omitempty"`
}

type Server struct {
	pipeline *search.Pipeline
	defaults search.Request
	logger   *log.Logger
}

// NewServer creates the API. defaults supplies every field a client leaves out;
// its Query is ignored.
func NewServer(pipeline *search.Pipeline, defaults search.Request, logger *log.Logger) *Server {
	return &Server{
		pipeline: pipeline,
		defaults: defaults,
		logger:   logger,
	}
}

// Router returns the HTTP handler with health, metrics and search routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/search", s.handleSearch)
	return r
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(body.Query) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Please enter a search query."})
		return
	}

	req := s.request(body)
	s.logger.Info("Handling search request", "query", req.Query, "collection", req.Collection, "use_llm", req.UseLLMParsing, "request_id", middleware.GetReqID(r.Context()))

	result, err := s.pipeline.Run(r.Context(), req)
	if err != nil {
		status, msg := classify(err)
		s.logger.Error("Search request failed", "query", req.Query, "status", status, "error", err)
		writeJSON(w, status, errorResponse{Error: msg, Query: req.Query})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) request(body SearchRequest) search.Request {
	req := s.defaults
	req.Query = body.Query
	if body.CollectionName != nil && *body.CollectionName != "" {
		req.Collection = *body.CollectionName
	}
	if body.UseLLM != nil {
		req.UseLLMParsing = *body.UseLLM
	}
	if body.LLMModel != nil && *body.LLMModel != "" {
		req.Model = *body.LLMModel
	}
	if body.LLMURL != nil && *body.LLMURL != "" {
		req.Endpoint = *body.LLMURL
	}
	if body.NResults != nil && *body.NResults > 0 {
		req.Limit = *body.NResults
	}
	return req
}

func classify(err error) (int, string) {
	var connErr *search.ConnectionError
	var retErr *search.RetrievalError
	switch {
	case errors.As(err, &connErr):
		return http.StatusServiceUnavailable, "Error connecting to vector index: " + err.Error()
	case errors.As(err, &retErr):
		return http.StatusNotFound, "Error finding collection or data: " + err.Error()
	default:
		return http.StatusInternalServerError, "An unexpected error occurred: " + err.Error()
	}
}

// writeJSON encodes without HTML escaping so email text is returned as-is
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
