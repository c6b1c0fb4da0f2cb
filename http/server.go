// Package http provides the HTTP transport layer: the JSON API server, the
// robots.txt policy, sitemap discovery and a plain fetcher for static pages.
package http

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/usefocal/focal"
)

// ShutdownTimeout is the time given to in-flight requests when the server
// closes.
const ShutdownTimeout = 1 * time.Second

// Server exposes the application services over a JSON HTTP API.
//
// The zero value is not usable; construct with NewServer, assign the
// services and call Open. Server also implements http.Handler so tests can
// mount it on an httptest server directly.
type Server struct {
	ln     net.Listener
	server *http.Server
	router chi.Router

	// Bind address, e.g. ":3000".
	Addr string

	SearchService focal.SearchService
	JobService    focal.JobService
	VectorStore   focal.VectorStore
	Embedder      focal.Embedder
	JobLogs       focal.JobLogStore

	Logger zerolog.Logger
}

// NewServer creates a Server with its routes registered. Services must be
// assigned before the server receives traffic.
func NewServer() *Server {
	s := &Server{
		server: &http.Server{},
		router: chi.NewRouter(),
		Logger: zerolog.Nop(),
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(s.logRequests)

	s.router.Get("/healthz", s.handleHealth)

	s.router.Post("/refresh", s.handleRefresh)
	s.router.Get("/refresh/status", s.handleRefreshStatus)

	s.router.Route("/jobs/{id}", func(r chi.Router) {
		r.Get("/status", s.handleJobStatus)
		r.Get("/log", s.handleJobLog)
		r.Get("/progress/stream", s.handleJobStream)
	})

	s.router.Get("/search", s.handleSearch)
	s.router.Post("/index/search", s.handleIndexSearch)
	s.router.Post("/index/upsert", s.handleIndexUpsert)

	s.router.Get("/embedder/status", s.handleEmbedderStatus)
	s.router.Post("/embedder/ensure", s.handleEmbedderEnsure)

	s.server.Handler = s.router
	return s
}

// ServeHTTP dispatches to the router. Exposed so tests can drive the server
// without opening a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Open begins listening on Addr. It returns once the listener is bound;
// requests are served on a background goroutine.
func (s *Server) Open() error {
	if s.Addr == "" {
		return focal.Errorf(focal.EINVALID, "server address required")
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.Logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	s.Logger.Info().Str("addr", ln.Addr().String()).Msg("http server listening")
	return nil
}

// Close gracefully shuts the server down.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// URL returns the base URL of the bound listener.
func (s *Server) URL() string {
	if s.ln == nil {
		return ""
	}
	return "http://" + s.ln.Addr().String()
}

// logRequests logs each request at debug level. The ResponseWriter is not
// wrapped: wrapping breaks http.Flusher for the SSE endpoint.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// refreshResponse is the body of a POST /refresh reply.
type refreshResponse struct {
	JobID        string         `json:"job_id"`
	Created      bool           `json:"created"`
	Deduplicated bool           `json:"deduplicated,omitempty"`
	Status       focal.JobState `json:"status"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req focal.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.Error(w, r, focal.Errorf(focal.EINVALID, "invalid JSON body"))
		return
	}

	result, err := s.JobService.Enqueue(r.Context(), req)
	if err != nil {
		s.Error(w, r, err)
		return
	}

	resp := refreshResponse{
		JobID:        result.JobID,
		Created:      result.Created,
		Deduplicated: result.Deduplicated,
	}
	if result.Job != nil {
		resp.Status = result.Job.State
	}
	s.respond(w, r, http.StatusAccepted, resp)
}

func (s *Server) handleRefreshStatus(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(r.URL.Query().Get("job_id"))
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if jobID == "" && query == "" {
		s.Error(w, r, focal.Errorf(focal.EINVALID, "job_id or query required"))
		return
	}

	status, err := s.JobService.Status(r.Context(), jobID, query)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, status)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.JobService.Job(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, job)
}

// handleJobLog streams the job's progress log as plain text. A job that
// exists but has not written a log yet yields an empty body.
func (s *Server) handleJobLog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.JobService.Job(r.Context(), id); err != nil {
		s.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	rc, err := s.JobLogs.Open(id)
	if err != nil {
		return
	}
	defer rc.Close()
	_, _ = io.Copy(w, rc)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.Error(w, r, focal.Errorf(focal.EINVALID, "query parameter q required"))
		return
	}

	opts := focal.SearchOptions{
		UseLLM: r.URL.Query().Get("llm") == "on",
		Model:  r.URL.Query().Get("model"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.Error(w, r, focal.Errorf(focal.EINVALID, "limit must be a positive integer"))
			return
		}
		opts.Limit = limit
	}

	resp, err := s.SearchService.Search(r.Context(), q, opts)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, resp)
}

type indexSearchRequest struct {
	Query   string            `json:"query"`
	K       int               `json:"k"`
	Filters map[string]string `json:"filters,omitempty"`
}

type indexSearchResponse struct {
	Results []focal.VectorHit `json:"results"`
}

func (s *Server) handleIndexSearch(w http.ResponseWriter, r *http.Request) {
	var req indexSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.Error(w, r, focal.Errorf(focal.EINVALID, "invalid JSON body"))
		return
	}
	if req.K <= 0 {
		req.K = 5
	}

	hits, err := s.VectorStore.Search(r.Context(), req.Query, req.K, req.Filters)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	if hits == nil {
		hits = []focal.VectorHit{}
	}
	s.respond(w, r, http.StatusOK, indexSearchResponse{Results: hits})
}

func (s *Server) handleIndexUpsert(w http.ResponseWriter, r *http.Request) {
	var req focal.UpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.Error(w, r, focal.Errorf(focal.EINVALID, "invalid JSON body"))
		return
	}

	result, err := s.VectorStore.UpsertDocument(r.Context(), req)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, result)
}

func (s *Server) handleEmbedderStatus(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusOK, s.Embedder.Status(r.Context()))
}

type ensureRequest struct {
	Model string `json:"model,omitempty"`
}

func (s *Server) handleEmbedderEnsure(w http.ResponseWriter, r *http.Request) {
	var req ensureRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.Error(w, r, focal.Errorf(focal.EINVALID, "invalid JSON body"))
			return
		}
	}

	status, err := s.Embedder.Ensure(r.Context(), req.Model)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, status)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("encode response")
	}
}

// ErrorResponse is the JSON body written for application errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Error writes an application error as JSON, mapping the error code to an
// HTTP status. Internal errors are logged; their details never reach the
// client.
func (s *Server) Error(w http.ResponseWriter, r *http.Request, err error) {
	code, message := focal.ErrorCode(err), focal.ErrorMessage(err)
	if code == focal.EINTERNAL {
		s.Logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("internal error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ErrorStatusCode(code))
	_ = json.NewEncoder(w).Encode(&ErrorResponse{Error: message, Code: code})
}

var codes = map[string]int{
	focal.EINVALID:     http.StatusBadRequest,
	focal.ENOTFOUND:    http.StatusNotFound,
	focal.EUNAVAILABLE: http.StatusServiceUnavailable,
	focal.EINTERNAL:    http.StatusInternalServerError,
}

// ErrorStatusCode maps an application error code to an HTTP status code.
func ErrorStatusCode(code string) int {
	if v, ok := codes[code]; ok {
		return v
	}
	return http.StatusInternalServerError
}
