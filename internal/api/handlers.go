package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"autorsa/internal/domain"
	"autorsa/internal/engine"
	"autorsa/internal/store"
)

// maxBodyBytes caps the POST / request body.
const maxBodyBytes = 1 << 16

// RegisterRoutes registers all routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleHello)
	mux.HandleFunc("POST /{$}", s.handleSubmit)
	if s.deps.Journal != nil {
		mux.HandleFunc("GET /api/orders", s.handleListOrders)
		mux.HandleFunc("GET /api/orders/{id}", s.handleGetOrder)
	}
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics)
	}
	if s.deps.Hub != nil {
		mux.Handle("GET /ws", s.deps.Hub)
	}
}

// Handler returns the HTTP handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.logRequests(mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHello(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "Hello, World!")
}

// handleSubmit accepts {action, amount, stock, dry} and queues a transaction
// dispatch against the default broker set. It never waits for the dispatch.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeText(w, http.StatusBadRequest, "bad request: "+err.Error())
		return
	}

	_, err := s.submit(r.Context(), req)
	var ve *domain.ValidationError
	switch {
	case err == nil:
		writeText(w, http.StatusOK, "OK")
	case errors.As(err, &ve):
		writeText(w, http.StatusUnprocessableEntity, ve.Error())
	case errors.Is(err, engine.ErrQueueFull):
		writeText(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.log.Error("submit failed", "error", err)
		writeText(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeText(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	recs, err := s.deps.Journal.ListOrders(r.Context(), limit)
	if err != nil {
		s.log.Error("listing orders", "error", err)
		writeText(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, recs)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	recs, err := s.deps.Journal.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		if store.IsNotFound(err) {
			writeText(w, http.StatusNotFound, "order not found")
			return
		}
		s.log.Error("reading order", "error", err)
		writeText(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, recs)
}

func writeText(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(msg))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}
