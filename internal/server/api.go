// Package server exposes the answer pipeline as a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/BestBeo/ChatbotLaw/internal/pipeline"
	"github.com/BestBeo/ChatbotLaw/internal/vectorstore"
)

// maxRequestBody caps query request bodies at 64 KiB. A legal question
// is a few sentences; anything larger is a client bug.
const maxRequestBody = 64 << 10

// previewLen caps source previews in query responses.
const previewLen = 200

// Answerer runs one question through the answer pipeline.
type Answerer interface {
	Answer(ctx context.Context, question, categoryHint string) (*pipeline.Answer, error)
}

// API serves the /rag/query, /health and /warmup endpoints.
type API struct {
	answerer Answerer
	store    vectorstore.Store
	logger   *slog.Logger
}

// New creates an API around the pipeline and store.
func New(answerer Answerer, store vectorstore.Store, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{answerer: answerer, store: store, logger: logger}
}

// Routes registers the API's endpoints on the mux.
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /rag/query", a.handleQuery)
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("POST /warmup", a.handleWarmup)
}

type queryRequest struct {
	Question string `json:"question"`
	Category string `json:"category,omitempty"`
}

type querySource struct {
	Source  string  `json:"source"`
	Preview string  `json:"preview"`
	Score   float64 `json:"score"`
}

type queryResponse struct {
	Classification    string        `json:"classification,omitempty"`
	RewrittenQuestion string        `json:"rewritten_question,omitempty"`
	Answer            string        `json:"answer"`
	Sources           []querySource `json:"sources"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) handleQuery(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question is required"})
		return
	}

	ans, err := a.answerer.Answer(r.Context(), req.Question, req.Category)
	if err != nil {
		a.logger.Error("query failed", "error", err)
		status := http.StatusInternalServerError
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			// Upstream model/store failures are the backend's fault,
			// not ours and not the client's.
			status = http.StatusBadGateway
		}
		writeJSON(w, status, errorResponse{Error: "failed to answer question"})
		return
	}

	sources := make([]querySource, 0, len(ans.Sources))
	for _, s := range ans.Sources {
		sources = append(sources, querySource{
			Source:  s.Meta.Source,
			Preview: preview(s.Meta.Text),
			Score:   s.Score,
		})
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Classification:    ans.Classification,
		RewrittenQuestion: ans.RewrittenQuestion,
		Answer:            ans.Answer,
		Sources:           sources,
	})
}

// healthResponse is the JSON body of the health endpoint.
type healthResponse struct {
	Status    string `json:"status"`
	Store     string `json:"store"`
	Segments  int    `json:"segments"`
	Timestamp string `json:"timestamp"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{Timestamp: time.Now().UTC().Format(time.RFC3339)}

	if err := a.store.Health(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Store = "disconnected"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	resp.Status = "healthy"
	resp.Store = "connected"
	if count, err := a.store.Count(ctx); err == nil {
		resp.Segments = count
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleWarmup runs a throwaway question through the full pipeline so
// upstream connections and model caches are established before real
// traffic arrives.
func (a *API) handleWarmup(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	_, err := a.answerer.Answer(r.Context(), "What areas of law does this assistant cover?", "")
	if err != nil {
		a.logger.Warn("warmup failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"status": "failed",
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "warmed",
		"duration": time.Since(start).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are already out; nothing left to do but log.
		slog.Default().Error("encode response", "error", err)
	}
}

func preview(text string) string {
	if len(text) <= previewLen {
		return text
	}
	cut := previewLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
