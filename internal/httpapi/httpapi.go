// Package httpapi exposes the Service Orchestrator over HTTP (spec §6.1):
// a synchronous POST /deepsearch/run and a streaming POST
// /deepsearch/run/stream, both gated by an optional API-key header.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/deepsearch/internal/config"
	"github.com/hyperifyio/deepsearch/internal/orchestrator"
	"github.com/hyperifyio/deepsearch/internal/sse"
)

// Server wires the orchestrator into net/http handlers. It carries the
// config only for its auth-gate and request-default fields; the
// orchestrator itself owns the graph, registry, and monitor.
type Server struct {
	Orchestrator *orchestrator.Orchestrator
	Config       config.Config
}

// New constructs a Server.
func New(o *orchestrator.Orchestrator, cfg config.Config) *Server {
	return &Server{Orchestrator: o, Config: cfg}
}

// Routes registers the service's handlers on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/deepsearch/run", s.handleRun)
	mux.HandleFunc("/deepsearch/run/stream", s.handleRunStream)
}

type runRequestBody struct {
	Query                   string `json:"query"`
	InitialSearchQueryCount int    `json:"initial_search_query_count"`
	MaxResearchLoops        int    `json:"max_research_loops"`
	ReasoningModel          string `json:"reasoning_model"`
	ReportFormat            string `json:"report_format"`
}

type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Success: false, Message: message})
}

// authorize enforces the configured API-key header when one is set (spec
// §6.1's auth gate); a deployment with no APIKeyHeaderValue configured
// leaves the endpoints open, matching a local/dev default.
func (s *Server) authorize(r *http.Request) bool {
	if s.Config.APIKeyHeaderValue == "" {
		return true
	}
	return r.Header.Get(s.Config.APIKeyHeaderName) == s.Config.APIKeyHeaderValue
}

// decodeRequest parses and validates the request body against spec §6.1's
// field ranges, filling in configured defaults for omitted optional fields.
func (s *Server) decodeRequest(r *http.Request) (orchestrator.Request, error) {
	var body runRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return orchestrator.Request{}, errBadRequest("invalid JSON body: " + err.Error())
	}

	query := strings.TrimSpace(body.Query)
	if query == "" || len(query) > 8000 {
		return orchestrator.Request{}, errBadRequest("query must be 1..8000 characters")
	}

	queryCount := body.InitialSearchQueryCount
	if queryCount == 0 {
		queryCount = s.Config.InitialSearchQueryCount
	}
	if queryCount < 1 || queryCount > 10 {
		return orchestrator.Request{}, errBadRequest("initial_search_query_count must be 1..10")
	}

	loops := body.MaxResearchLoops
	if loops == 0 {
		loops = s.Config.MaxResearchLoops
	}
	if loops < 1 || loops > 5 {
		return orchestrator.Request{}, errBadRequest("max_research_loops must be 1..5")
	}

	format := body.ReportFormat
	if format == "" {
		format = "formal"
	}
	if format != "formal" && format != "casual" {
		return orchestrator.Request{}, errBadRequest(`report_format must be "formal" or "casual"`)
	}

	reasoningModel := body.ReasoningModel
	if reasoningModel == "" {
		reasoningModel = s.Config.PrimaryModel
	}

	return orchestrator.Request{
		Query:                   query,
		InitialSearchQueryCount: queryCount,
		MaxResearchLoops:        loops,
		ReasoningModel:          reasoningModel,
		ReportFormat:            format,
	}, nil
}

type badRequestError string

func (e badRequestError) Error() string { return string(e) }

func errBadRequest(msg string) error { return badRequestError(msg) }

// handleRun serves the synchronous entry point.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.authorize(r) {
		writeError(w, http.StatusUnauthorized, "invalid or missing API key")
		return
	}

	req, err := s.decodeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID := uuid.NewString()
	ctx, cancel := context.WithTimeout(r.Context(), s.Config.LLMTimeout*time.Duration(req.MaxResearchLoops+4))
	defer cancel()

	resp, err := s.Orchestrator.Run(ctx, sessionID, req)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("deepsearch run failed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Connection-ID", sessionID)
	_ = json.NewEncoder(w).Encode(resp)
}

// handleRunStream serves the SSE entry point.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.authorize(r) {
		writeError(w, http.StatusUnauthorized, "invalid or missing API key")
		return
	}

	req, err := s.decodeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID := uuid.NewString()
	sw, err := sse.NewWriter(w, sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	isDisconnected := func() bool {
		select {
		case <-r.Context().Done():
			return true
		default:
			return false
		}
	}

	if err := s.Orchestrator.RunStream(r.Context(), sessionID, req, sw, isDisconnected); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("deepsearch run_stream ended with error")
	}
}
