package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/wspotter/kit/tool"
)

// RootMessage is the greeting served at GET /.
const RootMessage = "Kit is purring. Atomic Era Middleware Active."

// ServerConfig controls daemon HTTP server dependencies.
type ServerConfig struct {
	Registry *tool.Registry
	// History backs /api/runs; nil disables those routes.
	History tool.Store
	// Metrics is mounted at /metrics when set.
	Metrics    http.Handler
	CORSOrigin string
	MaxBody    int64
	Logger     *slog.Logger
}

// Server exposes discovery and dispatch over HTTP.
type Server struct {
	registry   *tool.Registry
	history    tool.Store
	metrics    http.Handler
	corsOrigin string
	maxBody    int64
	logger     *slog.Logger
}

// NewServer constructs a daemon API server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("daemon: registry is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		registry:   cfg.Registry,
		history:    cfg.History,
		metrics:    cfg.Metrics,
		corsOrigin: cfg.CORSOrigin,
		maxBody:    cfg.MaxBody,
		logger:     cfg.Logger,
	}, nil
}

// Handler returns an http.Handler exposing daemon APIs.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /modules/list", s.handleListModules)
	mux.HandleFunc("POST /modules/run/{tool_id}", s.handleRunModule)

	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	handler := withCORS(mux, s.corsOrigin)
	return maxBodyMiddleware(handler, s.maxBody)
}

type apiErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type apiErrorResponse struct {
	Error apiErrorDetail `json:"error"`
}

// moduleSummary is one entry of GET /modules/list.
type moduleSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	Module      string `json:"module"`
	Version     string `json:"version"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": RootMessage})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	tools, err := s.registry.Discover(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	out := make([]moduleSummary, 0, len(tools))
	for _, t := range tools {
		out = append(out, moduleSummary{
			ID:          t.ID,
			Name:        t.Name,
			Icon:        t.Icon,
			Description: t.Description,
			Module:      t.Module,
			Version:     t.Version,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRunModule(w http.ResponseWriter, r *http.Request) {
	toolID := strings.TrimSpace(r.PathValue("tool_id"))

	payload, err := decodePayload(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), nil)
		return
	}

	result, err := s.registry.Dispatch(r.Context(), toolID, payload)
	if result.RequestID != "" {
		w.Header().Set("X-Request-Id", result.RequestID)
	}
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSONError(w, http.StatusNotFound, "HISTORY_DISABLED", "dispatch history is disabled", nil)
		return
	}
	limit := 0
	if raw, ok := queryParam(r, "limit"); ok {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSONError(w, http.StatusBadRequest, "INVALID_QUERY", "limit must be a non-negative integer", nil)
			return
		}
		limit = parsed
	}

	records, err := s.history.List(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	toolID := strings.TrimSpace(r.URL.Query().Get("tool_id"))
	writeJSON(w, http.StatusOK, map[string]any{
		"runs": tool.FilterRecords(records, toolID, limit),
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSONError(w, http.StatusNotFound, "HISTORY_DISABLED", "dispatch history is disabled", nil)
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	record, found, err := s.history.Get(r.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	if !found {
		writeJSONError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("run %q not found", id), nil)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) writeDispatchError(w http.ResponseWriter, err error) {
	toolErr, ok := tool.AsToolError(err)
	if !ok {
		s.logger.Error("dispatch failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	var details any
	if len(toolErr.Details) > 0 {
		details = toolErr.Details
	}
	writeJSONError(w, dispatchStatus(toolErr.Code), toolErr.Code, toolErr.Message, details)
}

func dispatchStatus(code string) int {
	switch code {
	case tool.ToolErrorCodeNotFound:
		return http.StatusNotFound
	case tool.ToolErrorCodeNotRunnable:
		return http.StatusNotImplemented
	case tool.ToolErrorCodeInvalidPayload:
		return http.StatusBadRequest
	case tool.ToolErrorCodeTimeout:
		return http.StatusGatewayTimeout
	case tool.ToolErrorCodeTransportFailure, tool.ToolErrorCodeDecodeFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodePayload reads the request body as one JSON object. An empty body is
// an empty payload.
func decodePayload(r *http.Request) (map[string]any, error) {
	decoder := json.NewDecoder(r.Body)
	var payload map[string]any
	if err := decoder.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("request body must be a JSON object: %w", err)
	}
	if decoder.More() {
		return nil, errors.New("request body must contain a single JSON object")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, nil
}

func queryParam(r *http.Request, key string) (string, bool) {
	values, ok := r.URL.Query()[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func withCORS(next http.Handler, allowedOrigin string) http.Handler {
	origin := strings.TrimSpace(allowedOrigin)
	if origin == "" {
		origin = "*"
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func maxBodyMiddleware(next http.Handler, maxBody int64) http.Handler {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, apiErrorResponse{
		Error: apiErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}
