// Package chi exposes the answering pipeline over HTTP: one answer
// endpoint, a memory lookup for debugging, probes and metrics.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragline/internal/domain"
	"github.com/kailas-cloud/ragline/internal/domain/answer"
	dommem "github.com/kailas-cloud/ragline/internal/domain/memory"
	healthuc "github.com/kailas-cloud/ragline/internal/usecase/health"
	memoryuc "github.com/kailas-cloud/ragline/internal/usecase/memory"
)

// Error codes returned in the JSON error body.
const (
	codeBadRequest         = "bad_request"
	codeInvalidRequest     = "invalid_request"
	codeUnauthorized       = "unauthorized"
	codeNotFound           = "not_found"
	codeRateLimited        = "rate_limited"
	codeQuotaExceeded      = "quota_exceeded"
	codeProviderRejected   = "provider_rejected"
	codeBackendUnavailable = "backend_unavailable"
	codeInternalError      = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server handles the HTTP API.
type Server struct {
	router        Router
	memory        Memory
	health        Health
	logger        *zap.Logger
	askDefaults   answer.Params
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. memory may be nil when
// conversational memory is disabled.
func NewServer(router Router, memory Memory, health Health, logger *zap.Logger) *Server {
	s := &Server{
		router: router,
		memory: memory,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, codeInvalidRequest),
		sentinelHandler(domain.ErrUnauthorized, http.StatusUnauthorized, codeUnauthorized),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrQuotaExceeded, http.StatusPaymentRequired, codeQuotaExceeded),
		sentinelHandler(domain.ErrProviderContent, http.StatusUnprocessableEntity, codeProviderRejected),
		sentinelHandler(domain.ErrBackendUnavailable, http.StatusBadGateway, codeBackendUnavailable),
	}
	return s
}

// WithAskDefaults replaces the per-question defaults applied when a
// request omits an option. Zero fields keep the built-in defaults.
func (s *Server) WithAskDefaults(p answer.Params) *Server {
	s.askDefaults = p
	return s
}

// Register mounts the API routes on the router.
func (s *Server) Register(r chi.Router) {
	r.Post("/api/v1/answer", s.Answer)
	r.Get("/api/v1/memories", s.Memories)
	r.Get("/healthz", s.Liveness)
	r.Get("/readyz", s.Readiness)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

type answerRequest struct {
	Question              string  `json:"question"`
	Mode                  string  `json:"mode,omitempty"`
	AllowGeneralKnowledge bool    `json:"allow_general_knowledge,omitempty"`
	EnableTool            *bool   `json:"enable_tool,omitempty"`
	UseAgent              bool    `json:"use_agent,omitempty"`
	TopK                  int     `json:"top_k,omitempty"`
	SimilarityThreshold   float64 `json:"similarity_threshold,omitempty"`
	RerankTopN            int     `json:"rerank_top_n,omitempty"`
	ConfidenceThreshold   float64 `json:"confidence_threshold,omitempty"`
	MaxIterations         int     `json:"max_iterations,omitempty"`
}

type answerResponse struct {
	Answer     string   `json:"answer"`
	Sources    []string `json:"sources"`
	Mode       string   `json:"mode"`
	Confidence float64  `json:"confidence"`
	UsedTool   bool     `json:"used_tool"`
	Exhausted  bool     `json:"exhausted,omitempty"`
}

// Answer handles POST /api/v1/answer.
func (s *Server) Answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	ask, err := answer.NewAsk(req.Question, s.fillAskDefaults(answer.Params{
		Mode:                  answer.Mode(req.Mode),
		AllowGeneralKnowledge: req.AllowGeneralKnowledge,
		EnableTool:            req.EnableTool,
		UseAgent:              req.UseAgent,
		TopK:                  req.TopK,
		SimilarityThreshold:   req.SimilarityThreshold,
		RerankTopN:            req.RerankTopN,
		ConfidenceThreshold:   req.ConfidenceThreshold,
		MaxIterations:         req.MaxIterations,
	}))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())

	// Memory is an enhancement: recall and record failures are logged
	// and the question is answered without them.
	memoryCtx := ""
	if s.memory != nil {
		matches, err := s.memory.Relevant(ctx, ask.Question(), 0)
		if err != nil {
			s.logger.Warn("Memory recall failed", zap.Error(err))
		} else {
			memoryCtx = memoryuc.ContextBlock(matches)
		}
	}

	ans, err := s.router.Route(ctx, ask, memoryCtx)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	if s.memory != nil {
		if err := s.memory.Record(ctx, ask.Question(), ans); err != nil {
			s.logger.Warn("Memory record failed", zap.Error(err))
		}
	}

	setLLMHeader(w, usage)
	writeJSON(w, http.StatusOK, answerToResponse(ans))
}

// fillAskDefaults fills options the request left at zero from the
// server-level defaults; NewAsk covers whatever remains zero.
func (s *Server) fillAskDefaults(p answer.Params) answer.Params {
	d := s.askDefaults
	if p.TopK == 0 {
		p.TopK = d.TopK
	}
	if p.SimilarityThreshold == 0 {
		p.SimilarityThreshold = d.SimilarityThreshold
	}
	if p.RerankTopN == 0 {
		p.RerankTopN = d.RerankTopN
	}
	if p.ConfidenceThreshold == 0 {
		p.ConfidenceThreshold = d.ConfidenceThreshold
	}
	if p.MaxIterations == 0 {
		p.MaxIterations = d.MaxIterations
	}
	return p
}

func answerToResponse(ans answer.Answer) answerResponse {
	sources := ans.Sources()
	if sources == nil {
		sources = []string{}
	}
	return answerResponse{
		Answer:     ans.Text(),
		Sources:    sources,
		Mode:       string(ans.Mode()),
		Confidence: ans.Confidence(),
		UsedTool:   ans.UsedTool(),
		Exhausted:  ans.Exhausted(),
	}
}

type memoryItem struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	Summary    string    `json:"summary"`
	Answer     string    `json:"answer"`
	Similarity float64   `json:"similarity"`
	Weight     float64   `json:"weight"`
	CreatedAt  time.Time `json:"created_at"`
}

type memoryListResponse struct {
	Items []memoryItem `json:"items"`
	Total int          `json:"total"`
}

// Memories handles GET /api/v1/memories.
func (s *Server) Memories(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "conversational memory is disabled")
		return
	}

	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "query parameter q is required")
		return
	}

	k := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "k must be a positive integer")
			return
		}
		k = n
	}

	matches, err := s.memory.Relevant(r.Context(), q, k)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]memoryItem, len(matches))
	for i := range matches {
		items[i] = memoryItemFromMatch(&matches[i])
	}

	writeJSON(w, http.StatusOK, memoryListResponse{Items: items, Total: len(items)})
}

func memoryItemFromMatch(m *dommem.Match) memoryItem {
	e := m.Entry()
	return memoryItem{
		ID:         e.ID(),
		Question:   e.Question(),
		Summary:    e.Summary(),
		Answer:     e.Answer(),
		Similarity: m.Similarity(),
		Weight:     m.Weight(),
		CreatedAt:  e.CreatedAt().UTC(),
	}
}

// Liveness handles GET /healthz. It only proves the process serves requests.
func (s *Server) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readinessResponse struct {
	Status string                          `json:"status"`
	Checks map[string]healthuc.CheckResult `json:"checks"`
}

// Readiness handles GET /readyz.
func (s *Server) Readiness(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, readinessResponse{
		Status: string(report.Status),
		Checks: report.Checks,
	})
}

func setLLMHeader(w http.ResponseWriter, usage *domain.Usage) {
	if usage != nil && usage.Calls > 0 {
		w.Header().Set("X-LLM-Tokens", strconv.Itoa(usage.TotalTokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage maps an error onto text safe to show a client.
// Validation errors carry their own caller-facing message; everything
// else collapses to its sentinel.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidRequest) {
		return err.Error()
	}
	sentinels := []error{
		domain.ErrUnauthorized,
		domain.ErrNotFound,
		domain.ErrRateLimited,
		domain.ErrQuotaExceeded,
		domain.ErrProviderContent,
		domain.ErrBackendUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
