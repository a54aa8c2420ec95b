package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/axprotocol/core/pkg/config"
	"github.com/axprotocol/core/pkg/contracts"
)

// Runner executes one governed session. The orchestration chain satisfies
// this; tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, objective string, domain contracts.Domain, sessionID string) (*contracts.ChainResult, error)
}

// Server is the kernel's HTTP surface.
type Server struct {
	runner      Runner
	secret      string
	limiter     *ipLimiter
	idempotency IdempotencyStore
	logger      *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAuthSecret enables bearer-token authentication.
func WithAuthSecret(secret string) ServerOption {
	return func(s *Server) { s.secret = secret }
}

// WithIdempotency sets the idempotency key store.
func WithIdempotency(store IdempotencyStore) ServerOption {
	return func(s *Server) { s.idempotency = store }
}

// WithRateLimit overrides the default per-IP request budget.
func WithRateLimit(perSecond float64, burst int) ServerOption {
	return func(s *Server) { s.limiter = newIPLimiter(perSecond, burst) }
}

// NewServer builds the kernel API server around a session runner.
func NewServer(runner Runner, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		runner:      runner,
		limiter:     newIPLimiter(2, 5),
		idempotency: NewMemoryIdempotency(),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the route table with rate limiting applied everywhere and
// authentication on everything except /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /domains", s.handleDomains)
	mux.Handle("POST /run", bearerAuth(s.secret, http.HandlerFunc(s.handleRun)))
	return s.limiter.middleware(mux)
}

func (s *Server) handleDomains(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string][]contracts.Domain{"domains": contracts.Domains})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": config.ProtocolVersion,
	})
}

// runRequest is the POST /run body.
type runRequest struct {
	Objective string `json:"objective"`
	Domain    string `json:"domain,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

const maxRunBody = 1 << 20

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRunBody))
	if err := dec.Decode(&req); err != nil {
		WriteBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.Objective == "" {
		WriteBadRequest(w, "objective is required")
		return
	}
	if req.Domain != "" && !contracts.ValidDomain(contracts.Domain(req.Domain)) {
		WriteBadRequest(w, "unknown domain "+req.Domain)
		return
	}

	if key := r.Header.Get("Idempotency-Key"); key != "" {
		fresh, err := s.idempotency.Reserve(r.Context(), key)
		if err != nil {
			// A dead idempotency store must not take the API down with it.
			s.logger.Warn("idempotency reserve failed", "error", err)
		} else if !fresh {
			WriteConflict(w, "Idempotency-Key already used")
			return
		}
	}

	result, err := s.runner.Run(r.Context(), req.Objective, contracts.Domain(req.Domain), req.SessionID)
	if err != nil {
		WriteInternal(w, err)
		return
	}

	s.logger.Info("session completed",
		"session_id", result.SessionID,
		"domain", result.Domain,
		"no_go", result.Governance.NoGo,
		"errors", len(result.Errors))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}
