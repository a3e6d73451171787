// Package server exposes the AI operations, the resume store, and auto-apply
// tracking over HTTP.
package server

import (
	"context"
	"net/http"

	"resumeopt/internal/config"
	"resumeopt/internal/errors"
	"resumeopt/internal/observability"
	"resumeopt/internal/reconcile"
	"resumeopt/internal/store"
	"resumeopt/internal/tracker"
	"resumeopt/internal/types"
)

// AIService is the subset of ai.Service the handlers call.
type AIService interface {
	AnalyzeProjects(ctx context.Context, in types.AnalyzeProjectsInput) (*types.ProjectAnalysis, error)
	ScoreResume(ctx context.Context, in types.ScoreResumeInput) (*types.ResumeScore, error)
	GenerateOutreach(ctx context.Context, in types.OutreachInput) (*types.OutreachMessage, error)
	Health() map[string]any
}

// Submitter starts auto-apply jobs.
type Submitter interface {
	Submit(ctx context.Context, in types.SubmitApplicationInput) (*types.SubmitApplicationOutput, error)
}

// Deps are the collaborators a Server routes requests to. Submitter and
// Tracker are nil when auto-apply is disabled.
type Deps struct {
	AI            AIService
	Store         store.ItemStore
	Submitter     Submitter
	Tracker       *tracker.Manager
	Observability *observability.Manager
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Server holds the HTTP surface and its middleware state.
type Server struct {
	cfg     *config.Config
	version string
	deps    Deps
	policy  reconcile.Policy
	apiKeys map[string]bool
	limiter *RateLimiter
	certs   *CertReloader
	logger  *errors.Logger
}

// New creates a server. Call Handler to mount it, or Run to serve it.
func New(cfg *config.Config, version string, deps Deps, logger *errors.Logger) *Server {
	apiKeys := make(map[string]bool)
	for _, key := range cfg.Server.APIKeys {
		if key != "" {
			apiKeys[key] = true
		}
	}

	var limiter *RateLimiter
	if cfg.Server.RateLimit.Enabled {
		limiter = NewRateLimiter(cfg.Server.RateLimit.RequestsPerMin, cfg.Server.RateLimit.BurstCapacity, logger)
	}

	return &Server{
		cfg:     cfg,
		version: version,
		deps:    deps,
		policy: reconcile.Policy{
			Cap:            cfg.Reconcile.Cap,
			Threshold:      cfg.Reconcile.SuitabilityThreshold,
			KeepUnanalyzed: cfg.Reconcile.KeepUnanalyzed,
		},
		apiKeys: apiKeys,
		limiter: limiter,
		logger:  logger,
	}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

func (s *Server) autoApplyEnabled() bool {
	return s.deps.Submitter != nil && s.deps.Tracker != nil
}
