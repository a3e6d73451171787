package server

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

// setupRoutes builds the mux and wraps it in cors and otelhttp. API routes
// additionally pass rate limiting, authentication and the size limit.
func (s *Server) setupRoutes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/score", s.handleScore)
	api.HandleFunc("POST /api/v1/outreach", s.handleOutreach)
	api.HandleFunc("GET /api/v1/resumes/{resumeID}/sections/{section}", s.handleGetItems)
	api.HandleFunc("POST /api/v1/resumes/{resumeID}/sections/{section}/analyze", s.handleAnalyze)
	api.HandleFunc("POST /api/v1/resumes/{resumeID}/sections/{section}/reconcile", s.handleReconcile)
	api.HandleFunc("POST /api/v1/autoapply", s.handleSubmit)
	api.HandleFunc("GET /api/v1/autoapply/{jobID}", s.handleJobStatus)
	api.HandleFunc("GET /api/v1/autoapply/{jobID}/events", s.handleJobEvents)
	api.HandleFunc("POST /api/v1/autoapply/{jobID}/cancel", s.handleCancelJob)
	api.HandleFunc("DELETE /api/v1/autoapply/{jobID}", s.handleTeardownJob)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /stats", s.statsHandler)
	if obs := s.deps.Observability; obs != nil && obs.MetricsHandler() != nil {
		mux.Handle("GET "+obs.MetricsEndpoint(), obs.MetricsHandler())
	}
	mux.Handle("/api/", s.rateLimitMiddleware(s.authMiddleware(s.requestSizeLimitMiddleware(api))))

	var handler http.Handler = mux
	if s.cfg.Server.CORS.Enabled {
		handler = cors.New(cors.Options{
			AllowedOrigins:   s.cfg.Server.CORS.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Authorization", "X-API-Key", "X-Request-ID"},
			AllowCredentials: s.cfg.Server.CORS.AllowCredentials,
			MaxAge:           s.cfg.Server.CORS.MaxAge,
		}).Handler(handler)
	}
	if s.deps.Observability != nil {
		handler = s.deps.Observability.HTTPMiddleware("resumeopt.http")(handler)
	}
	return handler
}

// authMiddleware accepts X-API-Key or a bearer token. No configured keys
// means authentication is off.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.apiKeys) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := requestAPIKey(r)
		if apiKey == "" {
			s.logger.Info("Authentication failed: missing API key",
				"endpoint", r.URL.Path,
				"client_ip", getClientIP(r))
			writeErrorResponse(w, "Missing API key", "X-API-Key header or Authorization Bearer token required", http.StatusUnauthorized)
			return
		}
		if !s.apiKeys[apiKey] {
			s.logger.Info("Authentication failed: invalid API key",
				"endpoint", r.URL.Path,
				"client_ip", getClientIP(r),
				"api_key_prefix", maskAPIKey(apiKey))
			writeErrorResponse(w, "Invalid API key", "Unauthorized access", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestSizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.MaxRequestSize > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxRequestSize)
		}
		next.ServeHTTP(w, r)
	})
}

func requestAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return after
	}
	return ""
}

// maskAPIKey keeps the first 8 characters for logs.
func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return "****"
	}
	return apiKey[:8] + "****"
}
