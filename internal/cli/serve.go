package cli

import (
	"context"
	"fmt"
	"time"

	"resumeopt/internal/ai"
	"resumeopt/internal/autoapply"
	"resumeopt/internal/events"
	"resumeopt/internal/observability"
	"resumeopt/internal/server"
	"resumeopt/internal/store"
	"resumeopt/internal/tracker"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HTTP API.

Endpoints:
- POST   /api/v1/score
- POST   /api/v1/outreach
- GET    /api/v1/resumes/{resumeID}/sections/{section}
- POST   /api/v1/resumes/{resumeID}/sections/{section}/analyze
- POST   /api/v1/resumes/{resumeID}/sections/{section}/reconcile[?dryRun=true]
- POST   /api/v1/autoapply
- GET    /api/v1/autoapply/{jobID}
- GET    /api/v1/autoapply/{jobID}/events   (Server-Sent Events)
- POST   /api/v1/autoapply/{jobID}/cancel
- DELETE /api/v1/autoapply/{jobID}
- GET    /health, /stats and the Prometheus metrics endpoint`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("port", "p", "", "Port to listen on (default from config)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from config)")
	serveCmd.Flags().String("tls-mode", "", "TLS mode: disabled or server (overrides config)")
	serveCmd.Flags().String("cert-file", "", "Server certificate file (PEM, overrides config)")
	serveCmd.Flags().String("key-file", "", "Server private key file (PEM, overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())
	ctx := cmd.Context()

	override := func(flag string, target *string) {
		if cmd.Flags().Changed(flag) {
			*target, _ = cmd.Flags().GetString(flag)
		}
	}
	override("port", &cfg.Server.Port)
	override("host", &cfg.Server.Host)
	override("tls-mode", &cfg.Server.TLS.Mode)
	override("cert-file", &cfg.Server.TLS.CertFile)
	override("key-file", &cfg.Server.TLS.KeyFile)
	if err := cfg.ValidateTLSConfig(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}
	if err := cfg.ValidateAI(); err != nil {
		return err
	}

	obs, err := observability.NewManager(ctx, cfg.Observability, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			logger.LogError(err, "Failed to shut down observability")
		}
	}()

	svc, err := ai.NewService(ctx, cfg, logger, ai.WithRecorder(obs))
	if err != nil {
		return fmt.Errorf("failed to create AI service: %w", err)
	}
	defer closeService(svc, logger)

	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}

	deps := server.Deps{AI: svc, Store: st, Observability: obs}
	if cfg.AutoApply.Enabled {
		if err := cfg.ValidateAutoApply(); err != nil {
			_ = st.Close()
			return err
		}
		client, err := autoapply.NewClient(cfg.AutoApply, logger)
		if err != nil {
			_ = st.Close()
			return err
		}
		deps.Submitter = client
		deps.Tracker = tracker.NewManager(client, tracker.ManagerConfig{
			PollInterval:  cfg.AutoApply.PollInterval,
			PollTimeout:   cfg.AutoApply.PollTimeout,
			CancelTimeout: cfg.AutoApply.CancelTimeout,
			MaxSessions:   cfg.AutoApply.MaxSessions,
			Retention:     cfg.AutoApply.Retention,
		}, events.NewBus(logger), obs, logger)
	}

	return server.New(cfg, Version, deps, logger).Run(ctx)
}
