package cli

import (
	"context"

	"resumeopt/internal/config"
	"resumeopt/internal/errors"

	"github.com/spf13/cobra"
)

type configKeyType struct{}
type loggerKeyType struct{}

var configKey = configKeyType{}
var loggerKey = loggerKeyType{}

var rootCmd = &cobra.Command{
	Use:   "resumeopt",
	Short: "AI assisted resume optimization and job auto-apply",
	Long: `resumeopt scores a resume against a job description, analyzes which resume
projects fit a job, reconciles suggested replacements into the stored resume,
drafts recruiter outreach, and submits applications to an auto-apply service
while following their progress.`,
	SilenceUsage: true,
}

// Execute runs the root command with cfg and logger available to every subcommand.
func Execute(ctx context.Context, cfg *config.Config, logger *errors.Logger) error {
	ctx = context.WithValue(ctx, configKey, cfg)
	ctx = context.WithValue(ctx, loggerKey, logger)
	rootCmd.SetContext(ctx)
	return rootCmd.Execute()
}

func getConfigFromContext(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey).(*config.Config); ok {
		return cfg
	}
	panic("config not found in context")
}

func getLoggerFromContext(ctx context.Context) *errors.Logger {
	if logger, ok := ctx.Value(loggerKey).(*errors.Logger); ok {
		return logger
	}
	panic("logger not found in context")
}

func init() {
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(outreachCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
