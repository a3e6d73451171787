package cli

import (
	"context"

	"resumeopt/internal/ai"
	"resumeopt/internal/common"
	"resumeopt/internal/config"
	"resumeopt/internal/errors"
	"resumeopt/internal/formatters"

	"github.com/spf13/cobra"
)

// addOutputFlags registers --output and --format on cmd.
func addOutputFlags(cmd *cobra.Command, out *common.CommandConfig) {
	cmd.Flags().StringVarP(&out.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&out.OutputFormat, "format", "", "Output format: json, text, or markdown")

	_ = cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return formatters.GlobalRegistry.GetSupportedFormats(), cobra.ShellCompDirectiveNoFileComp
	})
}

// resolveOutputFormat applies the configured default format and validates it.
func resolveOutputFormat(out *common.CommandConfig) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		if out.OutputFormat == "" {
			out.OutputFormat = cfg.App.DefaultFormat
		}
		return common.ValidateOutputFormat(out.OutputFormat, cfg.App.SupportedFormats)
	}
}

// logRecorder reports AI operations in the CLI log instead of metrics.
type logRecorder struct {
	logger *errors.Logger
}

func (r logRecorder) RecordAIOperation(_ context.Context, report ai.OperationReport) {
	args := []any{
		"operation", report.Operation,
		"provider", report.Provider,
		"model", report.Model,
		"duration", report.Duration,
		"fallback", report.Fallback,
	}
	if report.Usage != nil {
		args = append(args,
			"input_tokens", report.Usage.InputTokens,
			"output_tokens", report.Usage.OutputTokens,
			"total_tokens", report.Usage.TotalTokens)
	}
	if report.Err != nil {
		r.logger.Debug("AI operation failed", append(args, "error", report.Err.Error())...)
		return
	}
	r.logger.Info("AI token usage", args...)
}

func newAIService(ctx context.Context, cfg *config.Config, logger *errors.Logger) (*ai.Service, error) {
	if err := cfg.ValidateAI(); err != nil {
		return nil, err
	}
	return ai.NewService(ctx, cfg, logger, ai.WithRecorder(logRecorder{logger: logger}))
}

func closeService(svc *ai.Service, logger *errors.Logger) {
	if err := svc.Close(); err != nil {
		logger.Warn("Failed to close AI service", "error", err)
	}
}
