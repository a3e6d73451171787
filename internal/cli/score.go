package cli

import (
	"context"
	"fmt"

	"resumeopt/internal/common"
	"resumeopt/internal/types"
	"resumeopt/internal/utils"

	"github.com/spf13/cobra"
)

var scoreCmd = &cobra.Command{
	Use:   "score [resume-file] [job-description-file]",
	Short: "Score how well a resume matches a job description",
	Long: `Score a resume against a job description on a 0-100 scale and list its
strengths, gaps and missing keywords. The job description may be plain text,
markdown, or a saved HTML posting.`,
	Args:    cobra.ExactArgs(2),
	PreRunE: resolveOutputFormat(&scoreConfig),
	RunE:    runScore,
}

var scoreConfig common.CommandConfig

func init() {
	addOutputFlags(scoreCmd, &scoreConfig)
}

func runScore(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	svc, err := newAIService(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create AI service: %w", err)
	}
	defer closeService(svc, logger)

	err = common.RunAICommand(cmd.Context(), logger, cmd.OutOrStdout(), scoreConfig, args,
		func(contents []string) (types.ScoreResumeInput, error) {
			return types.ScoreResumeInput{Resume: contents[0], JobDescription: contents[1]}, nil
		},
		func(ctx context.Context, in types.ScoreResumeInput) (*types.ResumeScore, error) {
			return svc.ScoreResume(ctx, in)
		},
		func(in types.ScoreResumeInput, c common.CommandConfig) {
			logger.Info("Starting resume scoring",
				"resume_chars", len(in.Resume),
				"job_chars", len(in.JobDescription),
				"job_is_html", utils.IsHTMLFile(args[1]),
				"output_format", c.OutputFormat)
		},
	)
	if err != nil {
		return fmt.Errorf("failed to score resume: %w", err)
	}
	return nil
}
