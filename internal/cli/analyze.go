package cli

import (
	"context"
	"fmt"

	"resumeopt/internal/common"
	"resumeopt/internal/store"
	"resumeopt/internal/types"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [items-file] [job-description-file]",
	Short: "Analyze which resume projects fit a job",
	Long: `Ask the AI which of a resume's project items suit a job description, which
should be replaced and what could be added.

Items come from a JSON file holding an array of {"title", "content"} objects,
or from the store with --resume-id, in which case only the job description
file is given:

  resumeopt analyze items.json job.md
  resumeopt analyze --resume-id r1 --section projects job.md`,
	Args:    cobra.RangeArgs(1, 2),
	PreRunE: resolveOutputFormat(&analyzeConfig.CommandConfig),
	RunE:    runAnalyze,
}

var analyzeConfig struct {
	common.CommandConfig
	ResumeID   string
	Section    string
	ResumeFile string
}

func init() {
	addOutputFlags(analyzeCmd, &analyzeConfig.CommandConfig)
	analyzeCmd.Flags().StringVar(&analyzeConfig.ResumeID, "resume-id", "", "Load items from the store for this resume")
	analyzeCmd.Flags().StringVar(&analyzeConfig.Section, "section", "", "Resume section in the store (default from config)")
	analyzeCmd.Flags().StringVar(&analyzeConfig.ResumeFile, "resume", "", "Optional full resume text for context")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())
	fp := common.NewFileProcessor(logger)

	var items []types.CandidateItem
	switch {
	case analyzeConfig.ResumeID != "":
		if len(args) != 1 {
			return fmt.Errorf("with --resume-id only the job description file is expected, got %d files", len(args))
		}
		section := analyzeConfig.Section
		if section == "" {
			section = cfg.Reconcile.DefaultSection
		}
		st, err := store.Open(cmd.Context(), cfg.Store, logger)
		if err != nil {
			return err
		}
		items, err = st.Items(cmd.Context(), analyzeConfig.ResumeID, section)
		_ = st.Close()
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return fmt.Errorf("section %q of resume %q has no items", section, analyzeConfig.ResumeID)
		}
	default:
		if len(args) != 2 {
			return fmt.Errorf("expected an items file and a job description file, got %d files", len(args))
		}
		if err := fp.ReadJSON(args[0], &items); err != nil {
			return err
		}
		args = args[1:]
	}

	var resumeText string
	if analyzeConfig.ResumeFile != "" {
		content, err := fp.ReadFile(analyzeConfig.ResumeFile)
		if err != nil {
			return err
		}
		resumeText = content
	}

	svc, err := newAIService(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create AI service: %w", err)
	}
	defer closeService(svc, logger)

	err = common.RunAICommand(cmd.Context(), logger, cmd.OutOrStdout(), analyzeConfig.CommandConfig, args,
		func(contents []string) (types.AnalyzeProjectsInput, error) {
			return types.AnalyzeProjectsInput{Items: items, JobDescription: contents[0], ResumeText: resumeText}, nil
		},
		func(ctx context.Context, in types.AnalyzeProjectsInput) (*types.ProjectAnalysis, error) {
			return svc.AnalyzeProjects(ctx, in)
		},
		func(in types.AnalyzeProjectsInput, c common.CommandConfig) {
			logger.Info("Starting project analysis",
				"items", len(in.Items),
				"job_chars", len(in.JobDescription),
				"output_format", c.OutputFormat)
		},
	)
	if err != nil {
		return fmt.Errorf("failed to analyze projects: %w", err)
	}
	return nil
}
