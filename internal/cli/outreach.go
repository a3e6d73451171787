package cli

import (
	"fmt"

	"resumeopt/internal/common"
	"resumeopt/internal/types"

	"github.com/spf13/cobra"
)

var outreachCmd = &cobra.Command{
	Use:   "outreach",
	Short: "Draft a short outreach message to a recruiter or hiring manager",
	Long: `Draft a personalized outreach message. Pass --resume to let the message
draw on your background.

  resumeopt outreach --name "Ana Souza" --company Acme --role "Platform Engineer"`,
	Args:    cobra.NoArgs,
	PreRunE: resolveOutputFormat(&outreachConfig.CommandConfig),
	RunE:    runOutreach,
}

var outreachConfig struct {
	common.CommandConfig
	Input      types.OutreachInput
	ResumeFile string
}

func init() {
	addOutputFlags(outreachCmd, &outreachConfig.CommandConfig)
	f := outreachCmd.Flags()
	f.StringVar(&outreachConfig.Input.RecipientName, "name", "", "Recipient name")
	f.StringVar(&outreachConfig.Input.RecipientRole, "recipient-role", "", "Recipient role, e.g. Technical Recruiter")
	f.StringVar(&outreachConfig.Input.Company, "company", "", "Company name")
	f.StringVar(&outreachConfig.Input.TargetRole, "role", "", "Role you are applying for")
	f.StringVar(&outreachConfig.Input.Tone, "tone", "", "Tone, e.g. friendly or formal")
	f.StringVar(&outreachConfig.ResumeFile, "resume", "", "Resume or summary file")
	_ = outreachCmd.MarkFlagRequired("name")
	_ = outreachCmd.MarkFlagRequired("company")
	_ = outreachCmd.MarkFlagRequired("role")
}

func runOutreach(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	in := outreachConfig.Input
	if outreachConfig.ResumeFile != "" {
		content, err := common.NewFileProcessor(logger).ReadFile(outreachConfig.ResumeFile)
		if err != nil {
			return err
		}
		in.ResumeSummary = content
	}

	svc, err := newAIService(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create AI service: %w", err)
	}
	defer closeService(svc, logger)

	logger.Info("Drafting outreach message", "company", in.Company, "role", in.TargetRole)
	msg, err := svc.GenerateOutreach(cmd.Context(), in)
	if err != nil {
		return fmt.Errorf("failed to generate outreach message: %w", err)
	}
	return common.NewOutputHandler(logger).WithStdout(cmd.OutOrStdout()).
		HandleOutput(msg, outreachConfig.CommandConfig)
}
