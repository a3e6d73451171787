package cli

import (
	"context"
	"fmt"
	"io"

	"resumeopt/internal/autoapply"
	"resumeopt/internal/common"
	"resumeopt/internal/errors"
	"resumeopt/internal/formatters"
	"resumeopt/internal/tracker"
	"resumeopt/internal/types"

	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Submit a job application through the auto-apply service",
	Long: `Submit an application and follow its progress until it completes or fails.
Progress lines go to stderr; the final job state is written in the chosen
format. Press Ctrl-C to cancel a job that is still processing.

  resumeopt apply --job-url https://jobs.example.com/123 --resume-id r1`,
	Args:    cobra.NoArgs,
	PreRunE: resolveOutputFormat(&applyConfig.CommandConfig),
	RunE:    runApply,
}

var applyConfig struct {
	common.CommandConfig
	Input           types.SubmitApplicationInput
	CoverLetterFile string
	Detach          bool
}

func init() {
	addOutputFlags(applyCmd, &applyConfig.CommandConfig)
	f := applyCmd.Flags()
	f.StringVar(&applyConfig.Input.JobURL, "job-url", "", "URL of the job posting")
	f.StringVar(&applyConfig.Input.ResumeID, "resume-id", "", "Resume to apply with")
	f.StringVar(&applyConfig.Input.ResumeURL, "resume-url", "", "Public URL of the rendered resume")
	f.StringVar(&applyConfig.CoverLetterFile, "cover-letter", "", "Cover letter file")
	f.StringToStringVar(&applyConfig.Input.Profile, "profile", nil, "Profile fields as key=value pairs")
	f.BoolVar(&applyConfig.Detach, "detach", false, "Print the job ID and exit without following progress")
	_ = applyCmd.MarkFlagRequired("job-url")
	_ = applyCmd.MarkFlagRequired("resume-id")
}

func runApply(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())
	ctx := cmd.Context()

	if err := cfg.ValidateAutoApply(); err != nil {
		return err
	}

	in := applyConfig.Input
	if applyConfig.CoverLetterFile != "" {
		content, err := common.NewFileProcessor(logger).ReadFile(applyConfig.CoverLetterFile)
		if err != nil {
			return err
		}
		in.CoverLetter = content
	}

	client, err := autoapply.NewClient(cfg.AutoApply, logger)
	if err != nil {
		return err
	}

	out, err := client.Submit(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to submit application: %w", err)
	}
	logger.Info("Application submitted", "job_id", out.JobID, "status_url", out.StatusURL)

	if applyConfig.Detach {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), out.JobID)
		return err
	}

	t := tracker.New(client, logger,
		tracker.WithInterval(cfg.AutoApply.PollInterval),
		tracker.WithPollTimeout(cfg.AutoApply.PollTimeout),
		tracker.WithCancelTimeout(cfg.AutoApply.CancelTimeout),
	)
	final, err := follow(ctx, t, out.JobID, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	if err := common.NewOutputHandler(logger).WithStdout(cmd.OutOrStdout()).
		HandleOutput(final, applyConfig.CommandConfig); err != nil {
		return err
	}
	return jobOutcome(final)
}

// follow tracks jobID, printing each snapshot to progress, until the session
// ends. Cancelling ctx cancels the job.
func follow(ctx context.Context, t *tracker.Tracker, jobID string, progress io.Writer) (types.JobSubmission, error) {
	// The tracker outlives ctx so an interrupt can still send the cancel request.
	if err := t.Start(context.WithoutCancel(ctx), jobID); err != nil {
		return types.JobSubmission{}, err
	}
	updates, unsubscribe := t.Subscribe()
	defer unsubscribe()

	line := &formatters.JobTextFormatter{}
	show := func(snap types.JobSubmission) {
		if s, err := line.Format(snap); err == nil {
			_, _ = io.WriteString(progress, s)
		}
	}

	for {
		select {
		case ev, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			show(ev.Snapshot)
		case <-t.Done():
			t.Wait()
			snap := t.Snapshot()
			show(snap)
			return snap, nil
		case <-ctx.Done():
			t.Cancel(context.Background())
			t.Teardown()
			t.Wait()
			snap := t.Snapshot()
			show(snap)
			return snap, nil
		}
	}
}

// jobOutcome turns a finished snapshot into the command's exit status.
func jobOutcome(job types.JobSubmission) error {
	switch {
	case job.Status == types.JobStatusFailed:
		return errors.NewTrackingError(errors.ErrCodeSubmissionFailed, "auto-apply job failed", nil).
			WithContext("job_id", job.ID).
			WithContext("reason", job.Error)
	case job.Session == types.SessionErrored:
		return errors.NewTrackingError(errors.ErrCodePollingFailed, "lost track of the auto-apply job", nil).
			WithContext("job_id", job.ID).
			WithContext("reason", job.TrackingError)
	case !job.Status.Terminal():
		return errors.NewTrackingError(errors.ErrCodePollingFailed, "stopped following the auto-apply job", nil).
			WithContext("job_id", job.ID)
	}
	return nil
}
