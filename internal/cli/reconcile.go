package cli

import (
	"fmt"

	"resumeopt/internal/common"
	"resumeopt/internal/reconcile"
	"resumeopt/internal/store"
	"resumeopt/internal/types"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [selection-file]",
	Short: "Apply selected replacements and additions to a resume section",
	Long: `Merge the analysis verdicts and the replacements and additions you chose into
the final item list, keeping suitable items first and never exceeding the
configured cap.

The selection file is JSON with "verdicts", "replacements", "additions" and,
when the items are not in the store, "original". With --resume-id the items
are read from the store; --save writes the result back.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: resolveOutputFormat(&reconcileConfig.CommandConfig),
	RunE:    runReconcile,
}

var reconcileConfig struct {
	common.CommandConfig
	ResumeID string
	Section  string
	Save     bool
}

func init() {
	addOutputFlags(reconcileCmd, &reconcileConfig.CommandConfig)
	reconcileCmd.Flags().StringVar(&reconcileConfig.ResumeID, "resume-id", "", "Read items from the store for this resume")
	reconcileCmd.Flags().StringVar(&reconcileConfig.Section, "section", "", "Resume section in the store (default from config)")
	reconcileCmd.Flags().BoolVar(&reconcileConfig.Save, "save", false, "Write the final items back to the store")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())
	ctx := cmd.Context()

	if reconcileConfig.Save && reconcileConfig.ResumeID == "" {
		return fmt.Errorf("--save requires --resume-id")
	}

	var req types.ReconcileInput
	if err := common.NewFileProcessor(logger).ReadJSON(args[0], &req); err != nil {
		return err
	}

	section := reconcileConfig.Section
	if section == "" {
		section = cfg.Reconcile.DefaultSection
	}

	original := req.Original
	var st store.ItemStore
	if reconcileConfig.ResumeID != "" {
		var err error
		st, err = store.Open(ctx, cfg.Store, logger)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		stored, err := st.Items(ctx, reconcileConfig.ResumeID, section)
		if err != nil {
			return err
		}
		if len(stored) > 0 {
			original = stored
		}
	}

	policy := reconcile.Policy{
		Cap:            cfg.Reconcile.Cap,
		Threshold:      cfg.Reconcile.SuitabilityThreshold,
		KeepUnanalyzed: cfg.Reconcile.KeepUnanalyzed,
	}
	analyzed := reconcile.Join(original, req.Verdicts)
	if err := reconcile.ValidateSelection(analyzed, req.Replacements, policy); err != nil {
		return err
	}
	result := reconcile.Reconcile(reconcile.Input{
		Items:        analyzed,
		Replacements: req.Replacements,
		Additions:    req.Additions,
	}, policy)

	logger.Info("Reconciled resume section",
		"section", section,
		"kept", result.KeptCount,
		"added", result.AddedCount,
		"dropped", result.DroppedCount)

	if reconcileConfig.Save {
		if err := st.ReplaceItems(ctx, reconcileConfig.ResumeID, section, result.FinalItems); err != nil {
			return err
		}
		logger.Info("Saved final items", "resume_id", reconcileConfig.ResumeID, "section", section)
	}

	return common.NewOutputHandler(logger).WithStdout(cmd.OutOrStdout()).
		HandleOutput(result, reconcileConfig.CommandConfig)
}
