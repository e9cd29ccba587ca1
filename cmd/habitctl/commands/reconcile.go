package commands

import (
	"fmt"
	"io"

	"github.com/benvon/habit-tracker/internal/challenges"
	"github.com/benvon/habit-tracker/internal/database"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewReconcileCmd creates the reconcile command
func NewReconcileCmd() *cobra.Command {
	var challengeID string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile a challenge's progress now",
		Long:  "Recompute participant progress and completion for one challenge, bypassing the job queue.",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(challengeID)
			if err != nil {
				return fmt.Errorf("invalid --challenge: %w", err)
			}

			db, closeDB, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			service := challenges.NewService(
				database.NewChallengeRepository(db),
				database.NewHabitRepository(db),
				database.NewEntryRepository(db),
				nil,
			)
			report, err := service.Reconcile(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to reconcile challenge: %w", err)
			}

			printReport(cmd.OutOrStdout(), report)
			if len(report.Failures) > 0 {
				return fmt.Errorf("%d participant(s) could not be reconciled", len(report.Failures))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&challengeID, "challenge", "", "Challenge ID (required)")
	_ = cmd.MarkFlagRequired("challenge")
	return cmd
}

func printReport(w io.Writer, report *challenges.ReconcileReport) {
	fmt.Fprintf(w, "Challenge %s: %s\n", report.ChallengeID, report.Status)
	for _, u := range report.Updates {
		marker := ""
		if u.NewlyCompleted {
			marker = " (completed)"
		}
		fmt.Fprintf(w, "  %s  %s  %d -> %d%s\n", u.UserID, u.Status, u.PreviousProgress, u.Progress, marker)
	}
	for _, f := range report.Failures {
		fmt.Fprintf(w, "  %s  FAILED: %s\n", f.UserID, f.Error)
	}
	if report.ChallengeCompleted {
		fmt.Fprintln(w, "Challenge completed.")
	}
}
