package commands

import (
	"fmt"
	"time"

	"github.com/benvon/habit-tracker/internal/analytics"
	"github.com/benvon/habit-tracker/internal/database"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewStreakCmd creates the streak command
func NewStreakCmd() *cobra.Command {
	var habitID string
	var date string

	cmd := &cobra.Command{
		Use:   "streak",
		Short: "Show a habit's streaks",
		Long:  "Print the current streak as of --date (default today, UTC) and the longest streak ever.",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(habitID)
			if err != nil {
				return fmt.Errorf("invalid --habit: %w", err)
			}
			ref := time.Now().UTC()
			if date != "" {
				if ref, err = analytics.ParseDate(date); err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
			}

			db, closeDB, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			habit, err := database.NewHabitRepository(db).GetByID(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to load habit: %w", err)
			}
			entries, err := database.NewEntryRepository(db).ListByHabit(cmd.Context(), id, nil)
			if err != nil {
				return fmt.Errorf("failed to load entries: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", habit.Name, habit.ID)
			fmt.Fprintf(out, "  current streak as of %s: %d\n", analytics.DateKey(ref), analytics.ComputeStreak(entries, ref))
			fmt.Fprintf(out, "  longest streak: %d\n", analytics.ComputeLongestStreak(entries))
			return nil
		},
	}

	cmd.Flags().StringVar(&habitID, "habit", "", "Habit ID (required)")
	cmd.Flags().StringVar(&date, "date", "", "Reference date YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("habit")
	return cmd
}
