package commands

import (
	"fmt"
	"io"

	"github.com/benvon/habit-tracker/internal/analytics"
	"github.com/benvon/habit-tracker/internal/database"
	"github.com/benvon/habit-tracker/internal/services/leaderboard"
	"github.com/spf13/cobra"
)

// NewLeaderboardCmd creates the leaderboard command
func NewLeaderboardCmd() *cobra.Command {
	var window string
	var limit int

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Compute a leaderboard",
		Long:  "Score every eligible user for a window straight from the database, ignoring the cache.",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := analytics.ParseLeaderboardWindow(window)
			if err != nil {
				return err
			}

			db, closeDB, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			service := leaderboard.NewService(
				database.NewUserRepository(db),
				database.NewHabitRepository(db),
				database.NewEntryRepository(db),
				nil,
				nil,
			)
			result, err := service.Compute(cmd.Context(), w)
			if err != nil {
				return fmt.Errorf("failed to compute leaderboard: %w", err)
			}

			printLeaderboard(cmd.OutOrStdout(), result, limit)
			return nil
		},
	}

	cmd.Flags().StringVar(&window, "window", string(analytics.LeaderboardWeek), "Window: week, month or all")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows to print (0 for all)")
	return cmd
}

func printLeaderboard(w io.Writer, result *analytics.LeaderboardResult, limit int) {
	fmt.Fprintf(w, "Leaderboard (%s) generated %s\n", result.Window, result.GeneratedAt.Format("2006-01-02 15:04:05"))
	if len(result.Entries) == 0 {
		fmt.Fprintln(w, "No eligible users.")
	}
	for i, e := range result.Entries {
		if limit > 0 && i >= limit {
			break
		}
		fmt.Fprintf(w, "%3d. %-24s score=%d completions=%d rate=%d%% streak=%d\n",
			e.Rank, e.DisplayName, e.Score, e.TotalCompletions, e.CompletionRate, e.CurrentStreak)
	}
	for _, s := range result.Skipped {
		fmt.Fprintf(w, "  skipped %s: %s\n", s.UserID, s.Reason)
	}
}
