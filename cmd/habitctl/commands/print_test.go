package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/benvon/habit-tracker/internal/analytics"
	"github.com/benvon/habit-tracker/internal/challenges"
	"github.com/benvon/habit-tracker/internal/models"
	"github.com/google/uuid"
)

func TestPrintReport(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	report := &challenges.ReconcileReport{
		ChallengeID: uuid.New(),
		Status:      models.ChallengeStatusCompleted,
		Updates: []challenges.ParticipantUpdate{
			{UserID: userID, Status: models.ParticipantStatusAccepted, PreviousProgress: 4, Progress: 5, NewlyCompleted: true},
		},
		ChallengeCompleted: true,
		Failures:           []challenges.ParticipantFailure{{UserID: uuid.New(), Error: "boom"}},
	}

	var buf bytes.Buffer
	printReport(&buf, report)
	out := buf.String()

	for _, want := range []string{"completed", userID.String() + "  accepted  4 -> 5 (completed)", "FAILED: boom", "Challenge completed."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintLeaderboard(t *testing.T) {
	t.Parallel()

	result := &analytics.LeaderboardResult{
		Window:      analytics.LeaderboardMonth,
		GeneratedAt: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
		Entries: []analytics.LeaderboardEntry{
			{Rank: 1, DisplayName: "ada", Score: 900},
			{Rank: 2, DisplayName: "grace", Score: 800},
		},
	}

	tests := []struct {
		name    string
		limit   int
		present []string
		absent  []string
	}{
		{name: "all rows", limit: 0, present: []string{"ada", "grace"}},
		{name: "limited", limit: 1, present: []string{"ada"}, absent: []string{"grace"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			printLeaderboard(&buf, result, tt.limit)
			out := buf.String()

			if !strings.Contains(out, "Leaderboard (month) generated 2024-03-10 12:00:00") {
				t.Errorf("missing header:\n%s", out)
			}
			for _, s := range tt.present {
				if !strings.Contains(out, s) {
					t.Errorf("output missing %q", s)
				}
			}
			for _, s := range tt.absent {
				if strings.Contains(out, s) {
					t.Errorf("output unexpectedly contains %q", s)
				}
			}
		})
	}
}
