package challenges

import (
	"errors"
	"testing"
	"time"

	"github.com/benvon/habit-tracker/internal/analytics"
	"github.com/benvon/habit-tracker/internal/models"
	"github.com/google/uuid"
)

func date(s string) time.Time {
	t, err := analytics.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func completedDays(habitID uuid.UUID, from string, n int) []models.HabitEntry {
	start := date(from)
	out := make([]models.HabitEntry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.HabitEntry{HabitID: habitID, Date: start.AddDate(0, 0, i), Completed: true})
	}
	return out
}

func marchChallenge(status models.ChallengeStatus) models.Challenge {
	return models.Challenge{
		ID:                uuid.New(),
		CreatorID:         uuid.New(),
		HabitID:           uuid.New(),
		HabitName:         "Run",
		Title:             "March running",
		StartDate:         date("2024-03-01"),
		EndDate:           date("2024-03-10"),
		TargetCompletions: 5,
		Status:            status,
	}
}

func TestReconcile_CompletionLatch(t *testing.T) {
	t.Parallel()

	c := marchChallenge(models.ChallengeStatusActive)
	userID := uuid.New()
	run := &models.Habit{ID: uuid.New(), OwnerID: userID, Name: "Run"}
	participant := models.ChallengeParticipant{ChallengeID: c.ID, UserID: userID, Status: models.ParticipantStatusAccepted}

	first := time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC)
	res := Reconcile(ReconcileInput{
		Challenge: c,
		Participants: []ParticipantInput{{
			Participant: participant,
			Habits:      []*models.Habit{run},
			Entries:     completedDays(run.ID, "2024-03-02", 6),
		}},
	}, first)

	got := res.Participants[0]
	if got.CurrentProgress != 6 {
		t.Errorf("Expected progress 6, got %d", got.CurrentProgress)
	}
	if got.Status != models.ParticipantStatusCompleted {
		t.Errorf("Expected completed status, got %s", got.Status)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(first) {
		t.Fatalf("Expected completedAt %s, got %v", first, got.CompletedAt)
	}
	if !res.Updates[0].NewlyCompleted {
		t.Error("Expected the first run to report a new completion")
	}
	if !res.ChallengeCompleted || res.Challenge.Status != models.ChallengeStatusCompleted {
		t.Errorf("Expected the challenge to complete, got %s", res.Challenge.Status)
	}

	// A later correction removes entries; progress drops but the latch holds.
	second := first.Add(48 * time.Hour)
	again := Reconcile(ReconcileInput{
		Challenge: c,
		Participants: []ParticipantInput{{
			Participant: got,
			Habits:      []*models.Habit{run},
			Entries:     completedDays(run.ID, "2024-03-02", 3),
		}},
	}, second)

	latched := again.Participants[0]
	if latched.CurrentProgress != 3 {
		t.Errorf("Expected recomputed progress 3, got %d", latched.CurrentProgress)
	}
	if latched.CompletedAt == nil || !latched.CompletedAt.Equal(first) {
		t.Errorf("Expected completedAt to stay %s, got %v", first, latched.CompletedAt)
	}
	if latched.Status != models.ParticipantStatusCompleted {
		t.Errorf("Expected status to stay completed, got %s", latched.Status)
	}
	if again.Updates[0].NewlyCompleted {
		t.Error("Expected no new completion on the second run")
	}
	if again.Updates[0].PreviousProgress != 6 {
		t.Errorf("Expected previous progress 6, got %d", again.Updates[0].PreviousProgress)
	}
}

func TestReconcile_Rules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		build    func() ReconcileInput
		validate func(*testing.T, ReconcileResult)
	}{
		{
			name: "entries outside the window and other habits do not count",
			build: func() ReconcileInput {
				c := marchChallenge(models.ChallengeStatusActive)
				u := uuid.New()
				run := &models.Habit{ID: uuid.New(), OwnerID: u, Name: "Run"}
				read := &models.Habit{ID: uuid.New(), OwnerID: u, Name: "Read"}
				entries := append(completedDays(run.ID, "2024-02-27", 5), completedDays(read.ID, "2024-03-01", 10)...)
				entries = append(entries, completedDays(run.ID, "2024-03-10", 3)...)
				return ReconcileInput{Challenge: c, Participants: []ParticipantInput{{
					Participant: models.ChallengeParticipant{UserID: u, Status: models.ParticipantStatusAccepted},
					Habits:      []*models.Habit{run, read},
					Entries:     entries,
				}}}
			},
			validate: func(t *testing.T, r ReconcileResult) {
				if got := r.Participants[0].CurrentProgress; got != 3 {
					t.Errorf("Expected progress 3 (03-01, 03-02, 03-10), got %d", got)
				}
				if r.ChallengeCompleted {
					t.Error("Expected the challenge to stay open")
				}
			},
		},
		{
			name: "same-named habits are summed",
			build: func() ReconcileInput {
				c := marchChallenge(models.ChallengeStatusActive)
				u := uuid.New()
				a := &models.Habit{ID: uuid.New(), OwnerID: u, Name: "Run"}
				b := &models.Habit{ID: uuid.New(), OwnerID: u, Name: "Run", IsArchived: true}
				entries := append(completedDays(a.ID, "2024-03-01", 2), completedDays(b.ID, "2024-03-01", 2)...)
				return ReconcileInput{Challenge: c, Participants: []ParticipantInput{{
					Participant: models.ChallengeParticipant{UserID: u, Status: models.ParticipantStatusAccepted},
					Habits:      []*models.Habit{a, b},
					Entries:     entries,
				}}}
			},
			validate: func(t *testing.T, r ReconcileResult) {
				if got := r.Participants[0].CurrentProgress; got != 4 {
					t.Errorf("Expected progress 4, got %d", got)
				}
			},
		},
		{
			name: "explicit habit binding overrides the name",
			build: func() ReconcileInput {
				c := marchChallenge(models.ChallengeStatusActive)
				u := uuid.New()
				jog := &models.Habit{ID: uuid.New(), OwnerID: u, Name: "Jog"}
				run := &models.Habit{ID: uuid.New(), OwnerID: u, Name: "Run"}
				entries := append(completedDays(jog.ID, "2024-03-01", 5), completedDays(run.ID, "2024-03-01", 1)...)
				return ReconcileInput{Challenge: c, Participants: []ParticipantInput{{
					Participant: models.ChallengeParticipant{UserID: u, Status: models.ParticipantStatusAccepted, HabitID: &jog.ID},
					Habits:      []*models.Habit{jog, run},
					Entries:     entries,
				}}}
			},
			validate: func(t *testing.T, r ReconcileResult) {
				if got := r.Participants[0].CurrentProgress; got != 5 {
					t.Errorf("Expected progress 5 from the bound habit, got %d", got)
				}
				if r.Participants[0].Status != models.ParticipantStatusCompleted {
					t.Errorf("Expected completed, got %s", r.Participants[0].Status)
				}
			},
		},
		{
			name: "missing habit yields zero progress without failing others",
			build: func() ReconcileInput {
				c := marchChallenge(models.ChallengeStatusActive)
				u1, u2 := uuid.New(), uuid.New()
				run := &models.Habit{ID: uuid.New(), OwnerID: u2, Name: "Run"}
				return ReconcileInput{Challenge: c, Participants: []ParticipantInput{
					{Participant: models.ChallengeParticipant{UserID: u1, Status: models.ParticipantStatusAccepted, CurrentProgress: 2}},
					{
						Participant: models.ChallengeParticipant{UserID: u2, Status: models.ParticipantStatusAccepted},
						Habits:      []*models.Habit{run},
						Entries:     completedDays(run.ID, "2024-03-01", 5),
					},
				}}
			},
			validate: func(t *testing.T, r ReconcileResult) {
				if got := r.Participants[0].CurrentProgress; got != 0 {
					t.Errorf("Expected progress 0 for the participant without the habit, got %d", got)
				}
				if got := r.Participants[1].CurrentProgress; got != 5 {
					t.Errorf("Expected progress 5, got %d", got)
				}
				if r.ChallengeCompleted {
					t.Error("Expected the challenge to stay open while one participant is behind")
				}
			},
		},
		{
			name: "invited and declined participants are left alone",
			build: func() ReconcileInput {
				c := marchChallenge(models.ChallengeStatusActive)
				creator := uuid.New()
				run := &models.Habit{ID: uuid.New(), OwnerID: creator, Name: "Run"}
				return ReconcileInput{Challenge: c, Participants: []ParticipantInput{
					{
						Participant: models.ChallengeParticipant{UserID: creator, Status: models.ParticipantStatusAccepted},
						Habits:      []*models.Habit{run},
						Entries:     completedDays(run.ID, "2024-03-01", 5),
					},
					{Participant: models.ChallengeParticipant{UserID: uuid.New(), Status: models.ParticipantStatusInvited, CurrentProgress: 1}},
					{Participant: models.ChallengeParticipant{UserID: uuid.New(), Status: models.ParticipantStatusDeclined}},
				}}
			},
			validate: func(t *testing.T, r ReconcileResult) {
				if len(r.Updates) != 1 {
					t.Errorf("Expected 1 update, got %d", len(r.Updates))
				}
				if r.Participants[1].CurrentProgress != 1 || r.Participants[1].Status != models.ParticipantStatusInvited {
					t.Errorf("Expected the invited participant unchanged, got %+v", r.Participants[1])
				}
				if !r.ChallengeCompleted {
					t.Error("Expected the challenge to complete when every accepted participant is done")
				}
			},
		},
		{
			name: "pending challenge is not completed",
			build: func() ReconcileInput {
				c := marchChallenge(models.ChallengeStatusPending)
				u := uuid.New()
				run := &models.Habit{ID: uuid.New(), OwnerID: u, Name: "Run"}
				return ReconcileInput{Challenge: c, Participants: []ParticipantInput{{
					Participant: models.ChallengeParticipant{UserID: u, Status: models.ParticipantStatusAccepted},
					Habits:      []*models.Habit{run},
					Entries:     completedDays(run.ID, "2024-03-01", 6),
				}}}
			},
			validate: func(t *testing.T, r ReconcileResult) {
				if r.ChallengeCompleted || r.Challenge.Status != models.ChallengeStatusPending {
					t.Errorf("Expected pending challenge untouched, got %s", r.Challenge.Status)
				}
				if r.Participants[0].Status != models.ParticipantStatusCompleted {
					t.Errorf("Expected participant to still complete, got %s", r.Participants[0].Status)
				}
			},
		},
		{
			name: "foreign habits are never matched",
			build: func() ReconcileInput {
				c := marchChallenge(models.ChallengeStatusActive)
				u := uuid.New()
				other := &models.Habit{ID: uuid.New(), OwnerID: uuid.New(), Name: "Run"}
				return ReconcileInput{Challenge: c, Participants: []ParticipantInput{{
					Participant: models.ChallengeParticipant{UserID: u, Status: models.ParticipantStatusAccepted},
					Habits:      []*models.Habit{other},
					Entries:     completedDays(other.ID, "2024-03-01", 6),
				}}}
			},
			validate: func(t *testing.T, r ReconcileResult) {
				if got := r.Participants[0].CurrentProgress; got != 0 {
					t.Errorf("Expected progress 0, got %d", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.validate(t, Reconcile(tt.build(), time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)))
		})
	}
}

func TestRespond(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		from   models.ParticipantStatus
		accept bool
		want   models.ParticipantStatus
		err    error
	}{
		{name: "accept invitation", from: models.ParticipantStatusInvited, accept: true, want: models.ParticipantStatusAccepted},
		{name: "decline invitation", from: models.ParticipantStatusInvited, accept: false, want: models.ParticipantStatusDeclined},
		{name: "cannot re-accept", from: models.ParticipantStatusAccepted, accept: true, want: models.ParticipantStatusAccepted, err: ErrInvalidTransition},
		{name: "cannot undo decline", from: models.ParticipantStatusDeclined, accept: true, want: models.ParticipantStatusDeclined, err: ErrInvalidTransition},
		{name: "completed is final", from: models.ParticipantStatusCompleted, accept: false, want: models.ParticipantStatusCompleted, err: ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &models.ChallengeParticipant{Status: tt.from}
			err := Respond(p, tt.accept, now)
			if !errors.Is(err, tt.err) {
				t.Errorf("Expected error %v, got %v", tt.err, err)
			}
			if p.Status != tt.want {
				t.Errorf("Expected status %s, got %s", tt.want, p.Status)
			}
		})
	}
}

func TestChallengeTransitions(t *testing.T) {
	t.Parallel()

	c := marchChallenge(models.ChallengeStatusPending)
	if !ActivateOnAcceptance(&c) || c.Status != models.ChallengeStatusActive {
		t.Fatalf("Expected pending challenge to activate, got %s", c.Status)
	}
	if ActivateOnAcceptance(&c) {
		t.Error("Expected an active challenge not to activate again")
	}
	if err := Cancel(&c); err != nil || c.Status != models.ChallengeStatusCancelled {
		t.Errorf("Expected active challenge to cancel, got %s (err %v)", c.Status, err)
	}
	if err := Cancel(&c); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition cancelling twice, got %v", err)
	}
}
