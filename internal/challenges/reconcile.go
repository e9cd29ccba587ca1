package challenges

import (
	"errors"
	"time"

	"github.com/benvon/habit-tracker/internal/analytics"
	"github.com/benvon/habit-tracker/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrInvalidTransition is returned when a status change is not allowed from the current status
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotParticipant is returned when a user is not part of a challenge
	ErrNotParticipant = errors.New("user is not a participant of this challenge")
)

// ParticipantInput is one participant together with their own habits and the
// entries of those habits. Entries outside the challenge window are ignored.
type ParticipantInput struct {
	Participant models.ChallengeParticipant
	Habits      []*models.Habit
	Entries     []models.HabitEntry
}

// ReconcileInput is a challenge and the participants to recompute
type ReconcileInput struct {
	Challenge    models.Challenge
	Participants []ParticipantInput
}

// ParticipantUpdate describes the recomputed state of one participant
type ParticipantUpdate struct {
	UserID           uuid.UUID                `json:"user_id"`
	Status           models.ParticipantStatus `json:"status"`
	PreviousProgress int                      `json:"previous_progress"`
	Progress         int                      `json:"progress"`
	CompletedAt      *time.Time               `json:"completed_at,omitempty"`
	NewlyCompleted   bool                     `json:"newly_completed"`
	MatchedHabits    []uuid.UUID              `json:"matched_habits"`
}

// ReconcileResult is the outcome of a pure reconciliation pass
type ReconcileResult struct {
	Challenge          models.Challenge              `json:"challenge"`
	Participants       []models.ChallengeParticipant `json:"participants"`
	Updates            []ParticipantUpdate           `json:"updates"`
	ChallengeCompleted bool                          `json:"challenge_completed"`
}

// Reconcile recomputes progress for every accepted participant and decides
// whether the challenge is complete. Participants that never accepted are
// returned unchanged. CompletedAt, once set, is never overwritten.
func Reconcile(in ReconcileInput, now time.Time) ReconcileResult {
	result := ReconcileResult{
		Challenge:    in.Challenge,
		Participants: make([]models.ChallengeParticipant, 0, len(in.Participants)),
		Updates:      make([]ParticipantUpdate, 0, len(in.Participants)),
	}

	for _, pi := range in.Participants {
		p := pi.Participant
		if !p.IsAccepted() {
			result.Participants = append(result.Participants, p)
			continue
		}
		update := ReconcileParticipant(in.Challenge, pi, now)
		p.CurrentProgress = update.Progress
		p.Status = update.Status
		p.CompletedAt = update.CompletedAt
		result.Participants = append(result.Participants, p)
		result.Updates = append(result.Updates, update)
	}

	if ChallengeComplete(in.Challenge, result.Participants) {
		result.Challenge.Status = models.ChallengeStatusCompleted
		result.ChallengeCompleted = true
	}
	return result
}

// ReconcileParticipant recomputes one accepted participant's progress from
// their matched habits' entries inside the challenge window
func ReconcileParticipant(c models.Challenge, in ParticipantInput, now time.Time) ParticipantUpdate {
	p := in.Participant
	matched := MatchHabits(c, p, in.Habits)
	progress := CountProgress(c, matched, in.Entries)

	update := ParticipantUpdate{
		UserID:           p.UserID,
		Status:           p.Status,
		PreviousProgress: p.CurrentProgress,
		Progress:         progress,
		CompletedAt:      p.CompletedAt,
		MatchedHabits:    matched,
	}
	if p.CompletedAt == nil && progress >= c.TargetCompletions {
		at := now.UTC()
		update.CompletedAt = &at
		update.Status = models.ParticipantStatusCompleted
		update.NewlyCompleted = true
	}
	return update
}

// MatchHabits returns the participant's habits that count toward the
// challenge. An explicit habit binding wins; otherwise every habit the
// participant owns with exactly the reference habit's name matches.
func MatchHabits(c models.Challenge, p models.ChallengeParticipant, habits []*models.Habit) []uuid.UUID {
	matched := make([]uuid.UUID, 0, 1)
	for _, h := range habits {
		if h == nil || h.OwnerID != p.UserID {
			continue
		}
		if p.HabitID != nil {
			if h.ID == *p.HabitID {
				matched = append(matched, h.ID)
			}
			continue
		}
		if h.Name == c.HabitName {
			matched = append(matched, h.ID)
		}
	}
	return matched
}

// CountProgress counts completed habit-days inside the challenge window for
// the given habits. A later entry for the same habit and day replaces an earlier one.
func CountProgress(c models.Challenge, habitIDs []uuid.UUID, entries []models.HabitEntry) int {
	if len(habitIDs) == 0 {
		return 0
	}
	allowed := make(map[uuid.UUID]bool, len(habitIDs))
	for _, id := range habitIDs {
		allowed[id] = true
	}

	w := Window(c)
	days := make(map[string]bool)
	for _, e := range entries {
		if e.Date.IsZero() || !allowed[e.HabitID] || !w.Contains(e.Date) {
			continue
		}
		days[e.HabitID.String()+"|"+analytics.DateKey(e.Date)] = e.Completed
	}

	n := 0
	for _, completed := range days {
		if completed {
			n++
		}
	}
	return n
}

// ChallengeComplete reports whether an active challenge has every accepted
// participant at or past the target. Challenges in any other status are never
// re-evaluated, and a challenge with no accepted participants is not complete.
func ChallengeComplete(c models.Challenge, participants []models.ChallengeParticipant) bool {
	if c.Status != models.ChallengeStatusActive {
		return false
	}
	accepted := 0
	for i := range participants {
		p := &participants[i]
		if !p.IsAccepted() {
			continue
		}
		accepted++
		if p.CurrentProgress < c.TargetCompletions {
			return false
		}
	}
	return accepted > 0
}

// Window returns the inclusive calendar window a challenge covers
func Window(c models.Challenge) analytics.Window {
	return analytics.Window{Start: analytics.Day(c.StartDate), End: analytics.Day(c.EndDate)}
}

// Respond applies an invitee's answer. Only invited participants may answer.
func Respond(p *models.ChallengeParticipant, accept bool, now time.Time) error {
	if p.Status != models.ParticipantStatusInvited {
		return ErrInvalidTransition
	}
	if accept {
		p.Status = models.ParticipantStatusAccepted
	} else {
		p.Status = models.ParticipantStatusDeclined
	}
	p.UpdatedAt = now
	return nil
}

// ActivateOnAcceptance moves a pending challenge to active. It reports whether
// the status changed.
func ActivateOnAcceptance(c *models.Challenge) bool {
	if c.Status != models.ChallengeStatusPending {
		return false
	}
	c.Status = models.ChallengeStatusActive
	return true
}

// Cancel moves a pending or active challenge to cancelled
func Cancel(c *models.Challenge) error {
	switch c.Status {
	case models.ChallengeStatusPending, models.ChallengeStatusActive:
		c.Status = models.ChallengeStatusCancelled
		return nil
	default:
		return ErrInvalidTransition
	}
}
