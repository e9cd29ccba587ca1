package models

import (
	"time"

	"github.com/google/uuid"
)

// ChallengeStatus is the lifecycle state of a shared challenge
type ChallengeStatus string

const (
	ChallengeStatusPending   ChallengeStatus = "pending"
	ChallengeStatusActive    ChallengeStatus = "active"
	ChallengeStatusCompleted ChallengeStatus = "completed"
	ChallengeStatusCancelled ChallengeStatus = "cancelled"
)

// ParticipantStatus is a participant's state within a challenge
type ParticipantStatus string

const (
	ParticipantStatusInvited   ParticipantStatus = "invited"
	ParticipantStatusAccepted  ParticipantStatus = "accepted"
	ParticipantStatusDeclined  ParticipantStatus = "declined"
	ParticipantStatusCompleted ParticipantStatus = "completed"
)

// Challenge is a shared goal between several users.
// HabitID references the creator's habit; participants are matched by that habit's name.
type Challenge struct {
	ID                uuid.UUID       `json:"id"`
	CreatorID         uuid.UUID       `json:"creator_id"`
	HabitID           uuid.UUID       `json:"habit_id"`
	HabitName         string          `json:"habit_name"`
	Title             string          `json:"title"`
	Description       *string         `json:"description,omitempty"`
	StartDate         time.Time       `json:"start_date"`
	EndDate           time.Time       `json:"end_date"`
	TargetCompletions int             `json:"target_completions"`
	Status            ChallengeStatus `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ChallengeParticipant tracks one user's progress within a challenge.
// CompletedAt is a one-way latch: once set it is never overwritten.
type ChallengeParticipant struct {
	ChallengeID     uuid.UUID         `json:"challenge_id"`
	UserID          uuid.UUID         `json:"user_id"`
	Status          ParticipantStatus `json:"status"`
	HabitID         *uuid.UUID        `json:"habit_id,omitempty"` // explicit habit binding, overrides name matching
	CurrentProgress int               `json:"current_progress"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	JoinedAt        time.Time         `json:"joined_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// IsAccepted reports whether the participant takes part in progress tracking
func (p *ChallengeParticipant) IsAccepted() bool {
	return p.Status == ParticipantStatusAccepted || p.Status == ParticipantStatusCompleted
}
