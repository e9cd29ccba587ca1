package models

import (
	"time"

	"github.com/google/uuid"
)

// Habit is a tracked behavior owned by exactly one user
type Habit struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	IsArchived  bool      `json:"is_archived"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HabitEntry is one user's completion record for one habit on one calendar day.
// (HabitID, Date) is the identity; Date never carries a time-of-day component.
type HabitEntry struct {
	HabitID   uuid.UUID `json:"habit_id"`
	Date      time.Time `json:"date"`
	Completed bool      `json:"completed"`
	Note      *string   `json:"note,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActiveHabits filters out archived habits, preserving order
func ActiveHabits(habits []*Habit) []*Habit {
	active := make([]*Habit, 0, len(habits))
	for _, h := range habits {
		if h != nil && !h.IsArchived {
			active = append(active, h)
		}
	}
	return active
}
