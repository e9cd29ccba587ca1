package analytics

import (
	"time"

	"github.com/benvon/habit-tracker/internal/models"
	"github.com/google/uuid"
)

func mustDate(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func entry(habitID uuid.UUID, date string, completed bool) models.HabitEntry {
	return models.HabitEntry{HabitID: habitID, Date: mustDate(date), Completed: completed}
}

// completedRun returns completed entries for n consecutive days ending on last
func completedRun(habitID uuid.UUID, last string, n int) []models.HabitEntry {
	end := mustDate(last)
	out := make([]models.HabitEntry, 0, n)
	for i := n - 1; i >= 0; i-- {
		out = append(out, models.HabitEntry{HabitID: habitID, Date: end.AddDate(0, 0, -i), Completed: true})
	}
	return out
}

func habit(owner uuid.UUID, name string) *models.Habit {
	return &models.Habit{ID: uuid.New(), OwnerID: owner, Name: name, CreatedAt: mustDate("2023-01-01")}
}
