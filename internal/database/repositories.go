package database

import (
	"context"
	"time"

	"github.com/benvon/habit-tracker/internal/analytics"
	"github.com/benvon/habit-tracker/internal/models"
	"github.com/google/uuid"
)

// UserRepositoryInterface defines the interface for user repository operations
type UserRepositoryInterface interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByProviderID(ctx context.Context, providerID string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ListWithActiveHabits(ctx context.Context) ([]*models.User, error)
}

// HabitRepositoryInterface defines the interface for habit repository operations
type HabitRepositoryInterface interface {
	Create(ctx context.Context, habit *models.Habit) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Habit, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, includeArchived bool) ([]*models.Habit, error)
	Update(ctx context.Context, habit *models.Habit) error
	SetArchived(ctx context.Context, id uuid.UUID, archived bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// EntryRepositoryInterface defines the interface for habit entry repository operations.
// This is the entry store every analytics computation reads from.
type EntryRepositoryInterface interface {
	Upsert(ctx context.Context, entry *models.HabitEntry) error
	Delete(ctx context.Context, habitID uuid.UUID, date time.Time) error
	ListByHabit(ctx context.Context, habitID uuid.UUID, w *analytics.Window) ([]models.HabitEntry, error)
	ListByHabits(ctx context.Context, habitIDs []uuid.UUID, w *analytics.Window) ([]models.HabitEntry, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, w *analytics.Window, includeArchived bool) ([]models.HabitEntry, error)
}

// Ensure concrete types implement the interfaces
var (
	_ UserRepositoryInterface  = (*UserRepository)(nil)
	_ HabitRepositoryInterface = (*HabitRepository)(nil)
	_ EntryRepositoryInterface = (*EntryRepository)(nil)
)
