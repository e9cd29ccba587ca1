package database

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/habit-tracker/internal/models"
	"github.com/google/uuid"
)

// HabitRepository handles habit database operations
type HabitRepository struct {
	db *DB
}

// NewHabitRepository creates a new habit repository
func NewHabitRepository(db *DB) *HabitRepository {
	return &HabitRepository{db: db}
}

const habitColumns = `id, owner_id, name, description, is_archived, created_at, updated_at`

func scanHabit(row scanner) (*models.Habit, error) {
	h := &models.Habit{}
	err := row.Scan(&h.ID, &h.OwnerID, &h.Name, &h.Description, &h.IsArchived, &h.CreatedAt, &h.UpdatedAt)
	return h, err
}

// Create creates a new habit
func (r *HabitRepository) Create(ctx context.Context, habit *models.Habit) error {
	query := `
		INSERT INTO habits (id, owner_id, name, description, is_archived, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		habit.ID,
		habit.OwnerID,
		habit.Name,
		habit.Description,
		habit.IsArchived,
		now,
		now,
	).Scan(&habit.CreatedAt, &habit.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create habit: %w", err)
	}
	return nil
}

// GetByID retrieves a habit by ID
func (r *HabitRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits WHERE id = $1`
	h, err := scanHabit(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get habit: %w", notFound("habit", err))
	}
	return h, nil
}

// ListByOwner lists a user's habits in creation order
func (r *HabitRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, includeArchived bool) ([]*models.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits WHERE owner_id = $1`
	if !includeArchived {
		query += ` AND NOT is_archived`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query habits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	habits := make([]*models.Habit, 0)
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan habit: %w", err)
		}
		habits = append(habits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating habits: %w", err)
	}
	return habits, nil
}

// Update updates a habit's name and description
func (r *HabitRepository) Update(ctx context.Context, habit *models.Habit) error {
	query := `
		UPDATE habits
		SET name = $2, description = $3, updated_at = $4
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query, habit.ID, habit.Name, habit.Description, time.Now()).Scan(&habit.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update habit: %w", notFound("habit", err))
	}
	return nil
}

// SetArchived archives or restores a habit
func (r *HabitRepository) SetArchived(ctx context.Context, id uuid.UUID, archived bool) error {
	query := `UPDATE habits SET is_archived = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, archived, time.Now())
	if err != nil {
		return fmt.Errorf("failed to archive habit: %w", err)
	}
	return expectOneRow(result, "habit")
}

// Delete deletes a habit and, through the foreign key, its entries
func (r *HabitRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM habits WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete habit: %w", err)
	}
	return expectOneRow(result, "habit")
}
