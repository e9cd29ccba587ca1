package database

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/habit-tracker/internal/analytics"
	"github.com/benvon/habit-tracker/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// EntryRepository handles habit entry database operations. Dates cross the
// driver boundary as YYYY-MM-DD strings so no session timezone can shift them.
type EntryRepository struct {
	db *DB
}

// NewEntryRepository creates a new entry repository
func NewEntryRepository(db *DB) *EntryRepository {
	return &EntryRepository{db: db}
}

// Upsert creates or overwrites the entry for (habit, date)
func (r *EntryRepository) Upsert(ctx context.Context, entry *models.HabitEntry) error {
	query := `
		INSERT INTO habit_entries (habit_id, entry_date, completed, note, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (habit_id, entry_date)
		DO UPDATE SET completed = EXCLUDED.completed, note = EXCLUDED.note, updated_at = EXCLUDED.updated_at
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		entry.HabitID,
		analytics.DateKey(entry.Date),
		entry.Completed,
		entry.Note,
		time.Now(),
	).Scan(&entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}
	entry.Date = analytics.Day(entry.Date)
	return nil
}

// Delete removes the entry for (habit, date)
func (r *EntryRepository) Delete(ctx context.Context, habitID uuid.UUID, date time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM habit_entries WHERE habit_id = $1 AND entry_date = $2`,
		habitID, analytics.DateKey(date),
	)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return expectOneRow(result, "entry")
}

// ListByHabit lists one habit's entries, optionally bounded by a window
func (r *EntryRepository) ListByHabit(ctx context.Context, habitID uuid.UUID, w *analytics.Window) ([]models.HabitEntry, error) {
	query, args := withWindow(
		`SELECT e.habit_id, e.entry_date, e.completed, e.note, e.updated_at FROM habit_entries e WHERE e.habit_id = $1`,
		[]any{habitID}, w,
	)
	return r.list(ctx, query, args)
}

// ListByHabits lists entries for several habits, optionally bounded by a window
func (r *EntryRepository) ListByHabits(ctx context.Context, habitIDs []uuid.UUID, w *analytics.Window) ([]models.HabitEntry, error) {
	if len(habitIDs) == 0 {
		return []models.HabitEntry{}, nil
	}
	ids := make([]string, len(habitIDs))
	for i, id := range habitIDs {
		ids[i] = id.String()
	}
	query, args := withWindow(
		`SELECT e.habit_id, e.entry_date, e.completed, e.note, e.updated_at FROM habit_entries e WHERE e.habit_id = ANY($1::uuid[])`,
		[]any{pq.Array(ids)}, w,
	)
	return r.list(ctx, query, args)
}

// ListByOwner lists entries across a user's habits, optionally bounded by a window
func (r *EntryRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, w *analytics.Window, includeArchived bool) ([]models.HabitEntry, error) {
	base := `
		SELECT e.habit_id, e.entry_date, e.completed, e.note, e.updated_at
		FROM habit_entries e
		JOIN habits h ON h.id = e.habit_id
		WHERE h.owner_id = $1`
	if !includeArchived {
		base += ` AND NOT h.is_archived`
	}
	query, args := withWindow(base, []any{ownerID}, w)
	return r.list(ctx, query, args)
}

func (r *EntryRepository) list(ctx context.Context, query string, args []any) ([]models.HabitEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]models.HabitEntry, 0)
	for rows.Next() {
		var e models.HabitEntry
		if err := rows.Scan(&e.HabitID, &e.Date, &e.Completed, &e.Note, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Date = analytics.Day(e.Date)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}
	return entries, nil
}

// withWindow appends an inclusive entry_date range and a stable ordering
func withWindow(base string, args []any, w *analytics.Window) (string, []any) {
	query := base
	if w != nil {
		query += fmt.Sprintf(" AND e.entry_date BETWEEN $%d AND $%d", len(args)+1, len(args)+2)
		args = append(args, analytics.DateKey(w.Start), analytics.DateKey(w.End))
	}
	query += " ORDER BY e.entry_date ASC, e.habit_id ASC"
	return query, args
}
