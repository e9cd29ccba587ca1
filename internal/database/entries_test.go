package database

import (
	"strings"
	"testing"

	"github.com/benvon/habit-tracker/internal/analytics"
	"github.com/google/uuid"
)

func TestWithWindow(t *testing.T) {
	t.Parallel()

	w, err := analytics.ParseWindow("2024-03-01", "2024-03-10")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	tests := []struct {
		name     string
		args     []any
		window   *analytics.Window
		validate func(*testing.T, string, []any)
	}{
		{
			name: "no window only orders",
			args: []any{uuid.New()},
			validate: func(t *testing.T, q string, args []any) {
				if strings.Contains(q, "BETWEEN") {
					t.Errorf("Expected no date range, got %s", q)
				}
				if len(args) != 1 {
					t.Errorf("Expected 1 arg, got %d", len(args))
				}
			},
		},
		{
			name:   "window placeholders follow existing args",
			args:   []any{uuid.New()},
			window: &w,
			validate: func(t *testing.T, q string, args []any) {
				if !strings.Contains(q, "BETWEEN $2 AND $3") {
					t.Errorf("Expected placeholders $2 and $3, got %s", q)
				}
				if len(args) != 3 || args[1] != "2024-03-01" || args[2] != "2024-03-10" {
					t.Errorf("Expected ISO date args, got %v", args)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q, args := withWindow("SELECT 1 FROM habit_entries e WHERE e.habit_id = $1", tt.args, tt.window)
			if !strings.HasSuffix(q, "ORDER BY e.entry_date ASC, e.habit_id ASC") {
				t.Errorf("Expected stable ordering, got %s", q)
			}
			tt.validate(t, q, args)
		})
	}
}
