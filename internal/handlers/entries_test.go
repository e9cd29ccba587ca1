package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benvon/habit-tracker/internal/models"
	"github.com/google/uuid"
)

func newEntryFixture(t *testing.T) (*EntryHandler, *memEntryRepo, *models.User, *models.Habit, *int) {
	t.Helper()
	user := testUser()
	habit := &models.Habit{ID: uuid.New(), OwnerID: user.ID, Name: "Drink water"}
	entries := newMemEntryRepo()
	calls := 0
	h := NewEntryHandler(newMemHabitRepo(habit), entries, nil, WithEntryChangeHook(func(ctx context.Context, userID uuid.UUID) error {
		calls++
		return errors.New("queue unavailable")
	}))
	h.now = fixedClock("2024-01-10")
	return h, entries, user, habit, &calls
}

func TestEntryHandler_PutEntry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		date            string
		body            any
		expectStatus    int
		expectCompleted bool
	}{
		{name: "empty body marks completed", date: "2024-01-10", expectStatus: http.StatusOK, expectCompleted: true},
		{name: "explicit uncompleted", date: "2024-01-09", body: map[string]any{"completed": false, "note": "sick"}, expectStatus: http.StatusOK},
		{name: "tomorrow is allowed", date: "2024-01-11", expectStatus: http.StatusOK, expectCompleted: true},
		{name: "far future rejected", date: "2024-01-12", expectStatus: http.StatusBadRequest},
		{name: "invalid date", date: "2024-13-01", expectStatus: http.StatusBadRequest},
		{name: "timestamp rejected", date: "2024-01-10T10:00:00Z", expectStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h, entries, user, habit, calls := newEntryFixture(t)
			vars := map[string]string{"id": habit.ID.String(), "date": tt.date}
			rec := httptest.NewRecorder()
			h.PutEntry(rec, newRequest(t, http.MethodPut, "/habits/x/entries/"+tt.date, tt.body, user, vars))

			if rec.Code != tt.expectStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.expectStatus, rec.Code, rec.Body.String())
			}
			if tt.expectStatus != http.StatusOK {
				if *calls != 0 {
					t.Error("Expected no change notification for a rejected write")
				}
				return
			}

			stored, ok := entries.get(habit.ID, tt.date)
			if !ok {
				t.Fatal("Expected entry to be stored")
			}
			if stored.Completed != tt.expectCompleted {
				t.Errorf("Expected completed=%v, got %v", tt.expectCompleted, stored.Completed)
			}
			// A failing hook is logged, never surfaced to the caller.
			if *calls != 1 {
				t.Errorf("Expected one change notification, got %d", *calls)
			}
		})
	}
}

func TestEntryHandler_PutEntryTwiceOverwrites(t *testing.T) {
	t.Parallel()

	h, entries, user, habit, _ := newEntryFixture(t)
	vars := map[string]string{"id": habit.ID.String(), "date": "2024-01-08"}

	for _, completed := range []bool{true, false} {
		rec := httptest.NewRecorder()
		h.PutEntry(rec, newRequest(t, http.MethodPut, "/", map[string]any{"completed": completed}, user, vars))
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", rec.Code)
		}
	}

	list, _ := entries.ListByHabit(context.Background(), habit.ID, nil)
	if len(list) != 1 || list[0].Completed {
		t.Errorf("Expected a single overwritten entry, got %+v", list)
	}
}

func TestEntryHandler_ArchivedHabitRejectsWrites(t *testing.T) {
	t.Parallel()

	user := testUser()
	habit := &models.Habit{ID: uuid.New(), OwnerID: user.ID, Name: "Old", IsArchived: true}
	h := NewEntryHandler(newMemHabitRepo(habit), newMemEntryRepo(), nil)
	h.now = fixedClock("2024-01-10")

	rec := httptest.NewRecorder()
	h.PutEntry(rec, newRequest(t, http.MethodPut, "/", nil, user, map[string]string{"id": habit.ID.String(), "date": "2024-01-10"}))
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", rec.Code)
	}
}

func TestEntryHandler_DeleteEntry(t *testing.T) {
	t.Parallel()

	h, entries, user, habit, calls := newEntryFixture(t)
	vars := map[string]string{"id": habit.ID.String(), "date": "2024-01-05"}

	rec := httptest.NewRecorder()
	h.DeleteEntry(rec, newRequest(t, http.MethodDelete, "/", nil, user, vars))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for a missing entry, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.PutEntry(rec, newRequest(t, http.MethodPut, "/", nil, user, vars))
	rec = httptest.NewRecorder()
	h.DeleteEntry(rec, newRequest(t, http.MethodDelete, "/", nil, user, vars))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", rec.Code)
	}
	if _, ok := entries.get(habit.ID, "2024-01-05"); ok {
		t.Error("Expected entry to be removed")
	}
	if *calls != 2 {
		t.Errorf("Expected notifications for put and delete, got %d", *calls)
	}
}

func TestEntryHandler_ListEntries(t *testing.T) {
	t.Parallel()

	h, _, user, habit, _ := newEntryFixture(t)
	for _, d := range []string{"2023-12-01", "2024-01-02", "2024-01-09"} {
		rec := httptest.NewRecorder()
		h.PutEntry(rec, newRequest(t, http.MethodPut, "/", nil, user, map[string]string{"id": habit.ID.String(), "date": d}))
	}

	tests := []struct {
		name        string
		query       string
		expectCount int
		expectCode  int
	}{
		{name: "default last 30 days", query: "", expectCount: 2, expectCode: http.StatusOK},
		{name: "explicit window", query: "?start=2023-12-01&end=2023-12-31", expectCount: 1, expectCode: http.StatusOK},
		{name: "start without end", query: "?start=2023-12-01", expectCode: http.StatusBadRequest},
		{name: "reversed window", query: "?start=2024-01-09&end=2024-01-01", expectCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ListEntries(rec, newRequest(t, http.MethodGet, "/habits/x/entries"+tt.query, nil, user, map[string]string{"id": habit.ID.String()}))
			if rec.Code != tt.expectCode {
				t.Fatalf("Expected status %d, got %d", tt.expectCode, rec.Code)
			}
			if tt.expectCode != http.StatusOK {
				return
			}
			var list []models.HabitEntry
			decodeEnvelope(t, rec, &list)
			if len(list) != tt.expectCount {
				t.Errorf("Expected %d entries, got %d", tt.expectCount, len(list))
			}
		})
	}
}
