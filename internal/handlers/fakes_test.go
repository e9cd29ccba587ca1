package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/benvon/habit-tracker/internal/analytics"
	"github.com/benvon/habit-tracker/internal/challenges"
	"github.com/benvon/habit-tracker/internal/database"
	"github.com/benvon/habit-tracker/internal/models"
	"github.com/benvon/habit-tracker/internal/request"
	"github.com/benvon/habit-tracker/internal/services/stats"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// memHabitRepo is an in-memory HabitRepositoryInterface
type memHabitRepo struct {
	mu     sync.Mutex
	habits map[uuid.UUID]*models.Habit
}

func newMemHabitRepo(habits ...*models.Habit) *memHabitRepo {
	m := &memHabitRepo{habits: make(map[uuid.UUID]*models.Habit)}
	for _, h := range habits {
		m.habits[h.ID] = h
	}
	return m
}

func (m *memHabitRepo) Create(ctx context.Context, habit *models.Habit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	habit.CreatedAt = time.Now()
	habit.UpdatedAt = habit.CreatedAt
	cp := *habit
	m.habits[habit.ID] = &cp
	return nil
}

func (m *memHabitRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.habits[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *h
	return &cp, nil
}

func (m *memHabitRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, includeArchived bool) ([]*models.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Habit
	for _, h := range m.habits {
		if h.OwnerID == ownerID && (includeArchived || !h.IsArchived) {
			cp := *h
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memHabitRepo) Update(ctx context.Context, habit *models.Habit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.habits[habit.ID]; !ok {
		return database.ErrNotFound
	}
	cp := *habit
	m.habits[habit.ID] = &cp
	return nil
}

func (m *memHabitRepo) SetArchived(ctx context.Context, id uuid.UUID, archived bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.habits[id]
	if !ok {
		return database.ErrNotFound
	}
	h.IsArchived = archived
	return nil
}

func (m *memHabitRepo) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.habits[id]; !ok {
		return database.ErrNotFound
	}
	delete(m.habits, id)
	return nil
}

// memEntryRepo is an in-memory EntryRepositoryInterface keyed by (habit, day)
type memEntryRepo struct {
	mu      sync.Mutex
	entries map[string]models.HabitEntry
}

func newMemEntryRepo() *memEntryRepo {
	return &memEntryRepo{entries: make(map[string]models.HabitEntry)}
}

func entryKey(habitID uuid.UUID, date time.Time) string {
	return habitID.String() + "/" + analytics.DateKey(date)
}

func (m *memEntryRepo) Upsert(ctx context.Context, entry *models.HabitEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.Date = analytics.Day(entry.Date)
	entry.UpdatedAt = time.Now()
	m.entries[entryKey(entry.HabitID, entry.Date)] = *entry
	return nil
}

func (m *memEntryRepo) Delete(ctx context.Context, habitID uuid.UUID, date time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := entryKey(habitID, date)
	if _, ok := m.entries[key]; !ok {
		return database.ErrNotFound
	}
	delete(m.entries, key)
	return nil
}

func (m *memEntryRepo) ListByHabit(ctx context.Context, habitID uuid.UUID, w *analytics.Window) ([]models.HabitEntry, error) {
	return m.ListByHabits(ctx, []uuid.UUID{habitID}, w)
}

func (m *memEntryRepo) ListByHabits(ctx context.Context, habitIDs []uuid.UUID, w *analytics.Window) ([]models.HabitEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[uuid.UUID]bool, len(habitIDs))
	for _, id := range habitIDs {
		wanted[id] = true
	}
	var out []models.HabitEntry
	for _, e := range m.entries {
		if wanted[e.HabitID] && (w == nil || w.Contains(e.Date)) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memEntryRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, w *analytics.Window, includeArchived bool) ([]models.HabitEntry, error) {
	return nil, nil
}

func (m *memEntryRepo) get(habitID uuid.UUID, date string) (models.HabitEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, _ := analytics.ParseDate(date)
	e, ok := m.entries[entryKey(habitID, d)]
	return e, ok
}

// mockStatsService records the arguments of the last call
type mockStatsService struct {
	HabitStatsFunc func(ctx context.Context, userID, habitID uuid.UUID, ref time.Time) (*stats.HabitStats, error)
	CalendarFunc   func(ctx context.Context, userID uuid.UUID, habitID *uuid.UUID, w analytics.Window, opts analytics.CalendarOptions) ([]analytics.CalendarDay, error)
	InsightsFunc   func(ctx context.Context, userID uuid.UUID, habitID *uuid.UUID, ref time.Time, opts analytics.InsightOptions) (*stats.InsightsView, error)

	lastRef time.Time
}

func (m *mockStatsService) HabitStats(ctx context.Context, userID, habitID uuid.UUID, ref time.Time) (*stats.HabitStats, error) {
	m.lastRef = ref
	if m.HabitStatsFunc != nil {
		return m.HabitStatsFunc(ctx, userID, habitID, ref)
	}
	return &stats.HabitStats{}, nil
}

func (m *mockStatsService) Overview(ctx context.Context, userID uuid.UUID, ref time.Time) (*stats.Overview, error) {
	m.lastRef = ref
	return &stats.Overview{Date: analytics.DateKey(ref)}, nil
}

func (m *mockStatsService) Calendar(ctx context.Context, userID uuid.UUID, habitID *uuid.UUID, w analytics.Window, opts analytics.CalendarOptions) ([]analytics.CalendarDay, error) {
	if m.CalendarFunc != nil {
		return m.CalendarFunc(ctx, userID, habitID, w, opts)
	}
	return nil, nil
}

func (m *mockStatsService) Insights(ctx context.Context, userID uuid.UUID, habitID *uuid.UUID, ref time.Time, opts analytics.InsightOptions) (*stats.InsightsView, error) {
	m.lastRef = ref
	if m.InsightsFunc != nil {
		return m.InsightsFunc(ctx, userID, habitID, ref, opts)
	}
	return &stats.InsightsView{}, nil
}

func (m *mockStatsService) Streak(ctx context.Context, userID, habitID uuid.UUID, ref time.Time) (int, error) {
	m.lastRef = ref
	return 3, nil
}

// mockChallengeService returns canned results per method
type mockChallengeService struct {
	CreateFunc    func(ctx context.Context, creatorID uuid.UUID, req challenges.CreateRequest) (*models.Challenge, error)
	GetFunc       func(ctx context.Context, challengeID, userID uuid.UUID) (*challenges.Detail, error)
	InviteFunc    func(ctx context.Context, challengeID, inviterID, inviteeID uuid.UUID) (*models.ChallengeParticipant, error)
	RespondFunc   func(ctx context.Context, challengeID, userID uuid.UUID, accept bool, habitID *uuid.UUID) (*models.ChallengeParticipant, error)
	ReconcileFunc func(ctx context.Context, challengeID uuid.UUID) (*challenges.ReconcileReport, error)
	CancelFunc    func(ctx context.Context, challengeID, userID uuid.UUID) error

	reconcileCalls int
}

func (m *mockChallengeService) Create(ctx context.Context, creatorID uuid.UUID, req challenges.CreateRequest) (*models.Challenge, error) {
	return m.CreateFunc(ctx, creatorID, req)
}

func (m *mockChallengeService) Get(ctx context.Context, challengeID, userID uuid.UUID) (*challenges.Detail, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, challengeID, userID)
	}
	return &challenges.Detail{}, nil
}

func (m *mockChallengeService) List(ctx context.Context, userID uuid.UUID) ([]*models.Challenge, error) {
	return []*models.Challenge{}, nil
}

func (m *mockChallengeService) Invite(ctx context.Context, challengeID, inviterID, inviteeID uuid.UUID) (*models.ChallengeParticipant, error) {
	return m.InviteFunc(ctx, challengeID, inviterID, inviteeID)
}

func (m *mockChallengeService) Respond(ctx context.Context, challengeID, userID uuid.UUID, accept bool, habitID *uuid.UUID) (*models.ChallengeParticipant, error) {
	return m.RespondFunc(ctx, challengeID, userID, accept, habitID)
}

func (m *mockChallengeService) Reconcile(ctx context.Context, challengeID uuid.UUID) (*challenges.ReconcileReport, error) {
	m.reconcileCalls++
	return m.ReconcileFunc(ctx, challengeID)
}

func (m *mockChallengeService) Cancel(ctx context.Context, challengeID, userID uuid.UUID) error {
	return m.CancelFunc(ctx, challengeID, userID)
}

// memUsers resolves invitees
type memUsers struct {
	users []*models.User
}

func (m *memUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, database.ErrNotFound
}

var (
	_ database.HabitRepositoryInterface = (*memHabitRepo)(nil)
	_ database.EntryRepositoryInterface = (*memEntryRepo)(nil)
	_ StatsService                      = (*mockStatsService)(nil)
	_ ChallengeService                  = (*mockChallengeService)(nil)
	_ UserLookup                        = (*memUsers)(nil)
)

func testUser() *models.User {
	return &models.User{ID: uuid.New(), Email: "user@example.com"}
}

func fixedClock(date string) func() time.Time {
	d, _ := analytics.ParseDate(date)
	return func() time.Time { return d.Add(15 * time.Hour) }
}

// newRequest builds a request with the user in context and mux route variables set
func newRequest(t *testing.T, method, target string, body any, user *models.User, vars map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		req = req.WithContext(request.WithUser(req.Context(), user))
	}
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}
	return req
}

// decodeEnvelope decodes the respondJSON envelope and unmarshals data into out
func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, out any) map[string]any {
	t.Helper()
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	if out != nil {
		if err := json.Unmarshal(raw["data"], out); err != nil {
			t.Fatalf("Failed to decode data: %v", err)
		}
	}
	var env map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return env
}
