package challenges

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/habit-tracker/internal/analytics"
	"github.com/benvon/habit-tracker/internal/database"
	"github.com/benvon/habit-tracker/internal/metrics"
	"github.com/benvon/habit-tracker/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNotCreator is returned when a creator-only action is attempted by someone else
	ErrNotCreator = errors.New("only the challenge creator can do this")
	// ErrChallengeClosed is returned when a completed or cancelled challenge is modified
	ErrChallengeClosed = errors.New("challenge is closed")
	// ErrAlreadyParticipant is returned when inviting someone already in the challenge
	ErrAlreadyParticipant = errors.New("user is already a participant")
	// ErrHabitNotOwned is returned when a habit does not belong to the acting user
	ErrHabitNotOwned = errors.New("habit does not belong to user")
	// ErrInvalidChallenge is returned for malformed challenge definitions
	ErrInvalidChallenge = errors.New("invalid challenge")
)

// Store persists challenges and participants. Conditional writes report
// whether they applied so concurrent reconcilers cannot overwrite each other.
type Store interface {
	CreateChallenge(ctx context.Context, c *models.Challenge, creator *models.ChallengeParticipant) error
	GetChallenge(ctx context.Context, id uuid.UUID) (*models.Challenge, error)
	ListChallengesForUser(ctx context.Context, userID uuid.UUID) ([]*models.Challenge, error)
	ListOpenChallengeIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	ListParticipants(ctx context.Context, challengeID uuid.UUID) ([]*models.ChallengeParticipant, error)
	GetParticipant(ctx context.Context, challengeID, userID uuid.UUID) (*models.ChallengeParticipant, error)
	AddParticipant(ctx context.Context, p *models.ChallengeParticipant) (bool, error)
	RespondParticipant(ctx context.Context, challengeID, userID uuid.UUID, to models.ParticipantStatus, habitID *uuid.UUID) (bool, error)
	UpdateProgress(ctx context.Context, challengeID, userID uuid.UUID, progress int) error
	MarkParticipantCompleted(ctx context.Context, challengeID, userID uuid.UUID, at time.Time) (bool, error)
	TransitionChallengeStatus(ctx context.Context, id uuid.UUID, from, to models.ChallengeStatus) (bool, error)
}

// HabitSource reads the habits and entries reconciliation needs
type HabitSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Habit, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, includeArchived bool) ([]*models.Habit, error)
}

// EntrySource reads entries for a set of habits within a window
type EntrySource interface {
	ListByHabits(ctx context.Context, habitIDs []uuid.UUID, w *analytics.Window) ([]models.HabitEntry, error)
}

// CreateRequest describes a new challenge
type CreateRequest struct {
	HabitID           uuid.UUID
	Title             string
	Description       *string
	StartDate         time.Time
	EndDate           time.Time
	TargetCompletions int
}

// Detail is a challenge with its participants
type Detail struct {
	Challenge    *models.Challenge              `json:"challenge"`
	Participants []*models.ChallengeParticipant `json:"participants"`
}

// ParticipantFailure records a participant whose reconciliation could not complete
type ParticipantFailure struct {
	UserID uuid.UUID `json:"user_id"`
	Error  string    `json:"error"`
}

// ReconcileReport summarises a store-backed reconciliation run
type ReconcileReport struct {
	ChallengeID        uuid.UUID              `json:"challenge_id"`
	Status             models.ChallengeStatus `json:"status"`
	Updates            []ParticipantUpdate    `json:"updates"`
	ChallengeCompleted bool                   `json:"challenge_completed"`
	Failures           []ParticipantFailure   `json:"failures,omitempty"`
}

// Service coordinates challenge lifecycle and progress reconciliation
type Service struct {
	store   Store
	habits  HabitSource
	entries EntrySource
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a challenge service
func NewService(store Store, habits HabitSource, entries EntrySource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, habits: habits, entries: entries, logger: logger, now: time.Now}
}

// Create validates and stores a new challenge. The creator joins as an
// accepted participant matched by habit name like everyone else, so all of
// their habits sharing the reference name count. The challenge starts pending.
func (s *Service) Create(ctx context.Context, creatorID uuid.UUID, req CreateRequest) (*models.Challenge, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidChallenge)
	}
	if req.TargetCompletions < 1 {
		return nil, fmt.Errorf("%w: target completions must be at least 1", ErrInvalidChallenge)
	}
	w, err := analytics.NewWindow(req.StartDate, req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChallenge, err)
	}

	habit, err := s.habits.GetByID(ctx, req.HabitID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reference habit: %w", err)
	}
	if habit.OwnerID != creatorID {
		return nil, ErrHabitNotOwned
	}

	now := s.now()
	challenge := &models.Challenge{
		ID:                uuid.New(),
		CreatorID:         creatorID,
		HabitID:           habit.ID,
		HabitName:         habit.Name,
		Title:             title,
		Description:       req.Description,
		StartDate:         w.Start,
		EndDate:           w.End,
		TargetCompletions: req.TargetCompletions,
		Status:            models.ChallengeStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	creator := &models.ChallengeParticipant{
		ChallengeID: challenge.ID,
		UserID:      creatorID,
		Status:      models.ParticipantStatusAccepted,
		JoinedAt:    now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateChallenge(ctx, challenge, creator); err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}

	s.logger.Info("challenge_created",
		zap.String("challenge_id", challenge.ID.String()),
		zap.String("creator_id", creatorID.String()),
		zap.Int("target_completions", challenge.TargetCompletions),
	)
	return challenge, nil
}

// Get returns a challenge visible to userID
func (s *Service) Get(ctx context.Context, challengeID, userID uuid.UUID) (*Detail, error) {
	challenge, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	participants, err := s.store.ListParticipants(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	visible := challenge.CreatorID == userID
	for _, p := range participants {
		if p.UserID == userID {
			visible = true
			break
		}
	}
	if !visible {
		return nil, ErrNotParticipant
	}
	return &Detail{Challenge: challenge, Participants: participants}, nil
}

// List returns every challenge the user created or was invited to
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]*models.Challenge, error) {
	list, err := s.store.ListChallengesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	return list, nil
}

// Invite adds inviteeID as an invited participant. Only the creator may invite.
func (s *Service) Invite(ctx context.Context, challengeID, inviterID, inviteeID uuid.UUID) (*models.ChallengeParticipant, error) {
	challenge, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	if challenge.CreatorID != inviterID {
		return nil, ErrNotCreator
	}
	if isClosed(challenge) {
		return nil, ErrChallengeClosed
	}

	now := s.now()
	p := &models.ChallengeParticipant{
		ChallengeID: challengeID,
		UserID:      inviteeID,
		Status:      models.ParticipantStatusInvited,
		JoinedAt:    now,
		UpdatedAt:   now,
	}
	added, err := s.store.AddParticipant(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to add participant: %w", err)
	}
	if !added {
		return nil, ErrAlreadyParticipant
	}

	s.logger.Info("challenge_participant_invited",
		zap.String("challenge_id", challengeID.String()),
		zap.String("user_id", inviteeID.String()),
	)
	return p, nil
}

// Respond records an invitee's answer. An acceptance may bind one of the
// invitee's own habits explicitly and activates a pending challenge.
func (s *Service) Respond(ctx context.Context, challengeID, userID uuid.UUID, accept bool, habitID *uuid.UUID) (*models.ChallengeParticipant, error) {
	challenge, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	if isClosed(challenge) {
		return nil, ErrChallengeClosed
	}

	p, err := s.store.GetParticipant(ctx, challengeID, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotParticipant
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}

	if err := Respond(p, accept, s.now()); err != nil {
		return nil, err
	}

	if accept && habitID != nil {
		habit, err := s.habits.GetByID(ctx, *habitID)
		if err != nil {
			return nil, fmt.Errorf("failed to get bound habit: %w", err)
		}
		if habit.OwnerID != userID {
			return nil, ErrHabitNotOwned
		}
		p.HabitID = &habit.ID
	}

	applied, err := s.store.RespondParticipant(ctx, challengeID, userID, p.Status, p.HabitID)
	if err != nil {
		return nil, fmt.Errorf("failed to record response: %w", err)
	}
	if !applied {
		return nil, ErrInvalidTransition
	}

	if accept && ActivateOnAcceptance(challenge) {
		if _, err := s.store.TransitionChallengeStatus(ctx, challengeID, models.ChallengeStatusPending, models.ChallengeStatusActive); err != nil {
			return nil, fmt.Errorf("failed to activate challenge: %w", err)
		}
		s.logger.Info("challenge_activated", zap.String("challenge_id", challengeID.String()))
	}

	s.logger.Info("challenge_invitation_answered",
		zap.String("challenge_id", challengeID.String()),
		zap.String("user_id", userID.String()),
		zap.String("status", string(p.Status)),
	)
	return p, nil
}

// Cancel closes a pending or active challenge. Only the creator may cancel.
func (s *Service) Cancel(ctx context.Context, challengeID, userID uuid.UUID) error {
	challenge, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return fmt.Errorf("failed to get challenge: %w", err)
	}
	if challenge.CreatorID != userID {
		return ErrNotCreator
	}
	from := challenge.Status
	if err := Cancel(challenge); err != nil {
		return err
	}
	applied, err := s.store.TransitionChallengeStatus(ctx, challengeID, from, models.ChallengeStatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to cancel challenge: %w", err)
	}
	if !applied {
		return ErrInvalidTransition
	}
	s.logger.Info("challenge_cancelled", zap.String("challenge_id", challengeID.String()))
	return nil
}

// AffectedChallenges lists the open challenges whose progress depends on userID's entries
func (s *Service) AffectedChallenges(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := s.store.ListOpenChallengeIDsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list open challenges: %w", err)
	}
	return ids, nil
}

// Reconcile recomputes every accepted participant's progress from the store
// and writes it back. Completion timestamps and the challenge completion are
// written with conditional updates. A participant whose data cannot be loaded
// or written is reported in Failures; the others are still updated, but the
// challenge itself is not completed in that run.
func (s *Service) Reconcile(ctx context.Context, challengeID uuid.UUID) (*ReconcileReport, error) {
	start := time.Now()
	defer metrics.ObserveComputation("challenge_reconcile", start)

	challenge, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	report := &ReconcileReport{ChallengeID: challengeID, Status: challenge.Status, Updates: []ParticipantUpdate{}}
	if challenge.Status == models.ChallengeStatusCancelled {
		return report, nil
	}

	participants, err := s.store.ListParticipants(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	now := s.now()
	final := make([]models.ChallengeParticipant, 0, len(participants))
	for _, p := range participants {
		if !p.IsAccepted() {
			final = append(final, *p)
			continue
		}

		update, err := s.reconcileParticipant(ctx, challenge, *p, now)
		if err != nil {
			metrics.TrackReconcileOutcome(metrics.OutcomeFailure)
			s.logger.Warn("challenge_participant_reconcile_failed",
				zap.String("challenge_id", challengeID.String()),
				zap.String("user_id", p.UserID.String()),
				zap.Error(err),
			)
			report.Failures = append(report.Failures, ParticipantFailure{UserID: p.UserID, Error: err.Error()})
			final = append(final, *p)
			continue
		}

		report.Updates = append(report.Updates, update)
		updated := *p
		updated.CurrentProgress = update.Progress
		updated.Status = update.Status
		updated.CompletedAt = update.CompletedAt
		final = append(final, updated)
	}

	if len(report.Failures) == 0 && ChallengeComplete(*challenge, final) {
		applied, err := s.store.TransitionChallengeStatus(ctx, challengeID, models.ChallengeStatusActive, models.ChallengeStatusCompleted)
		if err != nil {
			return nil, fmt.Errorf("failed to complete challenge: %w", err)
		}
		if applied {
			metrics.TrackReconcileOutcome(metrics.OutcomeChallengeCompleted)
			report.ChallengeCompleted = true
			report.Status = models.ChallengeStatusCompleted
		}
	}

	s.logger.Info("challenge_reconciled",
		zap.String("challenge_id", challengeID.String()),
		zap.Int("participants_updated", len(report.Updates)),
		zap.Int("failures", len(report.Failures)),
		zap.Bool("challenge_completed", report.ChallengeCompleted),
	)
	return report, nil
}

func (s *Service) reconcileParticipant(ctx context.Context, challenge *models.Challenge, p models.ChallengeParticipant, now time.Time) (ParticipantUpdate, error) {
	habits, err := s.habits.ListByOwner(ctx, p.UserID, true)
	if err != nil {
		return ParticipantUpdate{}, fmt.Errorf("failed to list habits: %w", err)
	}

	var entries []models.HabitEntry
	if matched := MatchHabits(*challenge, p, habits); len(matched) > 0 {
		w := Window(*challenge)
		entries, err = s.entries.ListByHabits(ctx, matched, &w)
		if err != nil {
			return ParticipantUpdate{}, fmt.Errorf("failed to list entries: %w", err)
		}
	}

	update := ReconcileParticipant(*challenge, ParticipantInput{Participant: p, Habits: habits, Entries: entries}, now)

	if err := s.store.UpdateProgress(ctx, challenge.ID, p.UserID, update.Progress); err != nil {
		return ParticipantUpdate{}, fmt.Errorf("failed to update progress: %w", err)
	}
	metrics.TrackReconcileOutcome(metrics.OutcomeParticipantUpdated)

	if update.NewlyCompleted {
		won, err := s.store.MarkParticipantCompleted(ctx, challenge.ID, p.UserID, *update.CompletedAt)
		if err != nil {
			return ParticipantUpdate{}, fmt.Errorf("failed to mark participant completed: %w", err)
		}
		if !won {
			// Another run latched first; report its timestamp instead of ours.
			stored, err := s.store.GetParticipant(ctx, challenge.ID, p.UserID)
			if err != nil {
				return ParticipantUpdate{}, fmt.Errorf("failed to reload participant: %w", err)
			}
			update.NewlyCompleted = false
			update.CompletedAt = stored.CompletedAt
			update.Status = stored.Status
		} else {
			metrics.TrackReconcileOutcome(metrics.OutcomeParticipantCompleted)
			s.logger.Info("challenge_participant_completed",
				zap.String("challenge_id", challenge.ID.String()),
				zap.String("user_id", p.UserID.String()),
				zap.Int("progress", update.Progress),
			)
		}
	}
	return update, nil
}

func isClosed(c *models.Challenge) bool {
	return c.Status == models.ChallengeStatusCompleted || c.Status == models.ChallengeStatusCancelled
}
