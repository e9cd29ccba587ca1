package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/benvon/habit-tracker/internal/analytics"
	"github.com/benvon/habit-tracker/internal/models"
	"github.com/google/uuid"
)

// ChallengeRepository handles challenge and participant database operations.
// State transitions are conditional updates that report whether they applied.
type ChallengeRepository struct {
	db *DB
}

// NewChallengeRepository creates a new challenge repository
func NewChallengeRepository(db *DB) *ChallengeRepository {
	return &ChallengeRepository{db: db}
}

const challengeColumns = `c.id, c.creator_id, c.habit_id, c.habit_name, c.title, c.description,
	c.start_date, c.end_date, c.target_completions, c.status, c.created_at, c.updated_at`

const participantColumns = `p.challenge_id, p.user_id, p.status, p.habit_id, p.current_progress,
	p.completed_at, p.joined_at, p.updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanChallenge(row scanner) (*models.Challenge, error) {
	c := &models.Challenge{}
	err := row.Scan(
		&c.ID,
		&c.CreatorID,
		&c.HabitID,
		&c.HabitName,
		&c.Title,
		&c.Description,
		&c.StartDate,
		&c.EndDate,
		&c.TargetCompletions,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.StartDate = analytics.Day(c.StartDate)
	c.EndDate = analytics.Day(c.EndDate)
	return c, nil
}

func scanParticipant(row scanner) (*models.ChallengeParticipant, error) {
	p := &models.ChallengeParticipant{}
	var habitID uuid.NullUUID
	var completedAt sql.NullTime
	err := row.Scan(
		&p.ChallengeID,
		&p.UserID,
		&p.Status,
		&habitID,
		&p.CurrentProgress,
		&completedAt,
		&p.JoinedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if habitID.Valid {
		p.HabitID = &habitID.UUID
	}
	if completedAt.Valid {
		p.CompletedAt = &completedAt.Time
	}
	return p, nil
}

// CreateChallenge stores a challenge and its creator participant in one transaction
func (r *ChallengeRepository) CreateChallenge(ctx context.Context, c *models.Challenge, creator *models.ChallengeParticipant) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO challenges (id, creator_id, habit_id, habit_name, title, description,
				start_date, end_date, target_completions, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`,
			c.ID,
			c.CreatorID,
			c.HabitID,
			c.HabitName,
			c.Title,
			c.Description,
			analytics.DateKey(c.StartDate),
			analytics.DateKey(c.EndDate),
			c.TargetCompletions,
			c.Status,
			c.CreatedAt,
			c.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create challenge: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO challenge_participants (challenge_id, user_id, status, habit_id, current_progress, joined_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			creator.ChallengeID,
			creator.UserID,
			creator.Status,
			creator.HabitID,
			creator.CurrentProgress,
			creator.JoinedAt,
			creator.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to add creator: %w", err)
		}
		return nil
	})
}

// GetChallenge retrieves a challenge by ID
func (r *ChallengeRepository) GetChallenge(ctx context.Context, id uuid.UUID) (*models.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges c WHERE c.id = $1`
	c, err := scanChallenge(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %w", notFound("challenge", err))
	}
	return c, nil
}

// ListChallengesForUser lists challenges the user created or participates in, newest first
func (r *ChallengeRepository) ListChallengesForUser(ctx context.Context, userID uuid.UUID) ([]*models.Challenge, error) {
	query := `
		SELECT ` + challengeColumns + `
		FROM challenges c
		WHERE c.creator_id = $1
		   OR EXISTS (SELECT 1 FROM challenge_participants p WHERE p.challenge_id = c.id AND p.user_id = $1)
		ORDER BY c.created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query challenges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	list := make([]*models.Challenge, 0)
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating challenges: %w", err)
	}
	return list, nil
}

// ListOpenChallengeIDsForUser lists pending or active challenges the user has accepted
func (r *ChallengeRepository) ListOpenChallengeIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT c.id
		FROM challenges c
		JOIN challenge_participants p ON p.challenge_id = c.id
		WHERE p.user_id = $1
		  AND p.status IN ('accepted', 'completed')
		  AND c.status IN ('pending', 'active')
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query open challenges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan challenge id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating challenge ids: %w", err)
	}
	return ids, nil
}

// ListParticipants lists a challenge's participants in join order
func (r *ChallengeRepository) ListParticipants(ctx context.Context, challengeID uuid.UUID) ([]*models.ChallengeParticipant, error) {
	query := `SELECT ` + participantColumns + ` FROM challenge_participants p WHERE p.challenge_id = $1 ORDER BY p.joined_at ASC, p.user_id ASC`

	rows, err := r.db.QueryContext(ctx, query, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	list := make([]*models.ChallengeParticipant, 0)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}
	return list, nil
}

// GetParticipant retrieves one participant
func (r *ChallengeRepository) GetParticipant(ctx context.Context, challengeID, userID uuid.UUID) (*models.ChallengeParticipant, error) {
	query := `SELECT ` + participantColumns + ` FROM challenge_participants p WHERE p.challenge_id = $1 AND p.user_id = $2`
	p, err := scanParticipant(r.db.QueryRowContext(ctx, query, challengeID, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", notFound("participant", err))
	}
	return p, nil
}

// AddParticipant inserts a participant unless the user is already in the challenge
func (r *ChallengeRepository) AddParticipant(ctx context.Context, p *models.ChallengeParticipant) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO challenge_participants (challenge_id, user_id, status, habit_id, current_progress, joined_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (challenge_id, user_id) DO NOTHING
	`, p.ChallengeID, p.UserID, p.Status, p.HabitID, p.CurrentProgress, p.JoinedAt, p.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to add participant: %w", err)
	}
	return applied(result)
}

// RespondParticipant answers an invitation; it applies only while the participant is invited
func (r *ChallengeRepository) RespondParticipant(ctx context.Context, challengeID, userID uuid.UUID, to models.ParticipantStatus, habitID *uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE challenge_participants
		SET status = $3, habit_id = $4, updated_at = $5
		WHERE challenge_id = $1 AND user_id = $2 AND status = 'invited'
	`, challengeID, userID, to, habitID, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to record response: %w", err)
	}
	return applied(result)
}

// UpdateProgress stores a freshly computed progress count
func (r *ChallengeRepository) UpdateProgress(ctx context.Context, challengeID, userID uuid.UUID, progress int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE challenge_participants
		SET current_progress = $3, updated_at = $4
		WHERE challenge_id = $1 AND user_id = $2
	`, challengeID, userID, progress, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return expectOneRow(result, "participant")
}

// MarkParticipantCompleted latches completion. It applies only when no
// completion time has been stored yet, so concurrent runs cannot overwrite it.
func (r *ChallengeRepository) MarkParticipantCompleted(ctx context.Context, challengeID, userID uuid.UUID, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE challenge_participants
		SET status = 'completed', completed_at = $3, updated_at = $3
		WHERE challenge_id = $1 AND user_id = $2 AND completed_at IS NULL
	`, challengeID, userID, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark participant completed: %w", err)
	}
	return applied(result)
}

// TransitionChallengeStatus moves a challenge from one status to another,
// applying only when the stored status still equals from
func (r *ChallengeRepository) TransitionChallengeStatus(ctx context.Context, id uuid.UUID, from, to models.ChallengeStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE challenges SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`, id, from, to, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to transition challenge: %w", err)
	}
	return applied(result)
}

func applied(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}
