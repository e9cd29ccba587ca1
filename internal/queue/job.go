package queue

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeReconcileChallenge re-evaluates one challenge after entries changed
	JobTypeReconcileChallenge JobType = "reconcile_challenge"
	// JobTypeRefreshLeaderboard recomputes and caches one leaderboard window
	JobTypeRefreshLeaderboard JobType = "refresh_leaderboard"
)

// DefaultMaxRetries bounds redelivery before a job is dead-lettered
const DefaultMaxRetries = 3

// Job represents a job in the queue
type Job struct {
	ID          uuid.UUID      `json:"id"`
	Type        JobType        `json:"type"`
	UserID      *uuid.UUID     `json:"user_id,omitempty"`
	ChallengeID *uuid.UUID     `json:"challenge_id,omitempty"`
	Window      string         `json:"window,omitempty"`
	NotBefore   *time.Time     `json:"not_before,omitempty"`
	NotAfter    *time.Time     `json:"not_after,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	RetryCount  int            `json:"retry_count"`
	MaxRetries  int            `json:"max_retries"`
}

// NewJob creates a new job of the given type
func NewJob(jobType JobType) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		Metadata:   make(map[string]any),
		CreatedAt:  time.Now(),
		MaxRetries: DefaultMaxRetries,
	}
}

// NewReconcileJob creates a reconcile job for challengeID that runs no earlier than delay from now.
// triggeredBy is the user whose entry change caused it, if any.
func NewReconcileJob(challengeID uuid.UUID, triggeredBy *uuid.UUID, delay time.Duration) *Job {
	job := NewJob(JobTypeReconcileChallenge)
	job.ChallengeID = &challengeID
	job.UserID = triggeredBy
	if delay > 0 {
		notBefore := job.CreatedAt.Add(delay)
		job.NotBefore = &notBefore
	}
	return job
}

// NewLeaderboardRefreshJob creates a refresh job for one window that is
// dropped if it cannot start before the next scheduled refresh
func NewLeaderboardRefreshJob(window string, ttl time.Duration) *Job {
	job := NewJob(JobTypeRefreshLeaderboard)
	job.Window = window
	if ttl > 0 {
		notAfter := job.CreatedAt.Add(ttl)
		job.NotAfter = &notAfter
	}
	return job
}

// ShouldProcess reports whether now falls inside the job's NotBefore/NotAfter window
func (j *Job) ShouldProcess() bool {
	now := time.Now()
	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}
	if j.NotAfter != nil && now.After(*j.NotAfter) {
		return false
	}
	return true
}

// IsExpired checks if the job has passed its NotAfter deadline
func (j *Job) IsExpired() bool {
	return j.NotAfter != nil && time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}
