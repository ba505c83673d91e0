package store

import (
	"context"

	"github.com/tdvo/mailscreen/internal/model"
)

// CandidateFilter controls filtering, sorting, and pagination for
// candidate queries. Text filters are substring matches.
type CandidateFilter struct {
	Query    *string // search name + email + notes
	Skill    *string // substring match inside the skills list
	Location *string
	SortBy   string // "created_at", "name", "email", "years_exp"
	SortDesc bool
	Limit    int
	Offset   int
}

// Store defines the persistence interface for candidates, job
// requisitions, match results, and notifications.
type Store interface {
	// === Candidates ===

	CreateCandidate(ctx context.Context, c *model.Candidate) error
	UpdateCandidate(ctx context.Context, c *model.Candidate) error
	DeleteCandidate(ctx context.Context, id int64) error
	GetCandidateByID(ctx context.Context, id int64) (*model.Candidate, error)
	GetCandidateByEmail(ctx context.Context, email string) (*model.Candidate, error)
	GetCandidates(ctx context.Context, filter CandidateFilter) ([]model.Candidate, error)

	// === Job requisitions ===

	CreateJob(ctx context.Context, j *model.JobRequisition) error
	UpdateJob(ctx context.Context, j *model.JobRequisition) error
	DeleteJob(ctx context.Context, id int64) error
	GetJobByID(ctx context.Context, id int64) (*model.JobRequisition, error)
	GetJobs(ctx context.Context) ([]model.JobRequisition, error)

	// === Match results ===

	// ReplaceMatchesForJob deletes all prior results for the job and
	// inserts the given rows in one transaction.
	ReplaceMatchesForJob(ctx context.Context, jobID int64, results []model.MatchResult) error
	GetMatchesForJob(ctx context.Context, jobID int64) ([]model.MatchResult, error)

	// === Notifications ===

	CreateNotification(ctx context.Context, n model.Notification) error
	GetUnreadNotifications(ctx context.Context) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}
