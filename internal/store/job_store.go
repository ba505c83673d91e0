package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tdvo/mailscreen/internal/mailbox"
	"github.com/tdvo/mailscreen/internal/model"
)

// CreateJob inserts a new job requisition and fills in its assigned id.
func (s *SQLiteStore) CreateJob(ctx context.Context, j *model.JobRequisition) error {
	skills, err := json.Marshal(emptyIfNil(j.RequiredSkills))
	if err != nil {
		return fmt.Errorf("marshaling required skills: %w", err)
	}

	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (title, required_skills, min_exp, location, remote_ok, raw_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.Title, string(skills), j.MinExp, j.Location,
		boolToInt(j.RemoteOK), j.RawText, j.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating job: %w", err)
	}

	j.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading job id: %w", err)
	}
	return nil
}

// UpdateJob replaces all mutable fields of an existing job requisition.
func (s *SQLiteStore) UpdateJob(ctx context.Context, j *model.JobRequisition) error {
	skills, err := json.Marshal(emptyIfNil(j.RequiredSkills))
	if err != nil {
		return fmt.Errorf("marshaling required skills: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET
			title = ?, required_skills = ?, min_exp = ?,
			location = ?, remote_ok = ?, raw_text = ?
		WHERE id = ?`,
		j.Title, string(skills), j.MinExp,
		j.Location, boolToInt(j.RemoteOK), j.RawText, j.ID,
	)
	if err != nil {
		return fmt.Errorf("updating job %d: %w", j.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating job %d: %w", j.ID, err)
	}
	if affected == 0 {
		return &mailbox.NotFoundError{Kind: "job", ID: fmt.Sprintf("%d", j.ID)}
	}
	return nil
}

// DeleteJob removes a job requisition and, via cascade, its match results.
func (s *SQLiteStore) DeleteJob(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting job %d: %w", id, err)
	}
	return nil
}

// GetJobByID retrieves a single job requisition by id.
func (s *SQLiteStore) GetJobByID(ctx context.Context, id int64) (*model.JobRequisition, error) {
	row := s.db.QueryRowxContext(ctx, "SELECT * FROM jobs WHERE id = ?", id)

	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &mailbox.NotFoundError{Kind: "job", ID: fmt.Sprintf("%d", id)}
	}
	if err != nil {
		return nil, fmt.Errorf("getting job %d: %w", id, err)
	}
	return j, nil
}

// GetJobs retrieves all job requisitions, newest first.
func (s *SQLiteStore) GetJobs(ctx context.Context) ([]model.JobRequisition, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT * FROM jobs ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.JobRequisition
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}

	return jobs, rows.Err()
}

// scanJob scans one job row, decoding the JSON skills column.
func scanJob(row rowScanner) (*model.JobRequisition, error) {
	var (
		j         model.JobRequisition
		skills    string
		remoteOK  int
		createdAt time.Time
	)

	err := row.Scan(
		&j.ID, &j.Title, &skills, &j.MinExp,
		&j.Location, &remoteOK, &j.RawText, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning job row: %w", err)
	}

	j.RemoteOK = remoteOK != 0
	j.CreatedAt = createdAt

	if skills != "" {
		if err := json.Unmarshal([]byte(skills), &j.RequiredSkills); err != nil {
			return nil, fmt.Errorf("unmarshaling required skills: %w", err)
		}
	}

	return &j, nil
}
