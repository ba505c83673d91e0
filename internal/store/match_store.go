package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tdvo/mailscreen/internal/model"
)

// ReplaceMatchesForJob deletes every prior result for the job and
// inserts the given rows inside one transaction, filling in assigned
// ids. A failed insert rolls back the delete.
func (s *SQLiteStore) ReplaceMatchesForJob(ctx context.Context, jobID int64, results []model.MatchResult) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM match_results WHERE job_id = ?", jobID); err != nil {
		return fmt.Errorf("clearing match results for job %d: %w", jobID, err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO match_results (job_id, candidate_id, score, reasons, fit_level)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing match insert: %w", err)
	}
	defer stmt.Close()

	for i := range results {
		r := &results[i]
		r.JobID = jobID

		reasons, err := json.Marshal(emptyIfNil(r.Reasons))
		if err != nil {
			return fmt.Errorf("marshaling reasons: %w", err)
		}

		res, err := stmt.ExecContext(ctx,
			r.JobID, r.CandidateID, r.Score, string(reasons), string(r.FitLevel))
		if err != nil {
			return fmt.Errorf("inserting match for candidate %d: %w", r.CandidateID, err)
		}

		r.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading match id: %w", err)
		}
	}

	return tx.Commit()
}

// GetMatchesForJob retrieves a job's match results ranked by
// descending score, ties broken by insertion order.
func (s *SQLiteStore) GetMatchesForJob(ctx context.Context, jobID int64) ([]model.MatchResult, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM match_results WHERE job_id = ? ORDER BY score DESC, id ASC", jobID)
	if err != nil {
		return nil, fmt.Errorf("querying match results for job %d: %w", jobID, err)
	}
	defer rows.Close()

	var results []model.MatchResult
	for rows.Next() {
		r, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}

	return results, rows.Err()
}

// scanMatch scans one match result row, decoding the JSON reasons column.
func scanMatch(row rowScanner) (*model.MatchResult, error) {
	var (
		r        model.MatchResult
		reasons  string
		fitLevel string
	)

	err := row.Scan(&r.ID, &r.JobID, &r.CandidateID, &r.Score, &reasons, &fitLevel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning match row: %w", err)
	}

	r.FitLevel = model.FitLevel(fitLevel)

	if reasons != "" {
		if err := json.Unmarshal([]byte(reasons), &r.Reasons); err != nil {
			return nil, fmt.Errorf("unmarshaling reasons: %w", err)
		}
	}

	return &r, nil
}
