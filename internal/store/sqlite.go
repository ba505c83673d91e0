package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tdvo/mailscreen/internal/mailbox"
	"github.com/tdvo/mailscreen/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// SQLite allows a single writer, and the session pragmas below only
	// apply to the connection that runs them. One pooled connection
	// keeps both consistent.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// CreateCandidate inserts a new candidate and fills in its assigned id.
func (s *SQLiteStore) CreateCandidate(ctx context.Context, c *model.Candidate) error {
	titles, skills, tags, err := marshalCandidateLists(c)
	if err != nil {
		return err
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO candidates (
			name, email, phone, location,
			titles, skills, years_exp,
			resume_path, source_message, notes, tags, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.Email, c.Phone, c.Location,
		titles, skills, c.YearsExp,
		c.ResumePath, c.SourceMessage, c.Notes, tags, c.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating candidate: %w", err)
	}

	c.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading candidate id: %w", err)
	}
	return nil
}

// UpdateCandidate replaces all mutable fields of an existing candidate.
func (s *SQLiteStore) UpdateCandidate(ctx context.Context, c *model.Candidate) error {
	titles, skills, tags, err := marshalCandidateLists(c)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE candidates SET
			name = ?, email = ?, phone = ?, location = ?,
			titles = ?, skills = ?, years_exp = ?,
			resume_path = ?, source_message = ?, notes = ?, tags = ?
		WHERE id = ?`,
		c.Name, c.Email, c.Phone, c.Location,
		titles, skills, c.YearsExp,
		c.ResumePath, c.SourceMessage, c.Notes, tags, c.ID,
	)
	if err != nil {
		return fmt.Errorf("updating candidate %d: %w", c.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating candidate %d: %w", c.ID, err)
	}
	if affected == 0 {
		return &mailbox.NotFoundError{Kind: "candidate", ID: fmt.Sprintf("%d", c.ID)}
	}
	return nil
}

// DeleteCandidate removes a candidate by id.
func (s *SQLiteStore) DeleteCandidate(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM candidates WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting candidate %d: %w", id, err)
	}
	return nil
}

// GetCandidateByID retrieves a single candidate by id.
func (s *SQLiteStore) GetCandidateByID(ctx context.Context, id int64) (*model.Candidate, error) {
	row := s.db.QueryRowxContext(ctx, "SELECT * FROM candidates WHERE id = ?", id)

	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &mailbox.NotFoundError{Kind: "candidate", ID: fmt.Sprintf("%d", id)}
	}
	if err != nil {
		return nil, fmt.Errorf("getting candidate %d: %w", id, err)
	}
	return c, nil
}

// GetCandidateByEmail retrieves a candidate by email address,
// case-insensitively. A missing row returns (nil, nil).
func (s *SQLiteStore) GetCandidateByEmail(ctx context.Context, email string) (*model.Candidate, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}

	row := s.db.QueryRowxContext(ctx,
		"SELECT * FROM candidates WHERE LOWER(email) = LOWER(?) LIMIT 1", email)

	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting candidate by email: %w", err)
	}
	return c, nil
}

// GetCandidates retrieves candidates matching the provided filter.
func (s *SQLiteStore) GetCandidates(ctx context.Context, filter CandidateFilter) ([]model.Candidate, error) {
	var conditions []string
	var args []interface{}

	if filter.Query != nil && *filter.Query != "" {
		conditions = append(conditions, "(name LIKE ? OR email LIKE ? OR notes LIKE ?)")
		q := "%" + *filter.Query + "%"
		args = append(args, q, q, q)
	}
	if filter.Skill != nil && *filter.Skill != "" {
		conditions = append(conditions, "skills LIKE ?")
		args = append(args, "%"+*filter.Skill+"%")
	}
	if filter.Location != nil && *filter.Location != "" {
		conditions = append(conditions, "location LIKE ?")
		args = append(args, "%"+*filter.Location+"%")
	}

	query := "SELECT * FROM candidates"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	sortBy := "created_at"
	if filter.SortBy != "" {
		allowedSorts := map[string]bool{
			"name":       true,
			"email":      true,
			"years_exp":  true,
			"created_at": true,
		}
		if allowedSorts[filter.SortBy] {
			sortBy = filter.SortBy
		}
	}

	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s, id %s", sortBy, direction, direction)

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying candidates: %w", err)
	}
	defer rows.Close()

	var candidates []model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, *c)
	}

	return candidates, rows.Err()
}

// rowScanner covers sqlx.Row and sqlx.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanCandidate scans one candidate row, decoding the JSON list columns.
func scanCandidate(row rowScanner) (*model.Candidate, error) {
	var (
		c         model.Candidate
		titles    string
		skills    string
		tags      string
		yearsExp  sql.NullFloat64
		createdAt time.Time
	)

	err := row.Scan(
		&c.ID, &c.Name, &c.Email, &c.Phone, &c.Location,
		&titles, &skills, &yearsExp,
		&c.ResumePath, &c.SourceMessage, &c.Notes, &tags, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning candidate row: %w", err)
	}

	if yearsExp.Valid {
		c.YearsExp = &yearsExp.Float64
	}
	c.CreatedAt = createdAt

	for _, col := range []struct {
		raw  string
		dest *[]string
	}{
		{titles, &c.Titles},
		{skills, &c.Skills},
		{tags, &c.Tags},
	} {
		if col.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(col.raw), col.dest); err != nil {
			return nil, fmt.Errorf("unmarshaling candidate list column: %w", err)
		}
	}

	return &c, nil
}

// marshalCandidateLists encodes the candidate's list fields as JSON text.
func marshalCandidateLists(c *model.Candidate) (titles, skills, tags string, err error) {
	t, err := json.Marshal(emptyIfNil(c.Titles))
	if err != nil {
		return "", "", "", fmt.Errorf("marshaling titles: %w", err)
	}
	sk, err := json.Marshal(emptyIfNil(c.Skills))
	if err != nil {
		return "", "", "", fmt.Errorf("marshaling skills: %w", err)
	}
	tg, err := json.Marshal(emptyIfNil(c.Tags))
	if err != nil {
		return "", "", "", fmt.Errorf("marshaling tags: %w", err)
	}
	return string(t), string(sk), string(tg), nil
}

func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
