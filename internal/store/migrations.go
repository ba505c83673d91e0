package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS candidates (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	name           TEXT NOT NULL,
	email          TEXT NOT NULL DEFAULT '',
	phone          TEXT NOT NULL DEFAULT '',
	location       TEXT NOT NULL DEFAULT '',
	titles         TEXT NOT NULL DEFAULT '[]',
	skills         TEXT NOT NULL DEFAULT '[]',
	years_exp      REAL,
	resume_path    TEXT NOT NULL DEFAULT '',
	source_message TEXT NOT NULL DEFAULT '',
	notes          TEXT NOT NULL DEFAULT '',
	tags           TEXT NOT NULL DEFAULT '[]',
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS jobs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	title           TEXT NOT NULL,
	required_skills TEXT NOT NULL DEFAULT '[]',
	min_exp         REAL NOT NULL DEFAULT 0,
	location        TEXT NOT NULL DEFAULT '',
	remote_ok       INTEGER NOT NULL DEFAULT 0 CHECK(remote_ok IN (0, 1)),
	raw_text        TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS match_results (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id       INTEGER NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	candidate_id INTEGER NOT NULL REFERENCES candidates(id) ON DELETE CASCADE,
	score        REAL NOT NULL DEFAULT 0,
	reasons      TEXT NOT NULL DEFAULT '[]',
	fit_level    TEXT NOT NULL DEFAULT 'low' CHECK(fit_level IN ('low', 'medium', 'high'))
);

CREATE TABLE IF NOT EXISTS notifications (
	id           TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	message      TEXT NOT NULL,
	candidate_id INTEGER NOT NULL DEFAULT 0,
	job_id       INTEGER NOT NULL DEFAULT 0,
	read         INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_candidates_email ON candidates(email);
CREATE INDEX IF NOT EXISTS idx_candidates_created_at ON candidates(created_at);
CREATE INDEX IF NOT EXISTS idx_match_results_job_id ON match_results(job_id);
CREATE INDEX IF NOT EXISTS idx_match_results_candidate_id ON match_results(candidate_id);
CREATE INDEX IF NOT EXISTS idx_notifications_read ON notifications(read);
CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_match_results_job_score
	ON match_results(job_id, score);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
