package db

import (
	"context"
	"fmt"
	"strings"
)

type columnTypes struct {
	ID        string
	Timestamp string
	Serial    string
	JSON      string
}

var (
	postgresTypes = columnTypes{ID: "UUID", Timestamp: "TIMESTAMPTZ", Serial: "BIGSERIAL PRIMARY KEY", JSON: "JSONB"}
	sqliteTypes   = columnTypes{ID: "TEXT", Timestamp: "TIMESTAMP", Serial: "INTEGER PRIMARY KEY AUTOINCREMENT", JSON: "TEXT"}
)

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS books (
	id {{ID}} PRIMARY KEY,
	isbn TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	author TEXT NOT NULL,
	total_copies INTEGER NOT NULL CHECK (total_copies >= 0),
	available_copies INTEGER NOT NULL CHECK (available_copies >= 0 AND available_copies <= total_copies),
	created_at {{TS}} NOT NULL,
	updated_at {{TS}} NOT NULL
);

CREATE TABLE IF NOT EXISTS students (
	user_id {{ID}} PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	roll_no TEXT NOT NULL,
	created_at {{TS}} NOT NULL
);

CREATE TABLE IF NOT EXISTS student_credentials (
	user_id {{ID}} PRIMARY KEY REFERENCES students(user_id),
	password_hash TEXT NOT NULL,
	salt TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS issues (
	id {{ID}} PRIMARY KEY,
	book_id {{ID}} NOT NULL REFERENCES books(id),
	student_id {{ID}} NOT NULL REFERENCES students(user_id),
	issue_date {{TS}} NOT NULL,
	due_date {{TS}} NOT NULL,
	return_date {{TS}},
	returned BOOLEAN NOT NULL DEFAULT FALSE,
	overdue_notices_sent INTEGER NOT NULL DEFAULT 0,
	last_notice_sent {{TS}},
	last_overdue_notice {{TS}},
	CHECK (due_date > issue_date),
	CHECK (returned = (return_date IS NOT NULL))
);

CREATE UNIQUE INDEX IF NOT EXISTS issues_one_active_per_pair ON issues (book_id, student_id) WHERE NOT returned;
CREATE INDEX IF NOT EXISTS issues_active_due_date ON issues (due_date) WHERE NOT returned;
CREATE INDEX IF NOT EXISTS issues_issue_date ON issues (issue_date);

CREATE TABLE IF NOT EXISTS circulation_events (
	id {{SERIAL}},
	aggregate_id {{ID}} NOT NULL,
	event_type TEXT NOT NULL,
	event_data {{JSON}} NOT NULL,
	version INTEGER NOT NULL,
	created_at {{TS}} NOT NULL,
	UNIQUE (aggregate_id, version)
);

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	student_id {{ID}},
	issue_id {{ID}},
	type TEXT NOT NULL,
	recipient TEXT NOT NULL,
	subject TEXT NOT NULL,
	message TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	created_at {{TS}} NOT NULL
);

CREATE INDEX IF NOT EXISTS notifications_student ON notifications (student_id, created_at);
`

// Schema renders the bootstrap DDL for the pool's driver.
func (d *DB) Schema() string {
	types := postgresTypes
	if d.IsSQLite() {
		types = sqliteTypes
	}
	return renderSchema(types)
}

func renderSchema(types columnTypes) string {
	return strings.NewReplacer(
		"{{ID}}", types.ID,
		"{{TS}}", types.Timestamp,
		"{{SERIAL}}", types.Serial,
		"{{JSON}}", types.JSON,
	).Replace(schemaTemplate)
}

// EnsureSchema creates missing tables and indexes. It never alters
// existing ones; schema migrations are handled outside the service.
func (d *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(d.Schema(), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
