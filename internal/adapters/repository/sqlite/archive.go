// Package sqlite provides a durable append-only copy of judge flags.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/jury/internal/domain/model"
)

// ErrNotConfigured is returned by a nil or closed archive.
var ErrNotConfigured = errors.New("flag archive is not configured")

const schema = `
CREATE TABLE IF NOT EXISTS flags (
	id          TEXT PRIMARY KEY,
	judge_id    TEXT NOT NULL,
	project_id  TEXT NOT NULL,
	reason      TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS flags_project_idx ON flags (project_id);
`

// FlagArchive stores flags in SQLite.
type FlagArchive struct {
	sqlDB *sql.DB
}

// Open opens the archive at path and creates the schema when missing.
func Open(path string) (*FlagArchive, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("archive path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &FlagArchive{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (a *FlagArchive) Close() error {
	if a == nil || a.sqlDB == nil {
		return nil
	}
	return a.sqlDB.Close()
}

// Append persists f. Re-appending the same flag id is a no-op.
func (a *FlagArchive) Append(ctx context.Context, f model.Flag) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a == nil || a.sqlDB == nil {
		return ErrNotConfigured
	}
	if f.ID == "" || f.JudgeID == "" || f.ProjectID == "" {
		return fmt.Errorf("flag id, judge id and project id are required")
	}
	if f.Time.IsZero() {
		f.Time = time.Now().UTC()
	}

	_, err := a.sqlDB.ExecContext(ctx, `
INSERT OR IGNORE INTO flags (id, judge_id, project_id, reason, created_at)
VALUES (?, ?, ?, ?, ?)
`,
		f.ID,
		f.JudgeID,
		f.ProjectID,
		string(f.Reason),
		f.Time.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append flag: %w", err)
	}
	return nil
}

// List returns up to limit flags, oldest first.
func (a *FlagArchive) List(ctx context.Context, limit int) ([]model.Flag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a == nil || a.sqlDB == nil {
		return nil, ErrNotConfigured
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := a.sqlDB.QueryContext(ctx, `
SELECT id, judge_id, project_id, reason, created_at
FROM flags
ORDER BY created_at ASC, id ASC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	defer rows.Close()

	out := make([]model.Flag, 0)
	for rows.Next() {
		var (
			f         model.Flag
			reason    string
			createdAt int64
		)
		if err := rows.Scan(&f.ID, &f.JudgeID, &f.ProjectID, &reason, &createdAt); err != nil {
			return nil, fmt.Errorf("scan flag: %w", err)
		}
		f.Reason = model.FlagReason(reason)
		f.Time = time.UnixMilli(createdAt).UTC()
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flags: %w", err)
	}
	return out, nil
}

// CountByProject returns how many flags each project has received.
func (a *FlagArchive) CountByProject(ctx context.Context) (map[string]int, error) {
	if a == nil || a.sqlDB == nil {
		return nil, ErrNotConfigured
	}
	rows, err := a.sqlDB.QueryContext(ctx, `SELECT project_id, COUNT(*) FROM flags GROUP BY project_id`)
	if err != nil {
		return nil, fmt.Errorf("count flags: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[id] = n
	}
	return out, rows.Err()
}
