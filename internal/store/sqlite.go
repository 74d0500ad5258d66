package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "modernc.org/sqlite"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var _ Store = (*SQLite)(nil)

// SQLite is a Store backed by a single SQLite database file.
type SQLite struct {
	db   *sql.DB
	path string
}

// DefaultPath returns $XDG_STATE_HOME/alist-sync/jobs.db, falling back to
// ~/.local/state and then the temp dir.
func DefaultPath() string {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "state")
		} else {
			dir = os.TempDir()
		}
	}
	return filepath.Join(dir, "alist-sync", "jobs.db")
}

// OpenSQLite opens (or creates) the database at path. An empty path selects
// DefaultPath.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// Workers write concurrently; one connection serializes them.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, path: path}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS items (
			id          TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			source_path TEXT NOT NULL DEFAULT '',
			target_path TEXT NOT NULL,
			backup_dir  TEXT NOT NULL DEFAULT '',
			backup_path TEXT NOT NULL DEFAULT '',
			need_backup INTEGER NOT NULL DEFAULT 0,
			status      TEXT NOT NULL,
			error_info  TEXT NOT NULL DEFAULT '',
			owner       TEXT NOT NULL DEFAULT '',
			size        INTEGER NOT NULL DEFAULT 0,
			created_at  INTEGER NOT NULL,
			done_at     INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS logs (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			id          TEXT NOT NULL,
			kind        TEXT NOT NULL,
			source_path TEXT NOT NULL DEFAULT '',
			target_path TEXT NOT NULL,
			backup_dir  TEXT NOT NULL DEFAULT '',
			backup_path TEXT NOT NULL DEFAULT '',
			need_backup INTEGER NOT NULL DEFAULT 0,
			status      TEXT NOT NULL,
			error_info  TEXT NOT NULL DEFAULT '',
			owner       TEXT NOT NULL DEFAULT '',
			size        INTEGER NOT NULL DEFAULT 0,
			created_at  INTEGER NOT NULL,
			done_at     INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS logs_owner ON logs (owner);
		CREATE TABLE IF NOT EXISTS copy_tasks (
			job       TEXT NOT NULL,
			name      TEXT NOT NULL,
			src_dir   TEXT NOT NULL,
			dst_dir   TEXT NOT NULL,
			file_name TEXT NOT NULL,
			status    TEXT NOT NULL,
			remote_id TEXT NOT NULL DEFAULT '',
			size      INTEGER NOT NULL DEFAULT 0,
			retired   TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY (job, name)
		);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	for _, table := range []string{"items", "logs"} {
		if err := s.addColumn(table, "backup_path", "TEXT NOT NULL DEFAULT ''"); err != nil {
			return err
		}
	}
	return s.addColumn("copy_tasks", "retired", "TEXT NOT NULL DEFAULT '[]'")
}

// addColumn adds a column missing from a database created by an older
// release.
func (s *SQLite) addColumn(table, column, decl string) error {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.db.Exec("ALTER TABLE " + table + " ADD COLUMN " + column + " " + decl); err != nil {
		return fmt.Errorf("add %s.%s: %w", table, column, err)
	}
	return nil
}

const recordColumns = "id, kind, source_path, target_path, backup_dir, backup_path, need_backup, " +
	"status, error_info, owner, size, created_at, done_at"

// recordValues is the placeholder list matching recordColumns.
var recordValues = strings.TrimSuffix(strings.Repeat("?, ", strings.Count(recordColumns, ",")+1), ", ")

func recordArgs(r Record) []any {
	return []any{
		r.ID, r.Kind, r.SourcePath, r.TargetPath, r.BackupDir, r.BackupPath, r.NeedBackup,
		r.Status, r.ErrorInfo, r.Owner, r.Size, unixNano(r.CreatedAt), unixNano(r.DoneAt),
	}
}

func (s *SQLite) Upsert(ctx context.Context, rec Record, fields ...Field) error {
	if err := validate(fields); err != nil {
		return err
	}
	set := make([]string, 0, 12)
	if len(fields) == 0 {
		for _, col := range strings.Split(recordColumns, ", ")[1:] {
			set = append(set, col+" = excluded."+col)
		}
	} else {
		for _, f := range fields {
			set = append(set, string(f)+" = excluded."+string(f))
		}
	}

	q := "INSERT INTO items (" + recordColumns + ") VALUES (" + recordValues + ") " +
		"ON CONFLICT(id) DO UPDATE SET " + strings.Join(set, ", ")
	if _, err := s.db.ExecContext(ctx, q, recordArgs(rec)...); err != nil {
		return fmt.Errorf("upsert %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

func (s *SQLite) AppendLog(ctx context.Context, rec Record) error {
	q := "INSERT INTO logs (" + recordColumns + ") VALUES (" + recordValues + ")"
	if _, err := s.db.ExecContext(ctx, q, recordArgs(rec)...); err != nil {
		return fmt.Errorf("append log %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLite) Pending(ctx context.Context) ([]Record, error) {
	return s.query(ctx, "SELECT "+recordColumns+" FROM items ORDER BY created_at, id")
}

func (s *SQLite) Logs(ctx context.Context, owner string) ([]Record, error) {
	if owner == "" {
		return s.query(ctx, "SELECT "+recordColumns+" FROM logs ORDER BY seq")
	}
	return s.query(ctx, "SELECT "+recordColumns+" FROM logs WHERE owner = ? ORDER BY seq", owner)
}

func (s *SQLite) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r              Record
			created, doneN int64
		)
		if err := rows.Scan(&r.ID, &r.Kind, &r.SourcePath, &r.TargetPath, &r.BackupDir,
			&r.BackupPath, &r.NeedBackup, &r.Status, &r.ErrorInfo, &r.Owner, &r.Size, &created, &doneN); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		r.CreatedAt, r.DoneAt = fromUnixNano(created), fromUnixNano(doneN)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) SaveCopyTasks(ctx context.Context, job string, tasks []CopyTask) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM copy_tasks WHERE job = ?", job); err != nil {
		return fmt.Errorf("clear copy tasks: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO copy_tasks "+
		"(job, name, src_dir, dst_dir, file_name, status, remote_id, size, retired) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, t := range tasks {
		var retired []byte
		if retired, err = json.Marshal(t.Retired); err != nil {
			return fmt.Errorf("encode retired ids of %s: %w", t.Name, err)
		}
		if _, err = stmt.ExecContext(ctx, job, t.Name, t.SrcDir, t.DstDir, t.FileName,
			t.Status, t.RemoteID, t.Size, string(retired)); err != nil {
			return fmt.Errorf("insert copy task %s: %w", t.Name, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLite) LoadCopyTasks(ctx context.Context, job string) ([]CopyTask, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, src_dir, dst_dir, file_name, status, remote_id, size, retired "+
		"FROM copy_tasks WHERE job = ? ORDER BY name", job)
	if err != nil {
		return nil, fmt.Errorf("load copy tasks: %w", err)
	}
	defer rows.Close()

	var out []CopyTask
	for rows.Next() {
		var (
			t       CopyTask
			retired string
		)
		if err := rows.Scan(&t.Name, &t.SrcDir, &t.DstDir, &t.FileName, &t.Status, &t.RemoteID, &t.Size, &retired); err != nil {
			return nil, fmt.Errorf("scan copy task: %w", err)
		}
		if err := json.Unmarshal([]byte(retired), &t.Retired); err != nil {
			return nil, fmt.Errorf("decode retired ids of %s: %w", t.Name, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLite) DeleteCopyTasks(ctx context.Context, job string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM copy_tasks WHERE job = ?", job); err != nil {
		return fmt.Errorf("delete copy tasks: %w", err)
	}
	return nil
}

// Path returns the database file location.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
