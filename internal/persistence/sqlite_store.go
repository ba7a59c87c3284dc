package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Sakimotor/TranslationFramework2/internal/jobs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore keeps the rebuild history in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ jobs.Store = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA foreign_keys = ON;",
	} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(path.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

// UpsertRun stores the run and replaces its asset results.
func (s *SQLiteStore) UpsertRun(ctx context.Context, run *jobs.RebuildRun) error {
	if run == nil {
		return fmt.Errorf("run is nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO rebuild_runs (id, source, status, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			source=excluded.source,
			status=excluded.status,
			error=excluded.error,
			updated_at=excluded.updated_at`,
		run.ID,
		string(run.Source),
		string(run.Status),
		run.Error,
		run.CreatedAt.UTC(),
		run.UpdatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("upsert run %s: %w", run.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM rebuild_assets WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("clear assets of run %s: %w", run.ID, err)
	}
	for _, a := range run.Assets {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO rebuild_assets (run_id, relative_path, status, entries, patched, output_path, error, started_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID,
			a.RelativePath,
			string(a.Status),
			a.Entries,
			a.Patched,
			a.OutputPath,
			a.Error,
			nullTime(a.StartedAt),
			run.UpdatedAt.UTC(),
		); err != nil {
			return fmt.Errorf("insert asset %s of run %s: %w", a.RelativePath, run.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) LoadRuns(ctx context.Context, limit int) ([]*jobs.RebuildRun, error) {
	query := `SELECT id, source, status, error, created_at, updated_at
		 FROM rebuild_runs
		 ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.RebuildRun, 0)
	byID := make(map[string]*jobs.RebuildRun)
	for rows.Next() {
		var item jobs.RebuildRun
		var source, status string
		if err := rows.Scan(&item.ID, &source, &status, &item.Error, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		item.Source = jobs.Source(source)
		item.Status = jobs.Status(status)
		ret = append(ret, &item)
		byID[item.ID] = &item
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ret) == 0 {
		return ret, nil
	}

	if err := s.loadAssets(ctx, byID); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) loadAssets(ctx context.Context, byID map[string]*jobs.RebuildRun) error {
	ids := make([]any, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT run_id, relative_path, status, entries, patched, output_path, error, started_at
		 FROM rebuild_assets
		 WHERE run_id IN (`+placeholders+`)
		 ORDER BY run_id, relative_path`,
		ids...,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var runID, status string
		var a jobs.AssetResult
		var startedAt sql.NullTime
		if err := rows.Scan(&runID, &a.RelativePath, &status, &a.Entries, &a.Patched, &a.OutputPath, &a.Error, &startedAt); err != nil {
			return err
		}
		a.Status = jobs.Status(status)
		if startedAt.Valid {
			a.StartedAt = startedAt.Time.UTC()
		}
		if run, ok := byID[runID]; ok {
			run.Assets = append(run.Assets, a)
		}
	}
	return rows.Err()
}

// LastSuccess returns when the newest successful rebuild of the asset
// started. Rows written before started_at existed fall back to the run's
// finish time.
func (s *SQLiteStore) LastSuccess(ctx context.Context, relativePath string) (time.Time, bool, error) {
	var startedAt, updatedAt sql.NullTime
	err := s.db.QueryRowContext(
		ctx,
		`SELECT started_at, updated_at FROM rebuild_assets
		 WHERE relative_path = ? AND status = ?
		 ORDER BY COALESCE(started_at, updated_at) DESC
		 LIMIT 1`,
		relativePath,
		string(jobs.StatusSuccess),
	).Scan(&startedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	if startedAt.Valid {
		return startedAt.Time, true, nil
	}
	return updatedAt.Time, updatedAt.Valid, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// PruneRuns deletes all but the newest keep runs.
func (s *SQLiteStore) PruneRuns(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM rebuild_runs WHERE id NOT IN (
			SELECT id FROM rebuild_runs ORDER BY created_at DESC, id DESC LIMIT ?
		)`,
		keep,
	)
	if err != nil {
		return 0, err
	}
	// foreign_keys is per connection; do not rely on the cascade alone
	if _, err := s.db.ExecContext(ctx, `DELETE FROM rebuild_assets WHERE run_id NOT IN (SELECT id FROM rebuild_runs)`); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
