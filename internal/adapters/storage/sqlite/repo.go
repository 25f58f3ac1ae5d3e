package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/evanschultz/cardclock/internal/app"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// memoryDBSeq names each in-memory database so separate opens never share state.
var memoryDBSeq atomic.Int64

// Repository stores scoped values and report runs in SQLite.
type Repository struct {
	db    *sql.DB
	clock func() time.Time
}

var _ app.Store = (*Repository)(nil)

// Open opens the database at path, creating parent directories and schema as needed.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newRepository(db)
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*Repository, error) {
	dsn := fmt.Sprintf("file:cardclock-mem-%d?mode=memory&cache=shared", memoryDBSeq.Add(1))
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	return newRepository(db)
}

func newRepository(db *sql.DB) (*Repository, error) {
	repo := &Repository{db: db, clock: time.Now}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping verifies the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate creates the schema.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS scoped_values (
			scope_kind TEXT NOT NULL,
			scope_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value BLOB NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (scope_kind, scope_id, key)
		);`,
		`CREATE TABLE IF NOT EXISTS report_runs (
			id TEXT PRIMARY KEY,
			board_id TEXT NOT NULL DEFAULT '',
			list_id TEXT NOT NULL,
			list_name TEXT NOT NULL DEFAULT '',
			file_name TEXT NOT NULL,
			card_count INTEGER NOT NULL DEFAULT 0,
			member_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_report_runs_list_created ON report_runs(list_id, created_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// GetValue returns the value stored under key in scope.
func (r *Repository) GetValue(ctx context.Context, scope app.Scope, key string) ([]byte, error) {
	if err := validateScope(scope, key); err != nil {
		return nil, err
	}
	var value []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT value
		FROM scoped_values
		WHERE scope_kind = ? AND scope_id = ? AND key = ?
	`, string(scope.Kind), scope.ID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, app.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// SetValue upserts the value stored under key in scope.
func (r *Repository) SetValue(ctx context.Context, scope app.Scope, key string, value []byte) error {
	if err := validateScope(scope, key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scoped_values(scope_kind, scope_id, key, value, updated_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(scope_kind, scope_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, string(scope.Kind), scope.ID, key, value, ts(r.clock()))
	return err
}

// DeleteValue removes key from scope.
func (r *Repository) DeleteValue(ctx context.Context, scope app.Scope, key string) error {
	if err := validateScope(scope, key); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM scoped_values
		WHERE scope_kind = ? AND scope_id = ? AND key = ?
	`, string(scope.Kind), scope.ID, key)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// CreateReportRun records one generated report.
func (r *Repository) CreateReportRun(ctx context.Context, run app.ReportRun) error {
	if strings.TrimSpace(run.ID) == "" || strings.TrimSpace(run.ListID) == "" {
		return fmt.Errorf("%w: report run id and list id are required", app.ErrInvalidInput)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO report_runs(id, board_id, list_id, list_name, file_name, card_count, member_count, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.BoardID, run.ListID, run.ListName, run.FileName, run.CardCount, run.MemberCount, ts(run.CreatedAt))
	return err
}

// ListReportRuns returns up to limit runs for listID, newest first.
func (r *Repository) ListReportRuns(ctx context.Context, listID string, limit int) ([]app.ReportRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, board_id, list_id, list_name, file_name, card_count, member_count, created_at
		FROM report_runs
		WHERE list_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, listID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []app.ReportRun{}
	for rows.Next() {
		var (
			run        app.ReportRun
			createdRaw string
		)
		if err := rows.Scan(&run.ID, &run.BoardID, &run.ListID, &run.ListName, &run.FileName, &run.CardCount, &run.MemberCount, &createdRaw); err != nil {
			return nil, err
		}
		run.CreatedAt = parseTS(createdRaw)
		out = append(out, run)
	}
	return out, rows.Err()
}

func validateScope(scope app.Scope, key string) error {
	switch scope.Kind {
	case app.ScopeBoard, app.ScopeCard, app.ScopeOrganization:
	default:
		return fmt.Errorf("%w: unknown scope kind %q", app.ErrInvalidInput, scope.Kind)
	}
	if strings.TrimSpace(scope.ID) == "" || strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: scope id and key are required", app.ErrInvalidInput)
	}
	return nil
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}
