package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Store is the SQL-backed guest store. It works on SQLite (cgo or pure Go
// driver) and PostgreSQL; queries use $N placeholders numbered in order of
// first appearance so that both engines bind them the same way.
type Store struct {
	db     *sql.DB
	driver string
	log    zerolog.Logger
}

// Open connects to the database, creating the SQLite file's directory when
// needed, and applies the schema
func Open(ctx context.Context, driver, dsn string, log zerolog.Logger) (*Store, error) {
	if isSQLite(driver) {
		if err := ensureDir(dsn); err != nil {
			return nil, err
		}
		dsn = sqliteDSN(driver, dsn)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if isSQLite(driver) {
		// one connection: serialises writers and keeps :memory: databases alive
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := New(db, driver, log)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection pool
func New(db *sql.DB, driver string, log zerolog.Logger) *Store {
	return &Store{db: db, driver: driver, log: log}
}

// Migrate creates the tables. Safe to call multiple times.
func (s *Store) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if s.driver == "postgres" {
		schema = postgresSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	s.log.Debug().Str("driver", s.driver).Msg("Schema ready")
	return nil
}

// Close closes the underlying pool
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the database/sql driver name
func (s *Store) Driver() string { return s.driver }

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Snapshot writes a consistent copy of a SQLite database to path
func (s *Store) Snapshot(ctx context.Context, path string) error {
	if !isSQLite(s.driver) {
		return fmt.Errorf("snapshots are only supported on sqlite, not %s", s.driver)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	// VACUUM INTO refuses to overwrite
	_ = os.Remove(path)
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO "+quoteLiteral(path)); err != nil {
		return fmt.Errorf("failed to snapshot database: %w", err)
	}
	return nil
}

func isSQLite(driver string) bool {
	return driver == "sqlite3" || driver == "sqlite"
}

func sqliteDSN(driver, dsn string) string {
	params := "_foreign_keys=on&_busy_timeout=5000"
	if driver == "sqlite" {
		params = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}

func ensureDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || strings.Contains(path, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	// modernc reports constraint failures as plain text
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// placeholders returns "$start, $start+1, ..." for n values
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n > 0}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func now() time.Time {
	return time.Now().UTC()
}
