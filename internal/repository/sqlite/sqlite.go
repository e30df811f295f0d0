package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"daforfer/internal/domain"
	"daforfer/internal/logging"
	"daforfer/internal/repository"
	"daforfer/internal/tracing"

	_ "modernc.org/sqlite"
)

const (
	tocTable  = "toc"
	tovTable  = "tov"
	metaTable = "daforfer_meta"

	schemaVersion = "1"

	defaultBusyTimeout = 5 * time.Second
)

var _ repository.Repository = (*Repository)(nil)

// Repository implements repository.Repository using SQLite
type Repository struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	logger logging.Logger

	// beforeCatalogWrite runs inside write transactions after the physical
	// table changed and before the catalog row does. An error aborts the
	// transaction.
	beforeCatalogWrite func(name string) error
}

// Option configures Open
type Option func(*options)

type options struct {
	busyTimeout time.Duration
	logger      logging.Logger
}

// WithBusyTimeout sets how long to wait for a lock held by another writer
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}

// WithLogger sets the logger used for debug output
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Open opens or creates the database at path and ensures the catalogs exist.
// Existing contents are left untouched.
func Open(path string, opts ...Option) (*Repository, error) {
	o := options{busyTimeout: defaultBusyTimeout, logger: logging.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: database path is required", domain.ErrStorageUnavailable)
	}

	source, err := dsn(path, o.busyTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrStorageUnavailable, path, err)
	}
	db, err := sql.Open("sqlite", source)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrStorageUnavailable, path, err)
	}
	// One connection holds the exclusive lock for the handle's lifetime.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrStorageUnavailable, path, err)
	}

	repo := &Repository{db: db, path: path, logger: o.logger}
	if err := repo.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate %s: %w", domain.ErrStorageUnavailable, path, err)
	}

	repo.logger.Debug("store", "opened %s", path)
	return repo, nil
}

// OpenExisting is Open for a database file that must already exist
func OpenExisting(path string, opts ...Option) (*Repository, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", domain.ErrStorageUnavailable, path)
	}
	return Open(path, opts...)
}

// dsn builds a file: URI for path. The path is escaped so that characters
// such as '?' and '#' stay part of the file name.
func dsn(path string, busyTimeout time.Duration) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	abs = filepath.ToSlash(abs)
	if !strings.HasPrefix(abs, "/") {
		abs = "/" + abs
	}

	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", "locking_mode(EXCLUSIVE)")
	q.Add("_pragma", "journal_mode(DELETE)")
	q.Add("_pragma", "synchronous(FULL)")
	q.Set("_txlock", "immediate")
	u := url.URL{Scheme: "file", Path: abs, RawQuery: q.Encode()}
	return u.String(), nil
}

func (r *Repository) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS toc (
		name VARCHAR(255) PRIMARY KEY COLLATE NOCASE,
		description VARCHAR(4096)
	);

	CREATE TABLE IF NOT EXISTS tov (
		name VARCHAR(255) PRIMARY KEY,
		description VARCHAR(4096),
		value DOUBLE,
		type VARCHAR(255),
		raw TEXT
	);

	CREATE TABLE IF NOT EXISTS daforfer_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create catalogs: %w", err)
	}

	// Files written before values kept their exact encoding lack raw.
	if err := addColumnIfNotExists(ctx, tx, tovTable, "raw", "TEXT"); err != nil {
		return err
	}

	// Recording the open is a write, which takes the exclusive lock now
	// rather than at the first save.
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for key, value := range map[string]string{
		"schema_version": schemaVersion,
		"last_opened":    now,
	} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO daforfer_meta (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value, now); err != nil {
			return fmt.Errorf("failed to store %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// addColumnIfNotExists adds column to table unless it is already there
func addColumnIfNotExists(ctx context.Context, q querier, table, column, decl string) error {
	cols, err := tableColumns(ctx, q, table)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	for _, c := range cols {
		if strings.EqualFold(c.name, column) {
			return nil
		}
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(table), quoteIdent(column), decl)
	if _, err := q.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to add %s.%s: %w", table, column, err)
	}
	return nil
}

// conn returns the open handle or ErrHandleClosed
func (r *Repository) conn() (*sql.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil, domain.ErrHandleClosed
	}
	return r.db, nil
}

// Close closes the database connection. Closing twice is a no-op.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	r.logger.Debug("store", "closed %s", r.path)
	return nil
}

// begin starts a write transaction, reporting lock contention as
// ErrStorageUnavailable
func (r *Repository) begin(ctx context.Context) (*sql.Tx, error) {
	db, err := r.conn()
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, driverError("failed to begin transaction", err)
	}
	return tx, nil
}

// driverError wraps err, classifying lock contention
func driverError(op string, err error) error {
	if errors.Is(err, domain.ErrHandleClosed) {
		return err
	}
	if isBusy(err) {
		return fmt.Errorf("%w: %s: %w", domain.ErrStorageUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// withSpan is a shorthand for starting an artifact span
func withSpan(ctx context.Context, op, kind, name string) (context.Context, func(*error)) {
	ctx, span := tracing.Start(ctx, op, tracing.Artifact(kind, name))
	return ctx, func(err *error) {
		tracing.End(span, *err)
	}
}
