// Package sql implements a storage service on a SQL table.
//
// Objects are rows of a two-column table: the absolute path in the key
// column and the content in the value column. SQLite (modernc.org/sqlite,
// pure Go) and PostgreSQL (pgx) are supported through database/sql.
package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/marmos91/dittostore/internal/logger"
	"github.com/marmos91/dittostore/pkg/store"
	"github.com/marmos91/dittostore/pkg/store/kv"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config configures the sql service.
type Config struct {
	// Root is the prefix every path is resolved under.
	Root string `mapstructure:"root"`

	// Name labels the instance in diagnostics.
	Name string `mapstructure:"name"`

	// Driver selects the database: "sqlite" or "postgres".
	Driver string `mapstructure:"driver" validate:"required,oneof=sqlite postgres"`

	// DSN is the driver connection string (a file path for sqlite).
	DSN string `mapstructure:"dsn" validate:"required"`

	// Table holds the objects. Created when missing.
	// Default: "dittostore"
	Table string `mapstructure:"table"`

	// KeyField is the path column.
	// Default: "key"
	KeyField string `mapstructure:"key_field"`

	// ValueField is the content column.
	// Default: "value"
	ValueField string `mapstructure:"value_field"`

	// MaxOpenConns caps the connection pool. SQLite defaults to a single
	// connection since pragmas are applied per connection.
	MaxOpenConns int `mapstructure:"max_open_conns" validate:"omitempty,min=0"`
}

func (c *Config) applyDefaults() {
	if c.Table == "" {
		c.Table = "dittostore"
	}
	if c.KeyField == "" {
		c.KeyField = "key"
	}
	if c.ValueField == "" {
		c.ValueField = "value"
	}
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (c *Config) validate() *store.Error {
	switch c.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return store.Errorf(store.KindConfigInvalid, "unsupported driver %q", c.Driver)
	}
	if c.DSN == "" {
		return store.NewError(store.KindConfigInvalid, "dsn is required")
	}
	for _, name := range []string{c.Table, c.KeyField, c.ValueField} {
		if !identifier.MatchString(name) {
			return store.Errorf(store.KindConfigInvalid, "invalid identifier %q", name)
		}
	}
	return nil
}

// Backend is the sql service.
type Backend struct {
	*kv.Backend
	db *sql.DB
}

// New connects to the database and creates the table if needed.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err.WithContext("service", string(store.SchemeSQL))
	}

	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case DriverSQLite:
		db, err = openSQLite(ctx, cfg.DSN)
	case DriverPostgres:
		db, err = openPostgres(ctx, cfg.DSN)
	}
	if err != nil {
		return nil, err
	}
	switch {
	case cfg.MaxOpenConns > 0:
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	case cfg.Driver == DriverSQLite:
		db.SetMaxOpenConns(1)
	}

	a := newAdapter(db, cfg)
	if err := a.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create table %s: %w", cfg.Table, err)
	}
	logger.Debug("sql: connected (driver=%s, table=%s)", cfg.Driver, cfg.Table)

	return &Backend{
		Backend: kv.New(a, kv.Options{
			Scheme: store.SchemeSQL,
			Name:   cfg.Name,
			Root:   cfg.Root,
			Shared: cfg.Driver == DriverPostgres,
		}),
		db: db,
	}, nil
}

// DB exposes the connection pool.
func (b *Backend) DB() *sql.DB {
	return b.db
}

func openSQLite(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("pragma %s: %w", pragma, err)
		}
	}
	return db, nil
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db.SetMaxIdleConns(5)
	return db, nil
}

// ============================================================================
// Adapter
// ============================================================================

// adapter holds the statements rendered for one dialect.
type adapter struct {
	db *sql.DB

	createTable string
	get         string
	set         string
	del         string
	scan        string
}

func newAdapter(db *sql.DB, cfg Config) *adapter {
	table := quote(cfg.Table)
	key := quote(cfg.KeyField)
	value := quote(cfg.ValueField)

	blob := "BLOB"
	ph := func(int) string { return "?" }
	if cfg.Driver == DriverPostgres {
		blob = "BYTEA"
		ph = func(n int) string { return fmt.Sprintf("$%d", n) }
	}

	return &adapter{
		db: db,
		createTable: fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (%s TEXT PRIMARY KEY, %s %s NOT NULL)",
			table, key, value, blob),
		get: fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s", value, table, key, ph(1)),
		set: fmt.Sprintf(
			"INSERT INTO %s (%s, %s) VALUES (%s, %s) ON CONFLICT (%s) DO UPDATE SET %s = excluded.%s",
			table, key, value, ph(1), ph(2), key, value, value),
		del:  fmt.Sprintf("DELETE FROM %s WHERE %s = %s", table, key, ph(1)),
		scan: fmt.Sprintf(`SELECT %s FROM %s WHERE %s LIKE %s ESCAPE '\'`, key, table, key, ph(1)),
	}
}

func quote(ident string) string {
	return `"` + ident + `"`
}

// likePrefix escapes prefix for a LIKE pattern matching every key starting
// with it.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

func (a *adapter) migrate(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, a.createTable)
	return err
}

func (a *adapter) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	if err := a.db.QueryRowContext(ctx, a.get, key).Scan(&value); err != nil {
		return nil, parseError(err, key)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (a *adapter) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := a.db.ExecContext(ctx, a.set, key, value)
	return parseError(err, key)
}

func (a *adapter) Delete(ctx context.Context, key string) error {
	_, err := a.db.ExecContext(ctx, a.del, key)
	return parseError(err, key)
}

func (a *adapter) Scan(ctx context.Context, prefix string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, a.scan, likePrefix(prefix))
	if err != nil {
		return nil, parseError(err, prefix)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, parseError(err, prefix)
		}
		// LIKE is case-insensitive on SQLite for ASCII letters.
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, parseError(err, prefix)
	}
	return keys, nil
}

func (a *adapter) Close() error {
	return a.db.Close()
}

// ============================================================================
// Errors
// ============================================================================

// parseError maps driver errors to store kinds.
func parseError(err error, key string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.NewError(store.KindNotFound, "key not found").WithPath(key)
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return store.NewError(store.KindRateLimited, "database is locked").WithPath(key).WithSource(err)
		case sqlite3.SQLITE_READONLY, sqlite3.SQLITE_PERM, sqlite3.SQLITE_AUTH:
			return store.NewError(store.KindPermissionDenied, "database is read-only").WithPath(key).WithSource(err)
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return store.NewError(store.KindUnexpected, "transaction conflict").
				WithPath(key).WithSource(err).SetTemporary()
		case "53300": // too_many_connections
			return store.NewError(store.KindRateLimited, "too many connections").WithPath(key).WithSource(err)
		case "42501": // insufficient_privilege
			return store.NewError(store.KindPermissionDenied, "insufficient privilege").WithPath(key).WithSource(err)
		}
	}

	return store.NewError(store.KindUnexpected, "sql operation failed").WithPath(key).WithSource(err)
}
