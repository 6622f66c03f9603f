// Package store wraps the relational engine behind database/sql. SQLite
// (one file per dataset) is the default; PostgreSQL stores a dataset in its
// own schema.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
)

// Dialect selects placeholder syntax and engine-specific DDL.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite3"
}

// ErrNoSchema is returned when a PostgreSQL dataset schema is missing and
// the caller did not ask for it to be created.
var ErrNoSchema = errors.New("schema does not exist")

// ErrSchemaViolation is returned when a write breaks a table constraint
// (CHECK, NOT NULL, PRIMARY KEY).
var ErrSchemaViolation = errors.New("schema violation")

// Store is an open database handle.
type Store struct {
	db      *sql.DB
	dialect Dialect
	name    string
}

// OpenSQLite opens (creating if needed) a SQLite database file for writing.
func OpenSQLite(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(path, "_busy_timeout=5000"))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	// A build is a single long transaction; one connection keeps every
	// statement inside it.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = DELETE",
		"PRAGMA synchronous = OFF",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA cache_size = -262144",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting %q on %s: %w", p, path, err)
		}
	}
	return &Store{db: db, dialect: SQLite, name: path}, nil
}

// OpenSQLiteReadOnly opens an existing SQLite file for queries. It fails if
// the file does not exist.
func OpenSQLiteReadOnly(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", sqliteDSN(path, "mode=ro&_busy_timeout=5000"))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &Store{db: db, dialect: SQLite, name: path}, nil
}

// sqliteDSN builds a file: URI. The path is percent-escaped so that '?', '#'
// and '%' in file names are not read as URI syntax.
func sqliteDSN(path, params string) string {
	u := url.URL{Path: path}
	return "file:" + u.EscapedPath() + "?" + params
}

// OpenPostgres connects using a pgx DSN. If schema is set it becomes the
// search_path for every connection. A missing schema is created when create
// is true and reported as ErrNoSchema otherwise.
func OpenPostgres(ctx context.Context, dsn, schema string, create bool) (*Store, error) {
	if schema != "" {
		if !ValidIdent(schema) {
			return nil, fmt.Errorf("invalid schema name %q", schema)
		}
		if !strings.Contains(dsn, "search_path=") {
			dsn += " search_path=" + schema
		}
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if schema != "" {
		if err := ensureSchema(ctx, db, schema, create); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &Store{db: db, dialect: Postgres, name: schema}, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, schema string, create bool) error {
	if create {
		if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
			return fmt.Errorf("creating schema %s: %w", schema, err)
		}
		return nil
	}
	var ok bool
	err := db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)",
		schema).Scan(&ok)
	if err != nil {
		return fmt.Errorf("looking up schema %s: %w", schema, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSchema, schema)
	}
	return nil
}

// Dialect returns the engine flavour.
func (s *Store) Dialect() Dialect { return s.dialect }

// Name returns the file path (SQLite) or schema (PostgreSQL).
func (s *Store) Name() string { return s.name }

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// SetMaxOpenConns bounds the connection pool, e.g. to the query worker count.
func (s *Store) SetMaxOpenConns(n int) { s.db.SetMaxOpenConns(n) }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Query runs a read query outside any transaction.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, Rebind(s.dialect, query), args...)
}

// QueryRow runs a single-row read query outside any transaction.
func (s *Store) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, Rebind(s.dialect, query), args...)
}

// TableExists reports whether a table with the given name is present.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	var q string
	switch s.dialect {
	case Postgres:
		q = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?"
	default:
		q = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	}
	var n int
	if err := s.QueryRow(ctx, q, table).Scan(&n); err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	return n > 0, nil
}

// WithTx runs fn inside a transaction. The transaction commits only when fn
// returns nil; errors and panics roll it back.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	tx := &Tx{tx: sqlTx, dialect: s.dialect}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", classify(err))
	}
	return nil
}

// Rebind rewrites '?' placeholders to '$n' for PostgreSQL. Queries must not
// contain literal question marks.
func Rebind(d Dialect, query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// classify tags constraint failures from either engine with ErrSchemaViolation.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %w", ErrSchemaViolation, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		return fmt.Errorf("%w: %w", ErrSchemaViolation, err)
	}
	return err
}

// ValidIdent reports whether s is safe to splice into SQL as a schema name.
func ValidIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
