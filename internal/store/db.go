package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	// ErrNotInitialized is returned when the audit_entries table does not exist.
	ErrNotInitialized = errors.New("database not initialized: start 'fsauditd run' once to create the schema")
	// ErrWriteFailed wraps every failure to persist an entry.
	ErrWriteFailed = errors.New("store write failed")
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Store provides audit entry persistence on SQLite or PostgreSQL.
type Store struct {
	db     *sqlx.DB
	driver string
}

// New opens a SQLite store at dbPath.
// Use ":memory:" for in-memory databases (useful for testing).
func New(dbPath string) (*Store, error) {
	return Open(DriverSQLite, dbPath)
}

// Open opens a store with the given driver and data source name.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case "", DriverSQLite:
		driver = DriverSQLite
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite only allows one writer at a time
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		// Enable WAL mode for better concurrency with readers such as 'fsauditd entries'
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	} else if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

// NewFromDB wraps an existing connection. driver selects placeholder and
// timestamp handling; anything other than "postgres" behaves like SQLite.
func NewFromDB(db *sql.DB, driver string) *Store {
	return &Store{db: sqlx.NewDb(db, driver), driver: driver}
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying database connection for advanced queries.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Driver returns the driver name the store was opened with.
func (s *Store) Driver() string {
	return s.driver
}

// CreateSchema creates all tables and indexes.
func (s *Store) CreateSchema() error {
	ddl := sqliteSchema
	if s.driver == DriverPostgres {
		ddl = postgresSchema
	}
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// classify maps a missing-table error to ErrNotInitialized.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "no such table") ||
		(strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist")) {
		return fmt.Errorf("%w: %v", ErrNotInitialized, err)
	}
	return err
}
