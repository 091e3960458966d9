package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blackwell-systems/fsauditd/internal/audit"
)

// timestampLayout keeps the 6-digit sub-second precision of the audit table.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

const selectEntryColumns = `SELECT id, timestamp, username, role, point, message, source FROM audit_entries`

type entryRow struct {
	ID        int64  `db:"id"`
	Timestamp dbTime `db:"timestamp"`
	Username  string `db:"username"`
	Role      string `db:"role"`
	Point     string `db:"point"`
	Message   string `db:"message"`
	Source    string `db:"source"`
}

func (r *entryRow) entry() *audit.Entry {
	return &audit.Entry{
		ID:        r.ID,
		Timestamp: r.Timestamp.Time,
		Username:  r.Username,
		Role:      r.Role,
		Point:     r.Point,
		Message:   r.Message,
		Source:    r.Source,
	}
}

// Insert validates and appends an entry, returning its id. e.ID is set on success.
// Every failure wraps ErrWriteFailed.
func (s *Store) Insert(ctx context.Context, e *audit.Entry) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	ts := audit.TruncateTimestamp(e.Timestamp)
	args := []interface{}{s.timeArg(ts), e.Username, e.Role, e.Point, e.Message, e.Source}
	query := `
		INSERT INTO audit_entries (timestamp, username, role, point, message, source)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	var id int64
	if s.driver == DriverPostgres {
		err := s.db.QueryRowxContext(ctx, s.db.Rebind(query+" RETURNING id"), args...).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("%w: insert audit entry: %w", ErrWriteFailed, classify(err))
		}
	} else {
		res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
		if err != nil {
			return 0, fmt.Errorf("%w: insert audit entry: %w", ErrWriteFailed, classify(err))
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("%w: read inserted id: %w", ErrWriteFailed, err)
		}
	}

	e.ID = id
	e.Timestamp = ts
	return id, nil
}

// LastInserted returns the entry with the highest id, or nil when the table is empty.
func (s *Store) LastInserted(ctx context.Context) (*audit.Entry, error) {
	var row entryRow
	err := s.db.QueryRowxContext(ctx, selectEntryColumns+` ORDER BY id DESC LIMIT 1`).StructScan(&row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last audit entry: %w", classify(err))
	}
	return row.entry(), nil
}

// GetEntry retrieves an entry by id.
func (s *Store) GetEntry(ctx context.Context, id int64) (*audit.Entry, error) {
	var row entryRow
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(selectEntryColumns+` WHERE id = ?`), id).StructScan(&row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("audit entry %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit entry %d: %w", id, classify(err))
	}
	return row.entry(), nil
}

// ListRecent returns up to limit entries, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*audit.Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows []entryRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(selectEntryColumns+` ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", classify(err))
	}

	entries := make([]*audit.Entry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].entry())
	}
	return entries, nil
}

// CountEntries returns the total number of stored entries.
func (s *Store) CountEntries(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM audit_entries`); err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", classify(err))
	}
	return count, nil
}

func (s *Store) timeArg(t time.Time) interface{} {
	if s.driver == DriverPostgres {
		return t
	}
	return t.Format(timestampLayout)
}

// dbTime scans timestamps stored either natively or as text.
type dbTime struct {
	time.Time
}

var scanLayouts = []string{
	timestampLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

func (t *dbTime) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into timestamp", value)
	}
}

func (t *dbTime) parse(s string) error {
	for _, layout := range scanLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("failed to parse timestamp %q", s)
}
