// Package audit defines the normalized audit entry persisted by fsauditd and
// the identity context carried over from previously stored entries.
package audit

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Column limits of the audit_entries table.
const (
	MaxUsernameLen = 255
	MaxRoleLen     = 255
	MaxPointLen    = 255
	MaxMessageLen  = 16_777_215
	MaxSourceLen   = 45
)

// Defaults used when settings leave them empty.
const (
	DefaultPoint          = "FS"
	DefaultSourceFS       = "ARM"
	DefaultSourceSecurity = "Security"
)

// ErrInvalidEntry is returned when an entry violates the column constraints.
var ErrInvalidEntry = errors.New("invalid audit entry")

// Entry is one normalized audit record.
type Entry struct {
	ID        int64
	Timestamp time.Time
	Username  string
	Role      string
	Point     string
	Message   string
	Source    string
}

// LastEntryContext is the actor identity backfilled into entries whose
// triggering event carries none.
type LastEntryContext struct {
	Username string
	Role     string
}

// IsZero reports whether no identity is known.
func (c LastEntryContext) IsZero() bool {
	return c.Username == "" && c.Role == ""
}

// ContextOf returns the identity recorded on e. A nil entry yields the zero context.
func ContextOf(e *Entry) LastEntryContext {
	if e == nil {
		return LastEntryContext{}
	}
	return LastEntryContext{Username: e.Username, Role: e.Role}
}

// Validate checks that every string field is non-empty and fits its column.
func (e *Entry) Validate() error {
	fields := []struct {
		name  string
		value string
		max   int
	}{
		{"username", e.Username, MaxUsernameLen},
		{"role", e.Role, MaxRoleLen},
		{"point", e.Point, MaxPointLen},
		{"message", e.Message, MaxMessageLen},
		{"source", e.Source, MaxSourceLen},
	}
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalidEntry, f.name)
		}
		if n := utf8.RuneCountInString(f.value); n > f.max {
			return fmt.Errorf("%w: %s is %d chars, limit %d", ErrInvalidEntry, f.name, n, f.max)
		}
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is zero", ErrInvalidEntry)
	}
	return nil
}

// TruncateTimestamp rounds t down to the 6-digit sub-second precision kept by the store.
func TruncateTimestamp(t time.Time) time.Time {
	return t.Truncate(time.Microsecond)
}
