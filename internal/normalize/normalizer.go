// Package normalize turns filesystem notifications and security trace records
// into audit entries ready for storage.
package normalize

import (
	"path/filepath"
	"time"

	"github.com/blackwell-systems/fsauditd/internal/audit"
	"github.com/blackwell-systems/fsauditd/internal/seclog"
)

// Event is either a FileEvent or a SecurityEvent.
type Event interface {
	event()
}

// FileEvent is a generic filesystem notification.
type FileEvent struct {
	Op      audit.FileOp
	Path    string
	OldPath string
}

// SecurityEvent wraps a record selected from the security trace.
type SecurityEvent struct {
	Record *seclog.Record
}

func (FileEvent) event()     {}
func (SecurityEvent) event() {}

// Options configures a Normalizer. Empty strings fall back to the audit defaults.
type Options struct {
	Point          string
	SourceFS       string
	SourceSecurity string
	Messages       *Messages
	Now            func() time.Time
}

// Normalizer builds audit entries. It holds no mutable state.
type Normalizer struct {
	point          string
	sourceFS       string
	sourceSecurity string
	messages       *Messages
	now            func() time.Time
}

// New creates a Normalizer.
func New(opts Options) *Normalizer {
	n := &Normalizer{
		point:          opts.Point,
		sourceFS:       opts.SourceFS,
		sourceSecurity: opts.SourceSecurity,
		messages:       opts.Messages,
		now:            opts.Now,
	}
	if n.point == "" {
		n.point = audit.DefaultPoint
	}
	if n.sourceFS == "" {
		n.sourceFS = audit.DefaultSourceFS
	}
	if n.sourceSecurity == "" {
		n.sourceSecurity = audit.DefaultSourceSecurity
	}
	if n.messages == nil {
		// English catalog construction cannot fail.
		n.messages, _ = NewMessages("")
	}
	if n.now == nil {
		n.now = time.Now
	}
	return n
}

// Normalize builds the entry for ev, backfilling the identity from last.
// It returns false when the event yields no message.
func (n *Normalizer) Normalize(ev Event, last audit.LastEntryContext) (*audit.Entry, bool) {
	var (
		msg    string
		ts     time.Time
		source string
	)

	switch e := ev.(type) {
	case FileEvent:
		msg = n.fileMessage(e)
		ts = n.now()
		source = n.sourceFS
	case *FileEvent:
		if e == nil {
			return nil, false
		}
		return n.Normalize(*e, last)
	case SecurityEvent:
		if e.Record == nil {
			return nil, false
		}
		msg = n.securityMessage(e.Record)
		ts = e.Record.Timestamp
		if ts.IsZero() {
			ts = n.now()
		}
		source = n.sourceSecurity
	default:
		return nil, false
	}

	if msg == "" {
		return nil, false
	}

	return &audit.Entry{
		Timestamp: audit.TruncateTimestamp(ts),
		Username:  last.Username,
		Role:      last.Role,
		Point:     n.point,
		Message:   msg,
		Source:    source,
	}, true
}

func (n *Normalizer) fileMessage(e FileEvent) string {
	if e.Path == "" {
		return ""
	}
	path := absPath(e.Path)

	switch e.Op {
	case audit.OpChanged:
		return n.messages.Format(FileChanged, path)
	case audit.OpCreated:
		return n.messages.Format(FileCreated, path)
	case audit.OpDeleted:
		return n.messages.Format(FileDeleted, path)
	case audit.OpRenamed:
		if e.OldPath == "" {
			return ""
		}
		return n.messages.Format(FileRenamed, absPath(e.OldPath), path)
	default:
		return ""
	}
}

func (n *Normalizer) securityMessage(r *seclog.Record) string {
	switch r.Action {
	case seclog.ActionUserAdded:
		return n.messages.Format(UserAdded, r.UserName)
	case seclog.ActionUserDeleted:
		return n.messages.Format(UserDeleted, r.UserName)
	default:
		return n.messages.Format(UnexpectedEvent)
	}
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
