// Package seclog reads the externally produced security audit trace and
// extracts the most recent user-provisioning record from it.
//
// The trace is an XML document:
//
//	<Trace>
//	  <record SeqNo="41" timestamp="2024-03-01T10:15:02.123">
//	    <message>AddUser : alice</message>
//	  </record>
//	</Trace>
//
// The file is owned by another program and may be rewritten between reads, so
// every call loads it from scratch. A Parser remembers the sequence number of
// the last committed record and does not return that record again.
package seclog

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Default markers identifying user-provisioning records.
const (
	MarkerAddUser    = "AddUser :"
	MarkerDeleteUser = "DeleteUser :"
)

// Keywords deciding the action of a selected record. Add is checked first.
const (
	keywordAdd    = "Add"
	keywordDelete = "Delete"
)

var (
	// ErrLogUnreadable is returned when the trace cannot be opened or decoded.
	ErrLogUnreadable = errors.New("security log unreadable")
	// ErrMalformedRecord is returned when no usable record is found.
	ErrMalformedRecord = errors.New("malformed security record")
)

// DefaultMarkers returns the markers used when none are configured.
func DefaultMarkers() []string {
	return []string{MarkerAddUser, MarkerDeleteUser}
}

// Action classifies a selected record.
type Action int

const (
	ActionUnexpected Action = iota
	ActionUserAdded
	ActionUserDeleted
)

func (a Action) String() string {
	switch a {
	case ActionUserAdded:
		return "user_added"
	case ActionUserDeleted:
		return "user_deleted"
	default:
		return "unexpected"
	}
}

// Record is one selected trace record.
type Record struct {
	SeqNo uint64
	// Timestamp is zero when the record's timestamp attribute did not parse.
	Timestamp time.Time
	Message   string
	Action    Action
	UserName  string
}

type traceDoc struct {
	XMLName xml.Name    `xml:"Trace"`
	Records []traceElem `xml:"record"`
}

type traceElem struct {
	SeqNo     string `xml:"SeqNo,attr"`
	Timestamp string `xml:"timestamp,attr"`
	Message   string `xml:"message"`
}

// Options configures a Parser.
type Options struct {
	Path     string
	Markers  []string
	Location *time.Location
}

// Parser extracts user events from one trace file.
type Parser struct {
	path    string
	markers []string
	loc     *time.Location

	mu      sync.Mutex
	lastSeq uint64
	hasLast bool
}

// New creates a Parser with an empty cursor.
func New(opts Options) *Parser {
	markers := opts.Markers
	if len(markers) == 0 {
		markers = DefaultMarkers()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &Parser{
		path:    opts.Path,
		markers: markers,
		loc:     loc,
	}
}

// Path returns the trace file path.
func (p *Parser) Path() string {
	return p.path
}

// Cursor returns the sequence number of the last committed record.
func (p *Parser) Cursor() (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeq, p.hasLast
}

// Commit advances the cursor to seq. Call it once the record returned by
// ExtractLatestUserEvent has been stored.
func (p *Parser) Commit(seq uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSeq = seq
	p.hasLast = true
}

// ExtractLatestUserEvent loads the trace and returns the qualifying record with
// the greatest sequence number. It returns (nil, nil) when that record is the
// committed one. The cursor is left untouched.
func (p *Parser) ExtractLatestUserEvent() (*Record, error) {
	doc, err := p.load()
	if err != nil {
		return nil, err
	}

	rec, err := p.selectLatest(doc)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hasLast && p.lastSeq == rec.SeqNo {
		return nil, nil
	}
	return rec, nil
}

var byteOrderMarks = [][]byte{
	{0xEF, 0xBB, 0xBF},
	{0xFF, 0xFE},
	{0xFE, 0xFF},
}

func (p *Parser) load() (*traceDoc, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLogUnreadable, err)
	}

	dec := newTraceDecoder(data)
	var doc traceDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrLogUnreadable, p.path, err)
	}
	return &doc, nil
}

// newTraceDecoder returns a decoder for data. A leading byte order mark
// selects UTF-8 or UTF-16 and overrides the prolog's encoding declaration;
// otherwise the declared charset is honored.
func newTraceDecoder(data []byte) *xml.Decoder {
	for _, bom := range byteOrderMarks {
		if bytes.HasPrefix(data, bom) {
			r := transform.NewReader(bytes.NewReader(data), unicode.BOMOverride(encoding.Nop.NewDecoder()))
			dec := xml.NewDecoder(r)
			dec.CharsetReader = func(_ string, in io.Reader) (io.Reader, error) { return in, nil }
			return dec
		}
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}

func (p *Parser) selectLatest(doc *traceDoc) (*Record, error) {
	var (
		best  *traceElem
		bestN uint64
	)
	for i := range doc.Records {
		el := &doc.Records[i]
		if !p.qualifies(el.Message) {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSpace(el.SeqNo), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: SeqNo %q: %v", ErrMalformedRecord, el.SeqNo, err)
		}
		if best == nil || n > bestN {
			best, bestN = el, n
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no record matches %v", ErrMalformedRecord, p.markers)
	}

	msg := strings.TrimSpace(best.Message)
	action, user := Classify(msg)
	return &Record{
		SeqNo:     bestN,
		Timestamp: parseTimestamp(best.Timestamp, p.loc),
		Message:   msg,
		Action:    action,
		UserName:  user,
	}, nil
}

func (p *Parser) qualifies(message string) bool {
	for _, m := range p.markers {
		if strings.Contains(message, m) {
			return true
		}
	}
	return false
}

// Classify derives the action and user name from a record message. The user
// name is the trimmed text after the last colon. The Add keyword wins when the
// message contains both keywords.
func Classify(message string) (Action, string) {
	user := strings.TrimSpace(message[strings.LastIndex(message, ":")+1:])
	switch {
	case strings.Contains(message, keywordAdd):
		return ActionUserAdded, user
	case strings.Contains(message, keywordDelete):
		return ActionUserDeleted, user
	default:
		return ActionUnexpected, user
	}
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02.01.2006 15:04:05",
	"2006-01-02",
}

// parseTimestamp parses a local date-time. It returns the zero time when no
// layout matches.
func parseTimestamp(s string, loc *time.Location) time.Time {
	s = strings.TrimSpace(strings.Replace(s, "T", " ", 1))
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}
