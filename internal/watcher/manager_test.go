package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/fsauditd/internal/audit"
	"github.com/blackwell-systems/fsauditd/internal/seclog"
)

var operator = audit.LastEntryContext{Username: "operator", Role: "admin"}

func newManager(t *testing.T, st Store, parser *seclog.Parser) *Manager {
	t.Helper()
	m, err := New(Options{Store: st, Parser: parser, Fallback: operator})
	require.NoError(t, err)
	return m
}

func writeTrace(t *testing.T, path string, records ...string) {
	t.Helper()
	doc := "<Trace>" + strings.Join(records, "") + "</Trace>"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
}

func traceRecord(seq, msg string) string {
	return `<record SeqNo="` + seq + `" timestamp="2024-03-01T10:00:00"><message>` + msg + `</message></record>`
}

// runManager starts m in the background and returns a function that stops
// it and waits for Start to return.
func runManager(t *testing.T, m *Manager) func() {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- m.Start(context.Background()) }()
	require.Eventually(t, func() bool { return isStarted(m) }, 2*time.Second, 5*time.Millisecond)
	return func() {
		m.Stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Start did not return after Stop")
		}
	}
}

func isStarted(m *Manager) bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.started
}

func TestNew_NilStore(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestRegister_SkipsMissingTargets(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "keep.txt")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	m := newManager(t, &memStore{}, nil)
	err := m.Register([]WatchTarget{
		{Path: filepath.Join(dir, "missing-dir"), IsDirectory: true},
		{Path: dir, IsDirectory: true, Recursive: true},
		{Path: filepath.Join(dir, "missing.txt")},
		{Path: file},
	})
	require.NoError(t, err)

	watches := m.Watches()
	require.Len(t, watches, 2)
	assert.Equal(t, dir, watches[0].Dir)
	assert.Equal(t, "keep.txt", watches[1].FileName)
}

func TestRegister_DesignatesSecurityTarget(t *testing.T) {
	dir := t.TempDir()
	trace := filepath.Join(dir, "security.xml")
	writeTrace(t, trace)

	m := newManager(t, &memStore{}, seclog.New(seclog.Options{Path: trace}))
	require.NoError(t, m.Register([]WatchTarget{{Path: dir, IsDirectory: true}, {Path: trace}}))

	watches := m.Watches()
	require.Len(t, watches, 2)
	assert.False(t, watches[0].Security)
	assert.True(t, watches[1].Security)
}

func TestRegister_AfterStart(t *testing.T) {
	m := newManager(t, &memStore{}, nil)
	stop := runManager(t, m)
	defer stop()

	assert.ErrorIs(t, m.Register(nil), ErrAlreadyStarted)
}

func TestHandle_GenericEventBackfillsIdentity(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	_, err := st.Insert(ctx, &audit.Entry{
		Timestamp: time.Now(), Username: "alice", Role: "auditor",
		Point: "FS", Message: "login", Source: "APP",
	})
	require.NoError(t, err)

	m := newManager(t, st, nil)
	before := time.Now()
	require.NoError(t, m.Handle(ctx, RawEvent{Kind: audit.OpChanged, Path: "/data/x.txt"}))

	last, err := st.LastInserted(ctx)
	require.NoError(t, err)
	assert.Contains(t, last.Message, "/data/x.txt")
	assert.Contains(t, last.Message, "modified")
	assert.Equal(t, "alice", last.Username)
	assert.Equal(t, "auditor", last.Role)
	assert.Equal(t, audit.DefaultPoint, last.Point)
	assert.Equal(t, audit.DefaultSourceFS, last.Source)
	assert.WithinDuration(t, before, last.Timestamp, 5*time.Second)
	assert.Equal(t, audit.LastEntryContext{Username: "alice", Role: "auditor"}, m.Identity())
}

func TestHandle_FallbackIdentityOnEmptyStore(t *testing.T) {
	st := &memStore{}
	m := newManager(t, st, nil)

	require.NoError(t, m.Handle(context.Background(), RawEvent{Kind: audit.OpCreated, Path: "/tmp/new"}))
	entries := st.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "operator", entries[0].Username)
}

func TestHandle_NoIdentityFailsWrite(t *testing.T) {
	st := &memStore{}
	m, err := New(Options{Store: st})
	require.NoError(t, err)

	err = m.Handle(context.Background(), RawEvent{Kind: audit.OpCreated, Path: "/tmp/new"})
	assert.ErrorIs(t, err, audit.ErrInvalidEntry)
	assert.Empty(t, st.all())
}

func TestHandle_SecurityEventDedup(t *testing.T) {
	dir := t.TempDir()
	trace := filepath.Join(dir, "security.xml")
	writeTrace(t, trace, traceRecord("1", "AddUser : alice"), traceRecord("2", "DeleteUser : bob"))

	st := &memStore{}
	m := newManager(t, st, seclog.New(seclog.Options{Path: trace}))
	ctx := context.Background()

	require.NoError(t, m.Handle(ctx, RawEvent{Kind: audit.OpChanged, Path: trace}))
	require.NoError(t, m.Handle(ctx, RawEvent{Kind: audit.OpChanged, Path: trace}))

	entries := st.all()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.DefaultSourceSecurity, entries[0].Source)
	assert.Contains(t, entries[0].Message, "bob")
	assert.Contains(t, entries[0].Message, "deleted")

	writeTrace(t, trace, traceRecord("2", "DeleteUser : bob"), traceRecord("3", "AddUser : carol"))
	require.NoError(t, m.Handle(ctx, RawEvent{Kind: audit.OpChanged, Path: trace}))
	entries = st.all()
	require.Len(t, entries, 2)
	assert.Contains(t, entries[1].Message, "carol")
}

func TestHandle_SecurityLogUnreadableIsAbsorbed(t *testing.T) {
	dir := t.TempDir()
	trace := filepath.Join(dir, "security.xml")
	require.NoError(t, os.WriteFile(trace, []byte("<Trace><record"), 0644))

	st := &memStore{}
	m := newManager(t, st, seclog.New(seclog.Options{Path: trace}))

	assert.NoError(t, m.Handle(context.Background(), RawEvent{Kind: audit.OpChanged, Path: trace}))
	assert.Empty(t, st.all())
}

func TestHandle_StoreFailureDropsNotification(t *testing.T) {
	st := &memStore{failNext: errDiskFull}
	m := newManager(t, st, nil)
	ctx := context.Background()

	err := m.Handle(ctx, RawEvent{Kind: audit.OpDeleted, Path: "/srv/a"})
	assert.ErrorIs(t, err, errDiskFull)
	assert.Empty(t, st.all())

	// The pipeline keeps going.
	require.NoError(t, m.Handle(ctx, RawEvent{Kind: audit.OpDeleted, Path: "/srv/b"}))
	assert.Len(t, st.all(), 1)
}

func TestHandle_SecurityRecordRetriedAfterStoreFailure(t *testing.T) {
	trace := filepath.Join(t.TempDir(), "security.xml")
	writeTrace(t, trace, traceRecord("7", "AddUser : gina"))

	st := &memStore{failNext: errDiskFull}
	parser := seclog.New(seclog.Options{Path: trace})
	m := newManager(t, st, parser)
	ctx := context.Background()
	ev := RawEvent{Kind: audit.OpChanged, Path: trace}

	assert.ErrorIs(t, m.Handle(ctx, ev), errDiskFull)
	assert.Empty(t, st.all())
	_, committed := parser.Cursor()
	assert.False(t, committed)

	require.NoError(t, m.Handle(ctx, ev))
	entries := st.all()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.DefaultSourceSecurity, entries[0].Source)
	assert.Contains(t, entries[0].Message, "gina")

	seq, committed := parser.Cursor()
	assert.True(t, committed)
	assert.Equal(t, uint64(7), seq)

	// Stored once; a repeat notification is a duplicate.
	require.NoError(t, m.Handle(ctx, ev))
	assert.Len(t, st.all(), 1)
}

func TestHandle_EmptyMessageNeverStored(t *testing.T) {
	st := &memStore{}
	m := newManager(t, st, nil)

	require.NoError(t, m.Handle(context.Background(), RawEvent{Kind: audit.OpRenamed, Path: "/srv/new"}))
	require.NoError(t, m.Handle(context.Background(), RawEvent{Kind: audit.OpChanged}))
	assert.Empty(t, st.all())
}

func TestHandle_ConcurrentDeliveryIsSerialized(t *testing.T) {
	dir := t.TempDir()
	trace := filepath.Join(dir, "security.xml")
	writeTrace(t, trace, traceRecord("5", "AddUser : dana"))

	st := &memStore{}
	parser := seclog.New(seclog.Options{Path: trace})
	m := newManager(t, st, parser)
	ctx := context.Background()

	var wg sync.WaitGroup
	events := []RawEvent{
		{Kind: audit.OpChanged, Path: filepath.Join(dir, "a.txt")},
		{Kind: audit.OpCreated, Path: filepath.Join(dir, "b.txt")},
		{Kind: audit.OpChanged, Path: trace},
		{Kind: audit.OpChanged, Path: trace},
	}
	for _, ev := range events {
		wg.Add(1)
		go func(ev RawEvent) {
			defer wg.Done()
			assert.NoError(t, m.Handle(ctx, ev))
		}(ev)
	}
	wg.Wait()

	// Two file entries plus one security entry: the second trace
	// notification sees the advanced cursor.
	entries := st.all()
	assert.Len(t, entries, 3)

	seq, ok := parser.Cursor()
	assert.True(t, ok)
	assert.Equal(t, uint64(5), seq)
}

func TestStartStop(t *testing.T) {
	m := newManager(t, &memStore{}, nil)
	require.NoError(t, m.Register([]WatchTarget{{Path: t.TempDir(), IsDirectory: true}}))

	stop := runManager(t, m)
	stop()

	// Stop is idempotent and Start cannot be reused.
	m.Stop()
	assert.ErrorIs(t, m.Start(context.Background()), ErrStopped)
}

func TestStart_ContextCancel(t *testing.T) {
	m := newManager(t, &memStore{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after context cancel")
	}
}

func TestStart_InjectedEventsReachStore(t *testing.T) {
	st := &memStore{}
	m := newManager(t, st, nil)
	stop := runManager(t, m)

	m.enqueue(RawEvent{Kind: audit.OpCreated, Path: "/srv/one"})
	m.enqueue(RawEvent{Kind: audit.OpRenamed, Path: "/srv/three", OldPath: "/srv/two"})

	require.Eventually(t, func() bool { return len(st.all()) == 2 }, 2*time.Second, 10*time.Millisecond)
	stop()

	entries := st.all()
	assert.Contains(t, entries[0].Message, "/srv/one")
	assert.Contains(t, entries[1].Message, "/srv/two")
	assert.Contains(t, entries[1].Message, "/srv/three")
}

func TestStop_DrainsQueuedEvents(t *testing.T) {
	st := &memStore{}
	m := newManager(t, st, nil)

	// Queue before the dispatch loop runs, with the context already done.
	m.events <- RawEvent{Kind: audit.OpCreated, Path: "/srv/queued"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, m.Start(ctx))

	// The queued event is handled either by the loop or by the drain.
	assert.Len(t, st.all(), 1)
}

func TestStart_FilesystemNotifications(t *testing.T) {
	dir := t.TempDir()
	st := &memStore{}
	m := newManager(t, st, nil)
	require.NoError(t, m.Register([]WatchTarget{{Path: dir, IsDirectory: true, Recursive: true}}))
	stop := runManager(t, m)
	defer stop()

	// Give the watches a moment to be added.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	require.Eventually(t, func() bool {
		for _, e := range st.all() {
			if strings.Contains(e.Message, path) {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)
}

func TestStart_FileTargetFiltersSiblings(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "watched.txt")
	require.NoError(t, os.WriteFile(target, nil, 0644))

	st := &memStore{}
	m := newManager(t, st, nil)
	require.NoError(t, m.Register([]WatchTarget{{Path: target}}))
	stop := runManager(t, m)
	defer stop()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "sibling.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(target, []byte("x"), 0644))

	require.Eventually(t, func() bool { return len(st.all()) > 0 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	for _, e := range st.all() {
		assert.NotContains(t, e.Message, "sibling.txt")
	}
}
