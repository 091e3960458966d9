package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/fsauditd/internal/audit"
	"github.com/blackwell-systems/fsauditd/internal/logging"
	"github.com/blackwell-systems/fsauditd/internal/metrics"
	"github.com/blackwell-systems/fsauditd/internal/normalize"
	"github.com/blackwell-systems/fsauditd/internal/seclog"
)

// DefaultQueueSize bounds the channel between watches and the dispatch loop.
const DefaultQueueSize = 256

var (
	// ErrAlreadyStarted is returned by Start and Register once the manager runs.
	ErrAlreadyStarted = errors.New("watcher already started")
	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("watcher stopped")
)

// RawEvent is one filesystem notification. OldPath is set only for renames.
type RawEvent struct {
	Kind    audit.FileOp
	Path    string
	OldPath string
}

// Store is the sink for normalized entries.
type Store interface {
	Insert(ctx context.Context, e *audit.Entry) (int64, error)
	LastInserted(ctx context.Context) (*audit.Entry, error)
}

// Options configures a Manager.
type Options struct {
	Store      Store
	Normalizer *normalize.Normalizer
	// Parser handles notifications for the security trace. Nil disables
	// security dispatch.
	Parser *seclog.Parser
	// Fallback is the identity used while the store holds no entry.
	Fallback  audit.LastEntryContext
	QueueSize int
	Logger    *zerolog.Logger
}

// Manager owns the watch targets and serializes every parse, normalize and
// insert sequence behind one lock.
type Manager struct {
	store      Store
	normalizer *normalize.Normalizer
	parser     *seclog.Parser
	fallback   audit.LastEntryContext
	log        zerolog.Logger

	// mu is the single serialization point for handling notifications.
	mu   sync.Mutex
	last audit.LastEntryContext

	stateMu      sync.Mutex
	watches      []*Watch
	securityName string
	started      bool
	stopped      bool

	events   chan RawEvent
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Manager.
func New(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	n := opts.Normalizer
	if n == nil {
		n = normalize.New(normalize.Options{})
	}
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	log := logging.Component("watcher")
	if opts.Logger != nil {
		log = *opts.Logger
	}

	m := &Manager{
		store:      opts.Store,
		normalizer: n,
		parser:     opts.Parser,
		fallback:   opts.Fallback,
		log:        log,
		events:     make(chan RawEvent, size),
		stopCh:     make(chan struct{}),
	}
	if m.parser != nil {
		m.securityName = filepath.Base(m.parser.Path())
	}
	return m, nil
}

// Register resolves targets and keeps the available ones. Missing paths are
// logged and skipped; they never abort registration of the others.
func (m *Manager) Register(targets []WatchTarget) error {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if m.started {
		return ErrAlreadyStarted
	}

	var securityPath string
	if m.parser != nil {
		securityPath, _ = filepath.Abs(m.parser.Path())
	}

	for _, t := range targets {
		w, err := Resolve(t)
		if err != nil {
			metrics.TargetsSkipped.Inc()
			m.log.Warn().Err(err).Str("path", t.Path).Msg("skipping watch target")
			continue
		}
		if securityPath != "" && w.Path() == securityPath {
			w.Security = true
		}
		m.watches = append(m.watches, w)
	}
	return nil
}

// Watches returns the registered watches.
func (m *Manager) Watches() []*Watch {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	out := make([]*Watch, len(m.watches))
	copy(out, m.watches)
	return out
}

// Start enables notification delivery on every registered watch and runs the
// dispatch loop. It blocks until Stop is called or ctx is done, then drains
// notifications already queued.
func (m *Manager) Start(ctx context.Context) error {
	m.stateMu.Lock()
	if m.stopped {
		m.stateMu.Unlock()
		return ErrStopped
	}
	if m.started {
		m.stateMu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	watches := m.watches
	m.stateMu.Unlock()

	active := 0
	for _, w := range watches {
		fw, err := m.openWatch(w)
		if err != nil {
			metrics.TargetsSkipped.Inc()
			m.log.Warn().Err(err).Str("path", w.Path()).Msg("watch target became unavailable")
			continue
		}
		active++
		m.log.Info().
			Str("path", w.Dir).
			Str("filter", w.Filter()).
			Bool("recursive", w.Recursive).
			Bool("security_log", w.Security).
			Msg("watch active")
		m.wg.Add(1)
		go m.pump(fw, w)
	}
	metrics.ActiveWatches.Set(float64(active))
	m.log.Info().Int("watches", active).Msg("watcher started")

	done := ctx.Done()
	for {
		select {
		case ev := <-m.events:
			m.dispatch(ctx, ev)
		case <-done:
			done = nil
			m.Stop()
		case <-m.stopCh:
			m.wg.Wait()
			m.drain(ctx)
			metrics.ActiveWatches.Set(0)
			m.log.Info().Msg("watcher stopped")
			return nil
		}
	}
}

// Stop disables notification delivery. It is idempotent and safe to call from
// any goroutine; a notification being handled is allowed to finish.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.stateMu.Lock()
		m.stopped = true
		m.stateMu.Unlock()
		close(m.stopCh)
	})
}

// drain handles notifications queued before Stop.
func (m *Manager) drain(ctx context.Context) {
	for {
		select {
		case ev := <-m.events:
			m.dispatch(ctx, ev)
		default:
			return
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, ev RawEvent) {
	// Handlers already running are not interrupted by Stop.
	if err := m.Handle(context.WithoutCancel(ctx), ev); err != nil {
		m.log.Error().Err(err).
			Str("kind", ev.Kind.String()).
			Str("path", ev.Path).
			Msg("notification dropped")
	}
}

// enqueue hands ev to the dispatch loop, blocking while the queue is full.
func (m *Manager) enqueue(ev RawEvent) {
	metrics.RawEvents.WithLabelValues(ev.Kind.String()).Inc()
	select {
	case m.events <- ev:
	case <-m.stopCh:
		metrics.NotificationsDropped.WithLabelValues(metrics.ReasonQueueClosed).Inc()
	}
}

// Handle runs the parse, normalize and insert sequence for one notification
// under the manager's lock. Security trace failures are absorbed; a store
// failure is returned and the notification is dropped. The trace cursor only
// advances once the security entry is stored.
func (m *Manager) Handle(ctx context.Context, ev RawEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	defer func() { metrics.HandleDuration.Observe(time.Since(start).Seconds()) }()

	var (
		nev normalize.Event
		rec *seclog.Record
	)
	if m.isSecurityEvent(ev) {
		var ok bool
		if rec, ok = m.extractSecurityRecord(); !ok {
			return nil
		}
		nev = normalize.SecurityEvent{Record: rec}
	} else {
		nev = normalize.FileEvent{Op: ev.Kind, Path: ev.Path, OldPath: ev.OldPath}
	}

	entry, ok := m.normalizer.Normalize(nev, m.identity(ctx))
	if !ok {
		metrics.NotificationsDropped.WithLabelValues(metrics.ReasonEmptyMessage).Inc()
		return nil
	}

	if _, err := m.store.Insert(ctx, entry); err != nil {
		metrics.NotificationsDropped.WithLabelValues(metrics.ReasonStoreWrite).Inc()
		return err
	}
	if rec != nil {
		m.parser.Commit(rec.SeqNo)
	}
	m.last = audit.ContextOf(entry)
	metrics.EntriesStored.WithLabelValues(entry.Source).Inc()
	m.log.Debug().Int64("id", entry.ID).Str("source", entry.Source).Msg("entry stored")
	return nil
}

// Identity returns the cached backfill identity.
func (m *Manager) Identity() audit.LastEntryContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Manager) isSecurityEvent(ev RawEvent) bool {
	return m.parser != nil && m.securityName != "" && filepath.Base(ev.Path) == m.securityName
}

// extractSecurityRecord must be called with mu held.
func (m *Manager) extractSecurityRecord() (*seclog.Record, bool) {
	rec, err := m.parser.ExtractLatestUserEvent()
	switch {
	case errors.Is(err, seclog.ErrMalformedRecord):
		metrics.SecurityLogReads.WithLabelValues("malformed").Inc()
		m.log.Debug().Err(err).Msg("no usable security record")
		return nil, false
	case err != nil:
		metrics.SecurityLogReads.WithLabelValues("unreadable").Inc()
		m.log.Warn().Err(err).Str("path", m.parser.Path()).Msg("security log unreadable")
		return nil, false
	case rec == nil:
		metrics.SecurityLogReads.WithLabelValues("duplicate").Inc()
		return nil, false
	}
	metrics.SecurityLogReads.WithLabelValues("event").Inc()
	return rec, true
}

// identity refreshes the backfill context from the store. It must be called
// with mu held. When the store cannot be read the last known identity is kept.
func (m *Manager) identity(ctx context.Context) audit.LastEntryContext {
	last, err := m.store.LastInserted(ctx)
	switch {
	case err != nil:
		m.log.Warn().Err(err).Msg("failed to read last entry, reusing cached identity")
	case last != nil:
		m.last = audit.ContextOf(last)
	}
	if m.last.IsZero() {
		return m.fallback
	}
	return m.last
}
