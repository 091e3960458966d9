// Package daemon wires configuration, storage, the security trace parser,
// the normalizer and the watcher manager into one runnable unit.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/blackwell-systems/fsauditd/internal/config"
	"github.com/blackwell-systems/fsauditd/internal/logging"
	"github.com/blackwell-systems/fsauditd/internal/metrics"
	"github.com/blackwell-systems/fsauditd/internal/normalize"
	"github.com/blackwell-systems/fsauditd/internal/seclog"
	"github.com/blackwell-systems/fsauditd/internal/store"
	"github.com/blackwell-systems/fsauditd/internal/watcher"
)

// Daemon owns the store for the duration of Start.
type Daemon struct {
	settings *config.Settings
	reporter Reporter

	mu      sync.Mutex
	mgr     *watcher.Manager
	stopped bool
}

// New creates a Daemon. A nil reporter logs through the global logger.
func New(settings *config.Settings, reporter Reporter) *Daemon {
	if reporter == nil {
		reporter = NewLogReporter()
	}
	return &Daemon{settings: settings, reporter: reporter}
}

// Start builds the pipeline and blocks until Stop is called or ctx is done.
// Failures found while building it are reported once and returned. A missing
// targets document is reported and the daemon runs with no targets.
func (d *Daemon) Start(ctx context.Context) error {
	s := d.settings

	targets, err := config.LoadTargets(s.TargetsFile)
	if err != nil {
		if !errors.Is(err, config.ErrConfigUnavailable) {
			d.reporter.Error(err)
			return err
		}
		d.reporter.Error(fmt.Errorf("%w; define %s and restart the service", err, s.TargetsFile))
		targets = nil
	}

	msgs, err := normalize.NewMessages(s.Language)
	if err != nil {
		err = fmt.Errorf("language %q: %w", s.Language, err)
		d.reporter.Error(err)
		return err
	}

	st, err := store.Open(s.Database.Driver, s.Database.DSN)
	if err != nil {
		d.reporter.Error(err)
		return err
	}
	defer st.Close()
	if err := st.CreateSchema(); err != nil {
		d.reporter.Error(err)
		return err
	}
	d.checkIdentity(ctx, st)

	var parser *seclog.Parser
	if s.Security.LogPath != "" {
		parser = seclog.New(seclog.Options{Path: s.Security.LogPath, Markers: s.Security.Markers})
	}

	mgr, err := watcher.New(watcher.Options{
		Store: st,
		Normalizer: normalize.New(normalize.Options{
			Point:          s.Point,
			SourceFS:       s.Sources.Filesystem,
			SourceSecurity: s.Sources.Security,
			Messages:       msgs,
		}),
		Parser:    parser,
		Fallback:  s.Fallback(),
		QueueSize: s.Watch.QueueSize,
	})
	if err != nil {
		d.reporter.Error(err)
		return err
	}
	if err := mgr.Register(targets); err != nil {
		d.reporter.Error(err)
		return err
	}
	d.reporter.Info(Summary(mgr.Watches()))

	if s.Metrics.Addr != "" {
		srv := metrics.NewServer(s.Metrics.Addr)
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				logging.Error().Err(err).Str("addr", s.Metrics.Addr).Msg("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()
		logging.Info().Str("addr", s.Metrics.Addr).Msg("metrics endpoint listening")
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.mgr = mgr
	d.mu.Unlock()

	err = mgr.Start(ctx)
	if errors.Is(err, watcher.ErrStopped) {
		return nil
	}
	return err
}

// checkIdentity warns when no entry can be written: the table is empty, so
// there is no identity to backfill, and no fallback identity is configured.
func (d *Daemon) checkIdentity(ctx context.Context, st *store.Store) {
	if fb := d.settings.Fallback(); fb.Username != "" && fb.Role != "" {
		return
	}
	last, err := st.LastInserted(ctx)
	if err != nil || last != nil {
		return
	}
	d.reporter.Warn("audit table is empty and identity.fallback_username/identity.fallback_role " +
		"are not set; notifications will be dropped until an entry with an identity is stored")
}

// Stop stops notification delivery. Start returns once queued
// notifications are handled and the store is closed.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.mgr != nil {
		d.mgr.Stop()
	}
}

// Summary describes the active watches, one per line.
func Summary(watches []*watcher.Watch) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d watch target(s) will log the following folders and files:", len(watches))
	for _, w := range watches {
		fmt.Fprintf(&b, "\nPath: %q; Filter: %q; Recursive: %t", w.Dir, w.Filter(), w.Recursive)
		if w.Security {
			b.WriteString("; security log")
		}
	}
	return b.String()
}
