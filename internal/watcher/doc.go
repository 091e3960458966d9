// Package watcher turns filesystem notifications into stored audit entries.
//
// Each registered WatchTarget gets its own fsnotify watcher. Notifications are
// translated into RawEvents and queued on one bounded channel; a single
// dispatch loop drains it and calls Manager.Handle, which reads the security
// trace when needed, normalizes the event and inserts the entry while holding
// the manager's lock. Entries therefore reach the store one at a time and in
// the order they were handled.
//
// Renames are reported by fsnotify as a Rename on the old name followed by a
// Create on the new one. The pair is joined into one renamed event when the
// Create arrives within a short window; otherwise the old name is reported
// as deleted.
//
// Example usage:
//
//	m, err := watcher.New(watcher.Options{Store: st, Parser: parser})
//	if err != nil {
//		return err
//	}
//	if err := m.Register(targets); err != nil {
//		return err
//	}
//	go func() {
//		<-sigCh
//		m.Stop()
//	}()
//	return m.Start(ctx)
package watcher
