package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/blackwell-systems/fsauditd/internal/audit"
)

// renamePairWindow is how long a Rename waits for the matching Create that
// carries the new name. Unpaired renames are reported as deletions.
const renamePairWindow = 100 * time.Millisecond

// openWatch starts OS notifications for w, adding every sub-directory of
// recursive directory targets.
func (m *Manager) openWatch(w *Watch) (*fsnotify.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(w.Dir); err != nil {
		fw.Close()
		return nil, err
	}
	if w.Recursive {
		m.addTree(fw, w.Dir)
	}
	return fw, nil
}

// addTree adds every directory below root. Unreadable sub-directories are skipped.
func (m *Manager) addTree(fw *fsnotify.Watcher, root string) {
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error { //nolint:errcheck
		if err != nil {
			m.log.Warn().Err(err).Str("path", path).Msg("skipping unreadable directory")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() || path == root {
			return nil
		}
		if err := fw.Add(path); err != nil {
			m.log.Warn().Err(err).Str("path", path).Msg("failed to watch sub-directory")
		}
		return nil
	})
}

// pump translates the notifications of one watch into RawEvents and queues
// them for the dispatch loop. It owns fw and closes it on return.
func (m *Manager) pump(fw *fsnotify.Watcher, w *Watch) {
	defer m.wg.Done()
	defer fw.Close()

	var (
		pending string
		expire  <-chan time.Time
	)
	flush := func() {
		if pending != "" && w.Matches(pending) {
			m.enqueue(RawEvent{Kind: audit.OpDeleted, Path: pending})
		}
		pending, expire = "", nil
	}

	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				flush()
				return
			}
			switch {
			case ev.Has(fsnotify.Create):
				if w.Recursive && isDir(ev.Name) {
					if err := fw.Add(ev.Name); err != nil {
						m.log.Warn().Err(err).Str("path", ev.Name).Msg("failed to watch new directory")
					} else {
						m.addTree(fw, ev.Name)
					}
				}
				if pending != "" {
					old := pending
					pending, expire = "", nil
					if w.Matches(old) || w.Matches(ev.Name) {
						m.enqueue(RawEvent{Kind: audit.OpRenamed, Path: ev.Name, OldPath: old})
					}
					continue
				}
				if w.Matches(ev.Name) {
					m.enqueue(RawEvent{Kind: audit.OpCreated, Path: ev.Name})
				}
			case ev.Has(fsnotify.Rename):
				flush()
				pending = ev.Name
				expire = time.After(renamePairWindow)
			case ev.Has(fsnotify.Remove):
				flush()
				if w.Matches(ev.Name) {
					m.enqueue(RawEvent{Kind: audit.OpDeleted, Path: ev.Name})
				}
			case ev.Has(fsnotify.Write):
				flush()
				if w.Matches(ev.Name) {
					m.enqueue(RawEvent{Kind: audit.OpChanged, Path: ev.Name})
				}
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			m.log.Warn().Err(err).Str("watch", w.Path()).Msg("notification error")
		case <-expire:
			flush()
		case <-m.stopCh:
			return
		}
	}
}

func isDir(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.IsDir()
}
