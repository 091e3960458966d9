package watcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrTargetUnavailable is returned when a configured path does not exist.
var ErrTargetUnavailable = errors.New("watch target unavailable")

// WatchTarget is one configured location to monitor.
type WatchTarget struct {
	Path        string
	IsDirectory bool
	// FilePattern restricts directory targets to names matching a glob.
	// File targets always filter on their own name.
	FilePattern string
	Recursive   bool
}

// Watch is a target resolved against the filesystem.
type Watch struct {
	Target WatchTarget
	// Dir is the directory handed to the OS notification mechanism.
	Dir string
	// FileName is set for file targets.
	FileName  string
	Pattern   string
	Recursive bool
	Security  bool
}

// Resolve checks that t exists and computes its watch. Directory targets are
// watched directly; file targets watch their parent filtered to the file name.
func Resolve(t WatchTarget) (*Watch, error) {
	abs, err := filepath.Abs(t.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTargetUnavailable, t.Path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTargetUnavailable, t.Path, err)
	}

	if info.IsDir() {
		if t.FilePattern != "" {
			if _, err := filepath.Match(t.FilePattern, ""); err != nil {
				return nil, fmt.Errorf("invalid file pattern %q for %s: %w", t.FilePattern, t.Path, err)
			}
		}
		return &Watch{
			Target:    t,
			Dir:       abs,
			Pattern:   t.FilePattern,
			Recursive: t.Recursive,
		}, nil
	}

	return &Watch{
		Target:   t,
		Dir:      filepath.Dir(abs),
		FileName: filepath.Base(abs),
	}, nil
}

// Path returns the absolute watched path: the directory, or the file for file targets.
func (w *Watch) Path() string {
	if w.FileName != "" {
		return filepath.Join(w.Dir, w.FileName)
	}
	return w.Dir
}

// Filter describes the name filter in effect, "" meaning none.
func (w *Watch) Filter() string {
	if w.FileName != "" {
		return w.FileName
	}
	return w.Pattern
}

// Matches reports whether a notification for path belongs to this watch.
func (w *Watch) Matches(path string) bool {
	name := filepath.Base(path)
	if w.FileName != "" {
		return filepath.Dir(path) == w.Dir && name == w.FileName
	}
	if !w.Recursive && filepath.Dir(path) != w.Dir {
		return false
	}
	if w.Pattern == "" {
		return true
	}
	ok, _ := filepath.Match(w.Pattern, name)
	return ok
}
