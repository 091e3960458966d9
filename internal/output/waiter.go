package output

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
)

// ErrWaitTimeout is returned by Await when the check never reports done.
var ErrWaitTimeout = errors.New("timed out waiting")

const (
	defaultWaitTimeout  = 10 * time.Second
	defaultWaitInterval = 100 * time.Millisecond
)

var waitFrames = []string{"|", "/", "-", "\\"}

// Check reports the state of the resource being waited on, such as a daemon
// PID or a service status. done ends the wait.
type Check func() (done bool, state string, err error)

// Waiter reports a daemon or service transition. It polls a Check on the
// caller's goroutine and redraws one status line per poll on a terminal.
// Other writers get a start line and a result line.
type Waiter struct {
	w        io.Writer
	tty      bool
	timeout  time.Duration
	interval time.Duration
}

// NewWaiter creates a Waiter writing to w.
func NewWaiter(w io.Writer) *Waiter {
	return &Waiter{
		w:        w,
		tty:      isTerminal(w),
		timeout:  defaultWaitTimeout,
		interval: defaultWaitInterval,
	}
}

// WithTimeout bounds how long Await polls.
func (wt *Waiter) WithTimeout(d time.Duration) *Waiter {
	wt.timeout = d
	return wt
}

// WithInterval sets the poll interval.
func (wt *Waiter) WithInterval(d time.Duration) *Waiter {
	wt.interval = d
	return wt
}

// Await runs action and then polls check until it reports done. A nil check
// finishes as soon as action succeeds. On success it prints
// "✓ label (state)".
func (wt *Waiter) Await(label string, action func() error, check Check) error {
	if !wt.tty {
		fmt.Fprintf(wt.w, "%s...\n", label)
	}

	start := time.Now()
	if err := action(); err != nil {
		wt.clear(label)
		return err
	}
	if check == nil {
		wt.finish(label, "")
		return nil
	}

	var (
		frame int
		state string
	)
	for {
		done, st, err := check()
		if err != nil {
			wt.clear(label)
			return err
		}
		state = st
		if done {
			wt.finish(label, state)
			return nil
		}

		elapsed := time.Since(start)
		if elapsed >= wt.timeout {
			wt.clear(label)
			if state == "" {
				return fmt.Errorf("%w: %s", ErrWaitTimeout, label)
			}
			return fmt.Errorf("%w: %s (last state: %s)", ErrWaitTimeout, label, state)
		}
		if wt.tty {
			fmt.Fprintf(wt.w, "\r%s  %s", waitFrames[frame%len(waitFrames)], wt.line(label, state, elapsed))
			frame++
		}
		time.Sleep(wt.interval)
	}
}

func (wt *Waiter) line(label, state string, elapsed time.Duration) string {
	if state == "" {
		return fmt.Sprintf("%s (%ds)", label, int(elapsed.Seconds()))
	}
	return fmt.Sprintf("%s · %s (%ds)", label, state, int(elapsed.Seconds()))
}

func (wt *Waiter) finish(label, state string) {
	wt.clear(label)
	if state == "" {
		fmt.Fprintf(wt.w, "✓ %s\n", label)
		return
	}
	fmt.Fprintf(wt.w, "✓ %s (%s)\n", label, state)
}

// clear blanks the animated line on a terminal.
func (wt *Waiter) clear(label string) {
	if wt.tty {
		fmt.Fprintf(wt.w, "\r%s\r", strings.Repeat(" ", len(label)+40))
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && isatty.IsTerminal(f.Fd())
}
