package output

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestWaiter_PollsUntilDone(t *testing.T) {
	buf := &bytes.Buffer{}
	polls := 0
	check := func() (bool, string, error) {
		polls++
		if polls < 3 {
			return false, "starting", nil
		}
		return true, "pid 4312", nil
	}

	err := NewWaiter(buf).WithInterval(time.Millisecond).Await("Starting daemon", func() error { return nil }, check)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if polls != 3 {
		t.Errorf("polls = %d, want 3", polls)
	}
	want := "Starting daemon...\n✓ Starting daemon (pid 4312)\n"
	if got := buf.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestWaiter_NilCheck(t *testing.T) {
	buf := &bytes.Buffer{}
	ran := false
	err := NewWaiter(buf).Await("Installing service", func() error { ran = true; return nil }, nil)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if !ran {
		t.Error("action was not run")
	}
	if got := buf.String(); got != "Installing service...\n✓ Installing service\n" {
		t.Errorf("output = %q", got)
	}
}

func TestWaiter_ActionError(t *testing.T) {
	buf := &bytes.Buffer{}
	boom := errors.New("access denied")
	checked := false
	err := NewWaiter(buf).Await("Stopping service", func() error { return boom }, func() (bool, string, error) {
		checked = true
		return true, "", nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Await() error = %v, want %v", err, boom)
	}
	if checked {
		t.Error("check ran after a failed action")
	}
	if got := buf.String(); got != "Stopping service...\n" {
		t.Errorf("output = %q", got)
	}
}

func TestWaiter_CheckError(t *testing.T) {
	boom := errors.New("pid file unreadable")
	err := NewWaiter(&bytes.Buffer{}).Await("Stopping daemon", func() error { return nil }, func() (bool, string, error) {
		return false, "", boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Await() error = %v, want %v", err, boom)
	}
}

func TestWaiter_Timeout(t *testing.T) {
	buf := &bytes.Buffer{}
	err := NewWaiter(buf).
		WithTimeout(20*time.Millisecond).
		WithInterval(5*time.Millisecond).
		Await("Stopping daemon", func() error { return nil }, func() (bool, string, error) {
			return false, "pid 77", nil
		})
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("Await() error = %v, want ErrWaitTimeout", err)
	}
	if want := fmt.Sprintf("%v: Stopping daemon (last state: pid 77)", ErrWaitTimeout); err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
	if got := buf.String(); got != "Stopping daemon...\n" {
		t.Errorf("output = %q", got)
	}
}

func TestWaiter_Line(t *testing.T) {
	wt := NewWaiter(&bytes.Buffer{})
	if got := wt.line("Starting service", "", 2*time.Second); got != "Starting service (2s)" {
		t.Errorf("line() = %q", got)
	}
	if got := wt.line("Starting service", "stopped", 3500*time.Millisecond); got != "Starting service · stopped (3s)" {
		t.Errorf("line() = %q", got)
	}
}
