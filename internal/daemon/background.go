package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// StartBackground re-executes the current binary with args as a detached
// process, writes its PID to pidFile and redirects its output to logFile.
func StartBackground(pidFile, logFile string, args []string) error {
	running, err := IsRunning(pidFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if running {
		return fmt.Errorf("daemon already running (PID file: %s)", pidFile)
	}

	logF, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logF.Close()

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	cmd := exec.Command(executable, args...)
	cmd.Stdout = logF
	cmd.Stderr = logF
	cmd.Stdin = nil
	cmd.SysProcAttr = detachAttr()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon process: %w", err)
	}

	if err := WritePIDFile(pidFile, cmd.Process.Pid); err != nil {
		cmd.Process.Kill() //nolint:errcheck
		return err
	}

	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("failed to release process: %w", err)
	}
	return nil
}

// WritePIDFile records pid in pidFile.
func WritePIDFile(pidFile string, pid int) error {
	if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d\n", pid)), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// RemovePIDFile deletes pidFile, ignoring a missing file.
func RemovePIDFile(pidFile string) error {
	if err := os.Remove(pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// StopBackground asks the process recorded in pidFile to shut down.
func StopBackground(pidFile string) error {
	pid, err := ReadPID(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("daemon not running (PID file not found)")
		}
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := terminate(process); err != nil {
		return fmt.Errorf("failed to stop process %d: %w", pid, err)
	}
	return nil
}

// IsRunning checks the process recorded in pidFile. A stale PID file is removed.
func IsRunning(pidFile string) (bool, error) {
	pid, err := ReadPID(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		if _, ok := err.(*strconv.NumError); ok {
			// Invalid PID file, consider daemon not running
			return false, nil
		}
		return false, err
	}

	process, err := os.FindProcess(pid)
	if err != nil || !alive(process) {
		os.Remove(pidFile)
		return false, nil
	}
	return true, nil
}

// ReadPID returns the process ID recorded in pidFile.
func ReadPID(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}
