package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/fsauditd/internal/config"
	"github.com/blackwell-systems/fsauditd/internal/daemon"
	"github.com/blackwell-systems/fsauditd/internal/logging"
	"github.com/blackwell-systems/fsauditd/internal/output"
)

var (
	runBackground  bool
	runDaemonChild bool
	runPIDFile     string
	runLogFile     string
	runStop        bool

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Watch the configured targets and record audit entries",
		Long: `Start the audit daemon: watch every configured target and write one audit
entry per change.

Run modes:
  • Foreground (default): Run in current terminal with Ctrl+C to stop
  • Background: Detach from the terminal and record the PID in a PID file
  • Stop: Stop a running background daemon

Missing targets are skipped with a warning. A missing targets document is
reported and the daemon keeps running with nothing to watch.`,
		Example: `  # Run in foreground (Ctrl+C to stop)
  fsauditd run

  # Run as background daemon
  fsauditd run --background

  # Stop the background daemon
  fsauditd run --stop

  # Use custom PID and log files
  fsauditd run --background --pid-file /tmp/fsauditd.pid --log-file /tmp/fsauditd.log`,
		RunE: runRun,
	}
)

func init() {
	runCmd.Flags().BoolVar(&runBackground, "background", false, "run as background daemon")
	runCmd.Flags().BoolVar(&runDaemonChild, "daemon-child", false, "internal flag for daemon child process")
	runCmd.Flags().StringVar(&runPIDFile, "pid-file", "", "PID file path (default: pid_file setting)")
	runCmd.Flags().StringVar(&runLogFile, "log-file", "", "output file for the background process (default: fsauditd.out next to the PID file)")
	runCmd.Flags().BoolVar(&runStop, "stop", false, "stop running background daemon")

	// Hide the internal daemon-child flag from help
	runCmd.Flags().MarkHidden("daemon-child") //nolint:errcheck
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	defer logging.Close() //nolint:errcheck

	if runPIDFile == "" {
		runPIDFile = s.PIDFile
	}
	if runLogFile == "" {
		runLogFile = filepath.Join(filepath.Dir(runPIDFile), "fsauditd.out")
	}

	switch {
	case runStop:
		return stopBackground(cmd)
	case runBackground:
		return startBackground(cmd)
	case runDaemonChild:
		return runDaemonChildProcess(s)
	}
	return runForeground(cmd, s)
}

func stopBackground(cmd *cobra.Command) error {
	running, err := daemon.IsRunning(runPIDFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if !running {
		fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
		return nil
	}

	pid, _ := daemon.ReadPID(runPIDFile)
	stop := func() error {
		if err := daemon.StopBackground(runPIDFile); err != nil {
			return fmt.Errorf("failed to stop daemon: %w", err)
		}
		return nil
	}
	label := fmt.Sprintf("Stopping daemon (PID %d)", pid)
	return output.NewWaiter(cmd.OutOrStdout()).Await(label, stop, daemonState(false))
}

// daemonState reports the background daemon recorded in the PID file. The
// wait is done once the daemon's running state equals want.
func daemonState(want bool) output.Check {
	return func() (bool, string, error) {
		running, err := daemon.IsRunning(runPIDFile)
		if err != nil {
			return false, "", fmt.Errorf("failed to check daemon status: %w", err)
		}
		if !running {
			return !want, "stopped", nil
		}
		pid, err := daemon.ReadPID(runPIDFile)
		if err != nil {
			return want, "running", nil
		}
		return want, fmt.Sprintf("PID %d", pid), nil
	}
}

func startBackground(cmd *cobra.Command) error {
	if err := os.MkdirAll(filepath.Dir(runPIDFile), 0755); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	args := []string{"run", "--daemon-child", "--pid-file", runPIDFile}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}

	start := func() error {
		if err := daemon.StartBackground(runPIDFile, runLogFile, args); err != nil {
			return fmt.Errorf("failed to start daemon: %w", err)
		}
		return nil
	}
	if err := output.NewWaiter(cmd.OutOrStdout()).Await("Starting daemon", start, daemonState(true)); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nAudit daemon started\n")
	fmt.Fprintf(out, "  PID file: %s\n", runPIDFile)
	fmt.Fprintf(out, "  Log file: %s\n", runLogFile)
	fmt.Fprintf(out, "\nTo stop: fsauditd run --stop\n")
	return nil
}

// runDaemonChildProcess runs as the detached child. Its stdout and stderr
// are redirected to the log file.
func runDaemonChildProcess(s *config.Settings) error {
	defer daemon.RemovePIDFile(runPIDFile) //nolint:errcheck
	return serve(s)
}

func runForeground(cmd *cobra.Command, s *config.Settings) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Starting audit daemon (press Ctrl+C to stop)...")
	fmt.Fprintf(out, "  Targets:  %s\n", s.TargetsFile)
	fmt.Fprintf(out, "  Database: %s (%s)\n", s.Database.DSN, s.Database.Driver)
	fmt.Fprintln(out)

	if err := serve(s); err != nil {
		return err
	}
	fmt.Fprintln(out, "Audit daemon stopped")
	return nil
}

// serve runs the daemon until SIGINT or SIGTERM.
func serve(s *config.Settings) error {
	logging.SetRunID(uuid.NewString())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := daemon.New(s, nil).Start(ctx); err != nil {
		return fmt.Errorf("daemon failed: %w", err)
	}
	return nil
}
