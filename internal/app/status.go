package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/fsauditd/internal/daemon"
	"github.com/blackwell-systems/fsauditd/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check daemon status and audit table statistics",
	Long: `Display the state of the background daemon and the audit table.

Shows:
  • Background daemon running status and PID
  • Database driver and location
  • Number of stored entries
  • Most recent entry and the identity it carries`,
	Example: `  # Check status
  fsauditd status`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	const label = "%-14s"

	running, err := daemon.IsRunning(s.PIDFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	fmt.Fprintln(out)
	if running {
		pid, _ := daemon.ReadPID(s.PIDFile)
		fmt.Fprintf(out, label+"running (PID %d)\n", "Daemon:", pid)
	} else {
		fmt.Fprintf(out, label+"stopped  (run 'fsauditd run --background' or 'fsauditd service start')\n", "Daemon:")
	}
	fmt.Fprintf(out, label+"%s (%s)\n", "Database:", s.Database.DSN, s.Database.Driver)
	fmt.Fprintf(out, label+"%s\n", "Targets:", s.TargetsFile)

	st, err := store.Open(s.Database.Driver, s.Database.DSN)
	if err != nil {
		fmt.Fprintf(out, label+"unavailable: %v\n", "Entries:", err)
		return nil
	}
	defer st.Close()

	ctx := context.Background()
	count, err := st.CountEntries(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotInitialized) {
			fmt.Fprintf(out, label+"none yet (schema not created)\n", "Entries:")
			return nil
		}
		return fmt.Errorf("failed to count entries: %w", err)
	}
	fmt.Fprintf(out, label+"%d\n", "Entries:", count)

	last, err := st.LastInserted(ctx)
	if err != nil {
		return fmt.Errorf("failed to read last entry: %w", err)
	}
	if last != nil {
		fmt.Fprintf(out, label+"%s · %s (%s/%s)\n", "Last entry:",
			last.Timestamp.Local().Format("2006-01-02 15:04:05"), last.Source, last.Username, last.Role)
	}
	return nil
}
