package app

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/fsauditd/internal/audit"
	"github.com/blackwell-systems/fsauditd/internal/output"
	"github.com/blackwell-systems/fsauditd/internal/store"
)

var (
	entriesLimit int
	entriesJSON  bool

	entriesCmd = &cobra.Command{
		Use:   "entries",
		Short: "List the most recent audit entries",
		Long: `List the most recent entries in the audit table, newest first.

Each entry shows who is believed to have made the change (the identity of the
latest stored entry), the source that produced it and the rendered message.`,
		Example: `  # Last 20 entries
  fsauditd entries

  # Last 100 entries as JSON
  fsauditd entries --limit 100 --json`,
		Args: cobra.NoArgs,
		RunE: runEntries,
	}
)

func init() {
	entriesCmd.Flags().IntVarP(&entriesLimit, "limit", "n", 20, "number of entries to show")
	entriesCmd.Flags().BoolVar(&entriesJSON, "json", false, "print entries as JSON")
}

// entryJSON is the --json representation of an audit entry.
type entryJSON struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Point     string    `json:"point"`
	Message   string    `json:"message"`
	Source    string    `json:"source"`
}

func runEntries(cmd *cobra.Command, args []string) error {
	if entriesLimit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", entriesLimit)
	}

	s, err := loadSettings()
	if err != nil {
		return err
	}

	st, err := store.Open(s.Database.Driver, s.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	entries, err := st.ListRecent(ctx, entriesLimit)
	if err != nil {
		return fmt.Errorf("failed to list entries: %w", err)
	}

	out := cmd.OutOrStdout()
	if entriesJSON {
		return writeEntriesJSON(cmd, entries)
	}

	total, err := st.CountEntries(ctx)
	if err != nil {
		return fmt.Errorf("failed to count entries: %w", err)
	}
	fmt.Fprint(out, output.RenderEntryTable(entries))
	var newest time.Time
	if len(entries) > 0 {
		newest = entries[0].Timestamp
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, output.RenderEntrySummary(len(entries), int64(total), newest))
	return nil
}

func writeEntriesJSON(cmd *cobra.Command, entries []*audit.Entry) error {
	rows := make([]entryJSON, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, entryJSON{
			ID:        e.ID,
			Timestamp: e.Timestamp,
			Username:  e.Username,
			Role:      e.Role,
			Point:     e.Point,
			Message:   e.Message,
			Source:    e.Source,
		})
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
