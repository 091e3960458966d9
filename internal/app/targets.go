package app

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/fsauditd/internal/config"
	"github.com/blackwell-systems/fsauditd/internal/output"
	"github.com/blackwell-systems/fsauditd/internal/watcher"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Show how each configured watch target resolves",
	Long: `Load the watch targets document and resolve every entry against the
filesystem, the same way 'fsauditd run' does at startup.

Targets whose path does not exist are shown as skipped. The target that
matches security.log_path is marked as the security log.`,
	Args: cobra.NoArgs,
	RunE: runTargets,
}

func runTargets(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}

	targets, err := config.LoadTargets(s.TargetsFile)
	if err != nil {
		return err
	}

	var securityPath string
	if s.Security.LogPath != "" {
		securityPath, _ = filepath.Abs(s.Security.LogPath)
	}

	rows := make([]output.TargetRow, 0, len(targets))
	active := 0
	for _, t := range targets {
		rows = append(rows, targetRow(t, securityPath))
		if rows[len(rows)-1].Err == nil {
			active++
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Targets file: %s\n\n", s.TargetsFile)
	fmt.Fprint(out, output.RenderTargetTable(rows))
	fmt.Fprintf(out, "\n%d of %d targets active\n", active, len(targets))
	return nil
}

func targetRow(t watcher.WatchTarget, securityPath string) output.TargetRow {
	row := output.TargetRow{Path: t.Path, Kind: "file", Recursive: t.Recursive}
	if t.IsDirectory {
		row.Kind = "directory"
	}

	w, err := watcher.Resolve(t)
	if err != nil {
		row.Err = err
		return row
	}
	row.Filter = w.Filter()
	row.Recursive = w.Recursive
	row.Security = securityPath != "" && w.Path() == securityPath
	return row
}
