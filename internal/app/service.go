package app

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/blackwell-systems/fsauditd/internal/daemon"
	"github.com/blackwell-systems/fsauditd/internal/logging"
	"github.com/blackwell-systems/fsauditd/internal/output"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Install and control fsauditd as an OS service",
	Long: `Manage fsauditd through the operating system's service manager
(Windows services, systemd, launchd...).

The installed service runs 'fsauditd service run' with the --config value
given at install time. Startup problems and the list of active watches are
written to the service manager's log (the Application event log on Windows).`,
	Example: `  fsauditd service install --config /etc/fsauditd/config.yaml
  fsauditd service start
  fsauditd service status
  fsauditd service stop
  fsauditd service uninstall`,
}

func init() {
	for _, action := range []string{
		daemon.ActionInstall,
		daemon.ActionUninstall,
		daemon.ActionStart,
		daemon.ActionStop,
		daemon.ActionRestart,
	} {
		serviceCmd.AddCommand(newServiceControlCmd(action))
	}
	serviceCmd.AddCommand(serviceStatusCmd)
	serviceCmd.AddCommand(serviceRunCmd)
}

func newServiceControlCmd(action string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: fmt.Sprintf("%s the fsauditd service", cases.Title(language.English).String(action)),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			control := func() error { return daemon.Control(svc, action) }
			return output.NewWaiter(cmd.OutOrStdout()).Await(serviceLabels[action], control, serviceCheck(svc, action))
		},
	}
}

var serviceLabels = map[string]string{
	daemon.ActionInstall:   "Installing service",
	daemon.ActionUninstall: "Uninstalling service",
	daemon.ActionStart:     "Starting service",
	daemon.ActionStop:      "Stopping service",
	daemon.ActionRestart:   "Restarting service",
}

// serviceCheck polls the service manager until the state an action leads to
// is reported. Install has no state to wait for.
func serviceCheck(svc service.Service, action string) output.Check {
	var want string
	switch action {
	case daemon.ActionStart, daemon.ActionRestart:
		want = "running"
	case daemon.ActionStop:
		want = "stopped"
	case daemon.ActionUninstall:
		want = "not installed"
	default:
		return nil
	}
	return func() (bool, string, error) {
		state, err := daemon.Status(svc)
		if errors.Is(err, service.ErrNotInstalled) {
			state, err = "not installed", nil
		}
		if err != nil {
			return false, "", fmt.Errorf("failed to query service: %w", err)
		}
		return state == want, state, nil
	}
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the fsauditd service is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		status, err := daemon.Status(svc)
		if err != nil {
			if errors.Is(err, service.ErrNotInstalled) {
				fmt.Fprintln(cmd.OutOrStdout(), "Service: not installed")
				return nil
			}
			return fmt.Errorf("failed to query service: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Service: %s\n", status)
		return nil
	},
}

var serviceRunCmd = &cobra.Command{
	Use:    "run",
	Short:  "Run under the service manager (used by the installed service)",
	Args:   cobra.NoArgs,
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		defer logging.Close() //nolint:errcheck
		return svc.Run()
	},
}

// newService loads settings and builds the OS service. The config path is
// stored as absolute so the service manager can find it from any directory.
func newService() (service.Service, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}
	path := configPath
	if path != "" {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	svc, err := daemon.NewService(s, path)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return svc, nil
}
