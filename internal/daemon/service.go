package daemon

import (
	"context"
	"fmt"

	"github.com/kardianos/service"

	"github.com/blackwell-systems/fsauditd/internal/config"
	"github.com/blackwell-systems/fsauditd/internal/logging"
)

// Service actions accepted by Control.
const (
	ActionInstall   = "install"
	ActionUninstall = "uninstall"
	ActionStart     = "start"
	ActionStop      = "stop"
	ActionRestart   = "restart"
)

// program adapts Daemon to the service manager.
type program struct {
	settings *config.Settings
	daemon   *Daemon
	logger   service.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func (p *program) Start(s service.Service) error {
	if p.logger == nil {
		var err error
		if p.logger, err = s.Logger(nil); err != nil {
			return err
		}
	}
	p.daemon = New(p.settings, NewServiceReporter(p.logger))

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		if err := p.daemon.Start(ctx); err != nil {
			logging.Error().Err(err).Msg("daemon exited")
		}
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.daemon == nil {
		return nil
	}
	p.logger.Info("Stopping fsauditd service...") //nolint:errcheck
	p.daemon.Stop()
	p.cancel()
	<-p.done
	return nil
}

// NewService builds the OS service for settings. configPath is passed back to
// "fsauditd service run" when the service manager launches the binary.
func NewService(settings *config.Settings, configPath string) (service.Service, error) {
	svcConfig := &service.Config{
		Name:        settings.Service.Name,
		DisplayName: settings.Service.DisplayName,
		Description: settings.Service.Description,
		Arguments:   []string{"service", "run"},
	}
	if configPath != "" {
		svcConfig.Arguments = append(svcConfig.Arguments, "--config", configPath)
	}
	return service.New(&program{settings: settings}, svcConfig)
}

// Control runs a service management action.
func Control(s service.Service, action string) error {
	switch action {
	case ActionInstall, ActionUninstall, ActionStart, ActionStop, ActionRestart:
	default:
		return fmt.Errorf("unknown service action %q (valid: %v)", action, service.ControlAction)
	}
	if err := service.Control(s, action); err != nil {
		return fmt.Errorf("service %s: %w", action, err)
	}
	return nil
}

// Status describes the installed service state.
func Status(s service.Service) (string, error) {
	st, err := s.Status()
	if err != nil {
		return "", err
	}
	switch st {
	case service.StatusRunning:
		return "running", nil
	case service.StatusStopped:
		return "stopped", nil
	default:
		return "unknown", nil
	}
}
