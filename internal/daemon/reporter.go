package daemon

import (
	"github.com/kardianos/service"
	"github.com/rs/zerolog"

	"github.com/blackwell-systems/fsauditd/internal/logging"
)

// Reporter receives operational messages meant for an operator: the startup
// summary, configuration warnings and startup failures.
type Reporter interface {
	Info(msg string)
	Warn(msg string)
	Error(err error)
}

// LogReporter writes to a zerolog logger.
type LogReporter struct {
	log zerolog.Logger
}

func NewLogReporter() *LogReporter {
	return &LogReporter{log: logging.Component("daemon")}
}

func (r *LogReporter) Info(msg string)  { r.log.Info().Msg(msg) }
func (r *LogReporter) Warn(msg string)  { r.log.Warn().Msg(msg) }
func (r *LogReporter) Error(err error) { r.log.Error().Err(err).Msg("daemon error") }

// ServiceReporter forwards to the OS service logger (the event log on
// Windows, syslog elsewhere) and to the process log.
type ServiceReporter struct {
	svc  service.Logger
	next Reporter
}

func NewServiceReporter(l service.Logger) *ServiceReporter {
	return &ServiceReporter{svc: l, next: NewLogReporter()}
}

func (r *ServiceReporter) Info(msg string) {
	r.next.Info(msg)
	r.svc.Info(msg) //nolint:errcheck
}

func (r *ServiceReporter) Warn(msg string) {
	r.next.Warn(msg)
	r.svc.Warning(msg) //nolint:errcheck
}

func (r *ServiceReporter) Error(err error) {
	r.next.Error(err)
	r.svc.Error(err.Error()) //nolint:errcheck
}
