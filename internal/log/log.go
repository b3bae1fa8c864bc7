// Package log centralizes structured logging setup for the engine, built
// on github.com/op/go-logging. Generalized from the teacher's
// kr.SetupLogging: a stderr backend with a colorized format by default,
// a syslog backend where available, and an environment-variable override
// for the level.
package log

import (
	stdlog "log"
	"os"

	"github.com/op/go-logging"
)

var stderrFormat = logging.MustStringFormatter(
	`%{color}%{time:15:04:05.000} %{level:.5s} %{module} ▶%{color:reset} %{message}`,
)

var syslogFormat = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{level:.5s} ▶ %{message}`,
)

// Setup configures the global go-logging backend and returns a module
// logger. prefix names the module in log lines (typically the engine's
// username or instance tag); defaultLevel applies unless overridden by
// the ETHERLINK_LOG_LEVEL environment variable; trySyslog attempts a
// syslog backend first (see syslog_unix.go / syslog_other.go) and falls
// back to stderr if unavailable.
func Setup(prefix string, defaultLevel logging.Level, trySyslog bool) *logging.Logger {
	var backend logging.Backend
	if trySyslog {
		if b, err := newSyslogBackend(prefix); err == nil {
			backend = b
			logging.SetFormatter(syslogFormat)
			if sb, ok := backend.(*logging.SyslogBackend); ok {
				stdlog.SetOutput(sb.Writer)
			}
		}
	}
	if backend == nil {
		backend = logging.NewLogBackend(os.Stderr, prefix, 0)
		logging.SetFormatter(stderrFormat)
	}

	leveled := logging.AddModuleLevel(backend)
	leveled.SetLevel(levelFromEnv(defaultLevel), prefix)
	logging.SetBackend(leveled)

	return logging.MustGetLogger(prefix)
}

func levelFromEnv(fallback logging.Level) logging.Level {
	switch os.Getenv("ETHERLINK_LOG_LEVEL") {
	case "CRITICAL":
		return logging.CRITICAL
	case "ERROR":
		return logging.ERROR
	case "WARNING":
		return logging.WARNING
	case "NOTICE":
		return logging.NOTICE
	case "INFO":
		return logging.INFO
	case "DEBUG":
		return logging.DEBUG
	default:
		return fallback
	}
}
