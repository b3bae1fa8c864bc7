//go:build !windows

package log

import (
	"log/syslog"

	"github.com/op/go-logging"
)

func newSyslogBackend(prefix string) (logging.Backend, error) {
	return logging.NewSyslogBackendPriority(prefix, syslog.LOG_NOTICE)
}
