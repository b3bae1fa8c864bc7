//go:build windows

package log

import (
	"errors"

	"github.com/op/go-logging"
)

func newSyslogBackend(prefix string) (logging.Backend, error) {
	return nil, errors.New("log: syslog unavailable on this platform")
}
