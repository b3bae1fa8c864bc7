package engine

import "time"

// Constants compiled in per the protocol glossary; not user-configurable.
const (
	chunkSize        = 1400
	ackTimeout       = 15 * time.Second
	maxRetries       = 3
	checkInterval    = 2 * time.Second
	helloInterval    = 30 * time.Second
	peerTimeout      = 90 * time.Second
	peerCleanup      = 60 * time.Second
	transferTimeout  = 120 * time.Second
	transferCleanup  = 30 * time.Second
	socketTimeout    = 1 * time.Second
	maxTrackedPeers  = 4096
	maxTrackedXfers  = 2048
	inboundQueueSize = 256
	outboundQueueSz  = 256
	appQueueSize     = 256
	notifyQueueSize  = 64
	fragmentYieldFor = 10
)

// Config is the engine's external configuration surface. Every other
// tunable (timeouts, chunk size, retry bound) is a package constant per
// the spec's "compiled-in defaults" rule.
type Config struct {
	// Interface is the network interface the engine binds its raw socket
	// to (e.g. "eth0"). Ignored when Socket is supplied directly.
	Interface string
	// Username is this peer's display name, broadcast in presence beacons.
	Username string
	// Debug raises the default log level and enables the colorized
	// stderr backend instead of attempting syslog.
	Debug bool
	// DownloadDir is where assembled file transfers are written. Created
	// if missing. Defaults to "./downloads".
	DownloadDir string
}

func (c Config) withDefaults() Config {
	if c.DownloadDir == "" {
		c.DownloadDir = "./downloads"
	}
	return c
}
