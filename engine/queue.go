package engine

import "etherlink.dev/etherlink/frame"

// shutdownSentinel unblocks a channel receiver on stop(), the Go analog
// of the reference implementation's queue.put(None) idiom (§5).
var shutdownSentinel = &frame.Frame{}
