package realtime

import "time"

const (
	// Max bytes per websocket frame read.
	maxFrameBytes = 16 << 10

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection budget: rateLimitEvents inbound frames per rateLimitWindow.
	rateLimitEvents = 60
	rateLimitWindow = 10 * time.Second

	liveCheckInterval = 30 * time.Second
)
