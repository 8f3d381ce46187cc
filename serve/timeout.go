package serve

import (
	"context"
	"time"
)

// DefaultShutdownBuffer is the time reserved at the end of the request timeout so a slow handler still
// gets to send its error response before the connection is cut.
const DefaultShutdownBuffer = 500 * time.Millisecond

// TimeoutConfig holds timeout configuration for the HTTP server.
type TimeoutConfig struct {
	// Timeout is the maximum time a request may take, from BMICRO_TIMEOUT.
	Timeout time.Duration

	// Buffer is subtracted from Timeout for reading and writing. Defaults to DefaultShutdownBuffer.
	Buffer time.Duration
}

// ServerTimeouts returns the http.Server timeout values derived from the request timeout.
func (tc TimeoutConfig) ServerTimeouts() (readHeaderTimeout, readTimeout, writeTimeout, idleTimeout time.Duration) {
	buffer := tc.Buffer
	if buffer <= 0 {
		buffer = DefaultShutdownBuffer
	}

	timeout := tc.Timeout - buffer
	if timeout <= 0 {
		timeout = tc.Timeout // fallback if buffer >= timeout
	}

	// headers are small, a client that takes longer than this is stalling.
	readHeaderTimeout = min(timeout, 5*time.Second)
	readTimeout = timeout
	writeTimeout = timeout

	// keep-alive connections may idle for the full timeout.
	idleTimeout = tc.Timeout

	return
}

// RequestRemainingTime returns the duration until the request context deadline.
// Returns 0 if no deadline is set or if the deadline has passed.
func RequestRemainingTime(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	remaining := time.Until(deadline)
	if remaining < 0 {
		return 0
	}
	return remaining
}
