package client

import (
	"time"
)

// Options configures a Connection.
type Options struct {
	// Logger receives structured log output. Defaults to a JSON logger on
	// stdout at LogLevel.
	Logger Logger

	// LogLevel is the minimum level for the default logger.
	// Valid levels: DEBUG, INFO, WARN, ERROR.
	LogLevel string

	// ConnectTimeout bounds the TCP dial during Connect.
	ConnectTimeout time.Duration

	// ReceiveWait bounds how long a draining call waits for the socket to
	// become readable. Negative means wait indefinitely.
	ReceiveWait time.Duration

	// DebugMode enables verbose error formatting and per-dispatch logging.
	DebugMode bool
}

// DefaultOptions returns the default connection options.
func DefaultOptions() Options {
	return Options{
		LogLevel:       "INFO",
		ConnectTimeout: 10 * time.Second,
		ReceiveWait:    -1,
	}
}
