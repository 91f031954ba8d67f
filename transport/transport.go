// Package transport defines the nonblocking transport abstraction for pgpipe
package transport

import (
	"time"
)

// Transport moves opaque protocol frames over a socket without blocking.
// Send-side calls report backpressure instead of waiting; receive-side
// calls return whatever is available. Readiness accessors let a caller
// drive an external select/poll loop.
type Transport interface {
	// TrySend queues a frame for transmission. It returns false when the
	// send buffer cannot accept the frame right now; the caller retries
	// after the socket reports writable.
	TrySend(frame []byte) (bool, error)

	// Flush pushes buffered outbound bytes to the socket. It returns false
	// when the socket would block before everything was written.
	Flush() (bool, error)

	// TryReceive returns bytes available on the socket, or nil when a read
	// would block.
	TryReceive() ([]byte, error)

	// SocketHandle returns the underlying descriptor for readiness polling.
	SocketHandle() int

	// IsReadReady reports whether a read would make progress.
	IsReadReady() bool

	// IsWriteReady reports whether a write would make progress.
	IsWriteReady() bool

	// WaitReady blocks until the socket is readable (read=true) or writable
	// (read=false). A negative timeout waits indefinitely. It returns false
	// when the timeout elapsed first.
	WaitReady(read bool, timeout time.Duration) (bool, error)

	// Close closes the transport. All subsequent operations fail.
	Close() error

	// Metrics returns transport counters.
	Metrics() Metrics
}

// Metrics contains transport performance counters.
type Metrics struct {
	// FramesSent is the number of frames accepted by TrySend.
	FramesSent int64

	// BytesSent is the total bytes written to the socket.
	BytesSent int64

	// BytesReceived is the total bytes read from the socket.
	BytesReceived int64

	// SendDeferrals counts TrySend calls refused due to backpressure.
	SendDeferrals int64

	// LastError is the most recent transport error.
	LastError error

	// LastErrorTime is when the last error occurred.
	LastErrorTime time.Time
}
