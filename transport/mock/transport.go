// Package mock provides a scripted in-memory transport for tests.
package mock

import (
	"errors"
	"sync"
	"time"

	"github.com/kvisten/pgpipe/transport"
)

// Transport implements transport.Transport against scripted data. Inbound
// bytes are queued with QueueInbound and handed out in chunks; outbound
// frames are recorded for inspection. Backpressure and failures are
// configurable so callers can exercise the retry paths.
type Transport struct {
	mu sync.Mutex

	inbound   []byte
	recvChunk int

	sent      [][]byte
	unflushed int

	deferSends int
	sendErr    error
	receiveErr error
	closed     bool

	metrics transport.Metrics
}

// New creates an empty mock transport.
func New() *Transport {
	return &Transport{recvChunk: 4096}
}

// WithRecvChunk bounds how many bytes a single TryReceive returns. Small
// chunks force the decoder through its partial-frame path.
func (m *Transport) WithRecvChunk(n int) *Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recvChunk = n
	return m
}

// WithDeferredSends makes the next n TrySend calls report backpressure.
func (m *Transport) WithDeferredSends(n int) *Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deferSends = n
	return m
}

// WithSendError makes TrySend fail with err.
func (m *Transport) WithSendError(err error) *Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
	return m
}

// WithReceiveError makes TryReceive fail with err once the scripted inbound
// bytes run out.
func (m *Transport) WithReceiveError(err error) *Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receiveErr = err
	return m
}

// QueueInbound appends scripted bytes for TryReceive to return.
func (m *Transport) QueueInbound(data []byte) *Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbound = append(m.inbound, data...)
	return m
}

// SentFrames returns the frames accepted by TrySend, in order.
func (m *Transport) SentFrames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentBytes returns all accepted outbound bytes concatenated.
func (m *Transport) SentBytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []byte
	for _, f := range m.sent {
		out = append(out, f...)
	}
	return out
}

// TrySend implements transport.Transport.
func (m *Transport) TrySend(frame []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, errors.New("transport is closed")
	}
	if m.sendErr != nil {
		return false, m.sendErr
	}
	if m.deferSends > 0 {
		m.deferSends--
		m.metrics.SendDeferrals++
		return false, nil
	}

	buf := make([]byte, len(frame))
	copy(buf, frame)
	m.sent = append(m.sent, buf)
	m.unflushed++
	m.metrics.FramesSent++
	m.metrics.BytesSent += int64(len(frame))
	return true, nil
}

// Flush implements transport.Transport.
func (m *Transport) Flush() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, errors.New("transport is closed")
	}
	m.unflushed = 0
	return true, nil
}

// TryReceive implements transport.Transport.
func (m *Transport) TryReceive() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.New("transport is closed")
	}
	if len(m.inbound) == 0 {
		if m.receiveErr != nil {
			return nil, m.receiveErr
		}
		return nil, nil
	}

	n := m.recvChunk
	if n <= 0 || n > len(m.inbound) {
		n = len(m.inbound)
	}
	out := make([]byte, n)
	copy(out, m.inbound[:n])
	m.inbound = m.inbound[n:]
	m.metrics.BytesReceived += int64(n)
	return out, nil
}

// SocketHandle implements transport.Transport. Mocks have no descriptor.
func (m *Transport) SocketHandle() int {
	return -1
}

// IsReadReady implements transport.Transport.
func (m *Transport) IsReadReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inbound) > 0
}

// IsWriteReady implements transport.Transport.
func (m *Transport) IsWriteReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deferSends == 0
}

// WaitReady implements transport.Transport. The mock never truly blocks: it
// reports readable only while scripted bytes remain, so a test with an
// exhausted script fails fast instead of hanging.
func (m *Transport) WaitReady(read bool, timeout time.Duration) (bool, error) {
	if read {
		return m.IsReadReady(), nil
	}
	return m.IsWriteReady(), nil
}

// Close implements transport.Transport.
func (m *Transport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Metrics implements transport.Transport.
func (m *Transport) Metrics() transport.Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}
