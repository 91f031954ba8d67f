package client

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/kvisten/pgpipe/protocol"
	"github.com/kvisten/pgpipe/transport"
	"github.com/kvisten/pgpipe/transport/tcp"
)

// Connection owns one transport and one pipeline queue. Exactly one
// Connection exists per socket. A Connection is not safe for concurrent use
// without external mutual exclusion: all queue and mode state is mutated
// only by the single owning caller.
type Connection struct {
	transport transport.Transport
	codec     protocol.Codec
	decoder   *protocol.Decoder
	logger    Logger
	opts      Options

	state      PipelineState
	queue      []*PipelineEntry
	head       int
	headActive bool
	nextSeq    uint64
	groupID    string

	// scratch for the entry currently being drained
	inTuples bool
	columns  []string
	rows     [][][]byte

	singleShot bool
	connErr    error
	closed     bool
}

// Config holds the server coordinates for Connect.
type Config struct {
	Address  string
	User     string
	Password string
	Database string
}

// ParseConfig parses a postgres:// connection URL.
func ParseConfig(connStr string) (Config, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return Config{}, ErrConnection("INVALID_CONN_STRING", "connection string is not a valid URL", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return Config{}, ErrConnection("INVALID_SCHEME",
			fmt.Sprintf("connection string must use postgres:// scheme, got %q", u.Scheme), nil)
	}

	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}

	cfg := Config{
		Address:  net.JoinHostPort(host, port),
		Database: strings.TrimPrefix(u.Path, "/"),
	}
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	if cfg.User == "" {
		cfg.User = "postgres"
	}
	return cfg, nil
}

// NewConnection wraps an established transport in a Connection. The
// transport is assumed to have completed any startup handshake; Connect
// performs both steps for TCP servers.
func NewConnection(tr transport.Transport, opts *Options) *Connection {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}

	logger := opts.Logger
	if logger == nil {
		logger = NewLogger(opts.LogLevel, nil)
	}

	return &Connection{
		transport: tr,
		codec:     protocol.NewCodec(),
		decoder:   protocol.NewDecoder(),
		logger:    logger,
		opts:      *opts,
		state:     PipelineOff,
	}
}

// Connect dials the server and performs the startup handshake. Trust and
// cleartext-password authentication are supported.
func Connect(ctx context.Context, connStr string, opts *Options) (*Connection, error) {
	cfg, err := ParseConfig(connStr)
	if err != nil {
		return nil, err
	}

	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}

	tr, err := tcp.Dial(cfg.Address, opts.ConnectTimeout, tcp.Options{})
	if err != nil {
		return nil, ErrConnection("CONNECTION_FAILED",
			fmt.Sprintf("failed to connect to %s", cfg.Address), err)
	}

	conn := NewConnection(tr, opts)
	conn.logger.Info("connecting to server",
		String("address", cfg.Address),
		String("database", cfg.Database),
		String("user", cfg.User))

	if err := conn.startup(ctx, cfg); err != nil {
		tr.Close()
		return nil, err
	}

	conn.logger.Info("connection established", String("address", cfg.Address))
	return conn, nil
}

// startup sends the opening handshake and consumes replies until the
// server reports ready.
func (c *Connection) startup(ctx context.Context, cfg Config) error {
	params := map[string]string{"user": cfg.User}
	if cfg.Database != "" {
		params["database"] = cfg.Database
	}

	if err := c.sendBlocking(ctx, c.codec.EncodeStartup(params)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ErrConnection("STARTUP_CANCELLED", "startup cancelled", ctx.Err())
		default:
		}

		reply, err := c.nextReply()
		if err != nil {
			return err
		}

		switch reply.Type {
		case protocol.ReplyAuthOK:
			// authenticated; wait for ready
		case protocol.ReplyAuthCleartextPassword:
			if cfg.Password == "" {
				return ErrConnection("AUTH_FAILED", "server requested a password but none was configured", nil)
			}
			if err := c.sendBlocking(ctx, c.codec.EncodePassword(cfg.Password)); err != nil {
				return err
			}
		case protocol.ReplyReady:
			return nil
		case protocol.ReplyError:
			return ErrConnection("AUTH_FAILED",
				fmt.Sprintf("startup rejected: %s", reply.Err.Message), reply.Err)
		default:
			return c.poison(&ProtocolError{
				Code:    "UNEXPECTED_REPLY",
				Type:    "PROTOCOL_ERROR",
				Message: fmt.Sprintf("unexpected %s reply during startup", reply.Type),
			})
		}
	}
}

// Close invalidates the Connection. All pending queue entries are lost and
// every subsequent operation fails with a ConnectionError.
func (c *Connection) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	// Best effort: tell the server we are leaving.
	if c.connErr == nil {
		if ok, err := c.transport.TrySend(c.codec.EncodeTerminate()); ok && err == nil {
			c.transport.Flush()
		}
	}

	pending := c.pendingEntries()
	if pending > 0 {
		c.logger.Warn("closing connection with undrained pipeline entries",
			Int("pending", pending))
	}

	c.state = PipelineOff
	c.queue = nil
	c.headActive = false
	return c.transport.Close()
}

// SocketHandle returns the transport's socket descriptor for readiness
// polling.
func (c *Connection) SocketHandle() int {
	return c.transport.SocketHandle()
}

// IsReadReady reports whether the socket has bytes to read.
func (c *Connection) IsReadReady() bool {
	return c.transport.IsReadReady()
}

// IsWriteReady reports whether the socket would accept a write.
func (c *Connection) IsWriteReady() bool {
	return c.transport.IsWriteReady()
}

// Flush pushes buffered outbound bytes toward the server. It returns false
// when the socket would block before everything was written.
func (c *Connection) Flush() (bool, error) {
	if err := c.fatal(); err != nil {
		return false, err
	}
	done, err := c.transport.Flush()
	if err != nil {
		return false, c.poison(err)
	}
	return done, nil
}

// Metrics returns the transport counters for this connection.
func (c *Connection) Metrics() transport.Metrics {
	return c.transport.Metrics()
}

// fatal returns the sticky error when the Connection is unusable.
func (c *Connection) fatal() error {
	if c.connErr != nil {
		return c.connErr
	}
	if c.closed {
		return ErrConnectionClosed()
	}
	return nil
}

// poison records a fatal error. Every later operation returns it.
func (c *Connection) poison(err error) error {
	if c.connErr != nil {
		return c.connErr
	}

	if _, ok := err.(*ConnectionError); !ok {
		switch err.(type) {
		case *ProtocolError, *protocol.DecodeError:
			err = ErrConnection("PROTOCOL_DESYNC", "connection lost protocol framing", err)
		default:
			err = ErrConnection("TRANSPORT_FAILED", "transport operation failed", err)
		}
	}
	c.connErr = err

	c.logger.Error("connection poisoned",
		Error("error", err),
		Int("pending", c.pendingEntries()))
	return err
}

// sendBlocking queues a frame and flushes it completely, waiting on socket
// writability as needed. Used by startup and the single-shot path; pipeline
// dispatch never blocks.
func (c *Connection) sendBlocking(ctx context.Context, frame []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ErrConnection("SEND_CANCELLED", "send cancelled", ctx.Err())
		default:
		}

		ok, err := c.transport.TrySend(frame)
		if err != nil {
			return c.poison(err)
		}
		if ok {
			break
		}
		if _, err := c.transport.WaitReady(false, c.opts.ReceiveWait); err != nil {
			return c.poison(err)
		}
	}

	for {
		done, err := c.transport.Flush()
		if err != nil {
			return c.poison(err)
		}
		if done {
			return nil
		}
		if _, err := c.transport.WaitReady(false, c.opts.ReceiveWait); err != nil {
			return c.poison(err)
		}
	}
}

// traceID creates a short identifier for correlating log lines.
func traceID() string {
	return uuid.New().String()
}
