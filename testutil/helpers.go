// Package testutil provides helpers for pipeline client tests: scripted
// in-memory connections and an env-gated live server connection.
package testutil

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kvisten/pgpipe/client"
	"github.com/kvisten/pgpipe/transport/mock"
)

var testTableCounter uint64

// NewTestConnection creates a connection to a live server for integration
// tests. It reads the connection string from the PGPIPE_TEST_CONN
// environment variable and skips the test when unset.
//
// Example:
//
//	export PGPIPE_TEST_CONN="postgres://postgres@localhost:5432/postgres"
//	conn, cleanup := testutil.NewTestConnection(t)
//	defer cleanup()
func NewTestConnection(t *testing.T) (*client.Connection, func()) {
	t.Helper()

	connStr := os.Getenv("PGPIPE_TEST_CONN")
	if connStr == "" {
		t.Skip("PGPIPE_TEST_CONN not set, skipping integration test")
		return nil, func() {}
	}

	opts := client.DefaultOptions()
	opts.DebugMode = testing.Verbose()
	opts.ReceiveWait = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := client.Connect(ctx, connStr, &opts)
	if err != nil {
		t.Fatalf("failed to connect to test server: %v", err)
	}

	cleanup := func() {
		if err := conn.Close(); err != nil {
			t.Logf("warning: failed to close connection: %v", err)
		}
	}

	return conn, cleanup
}

// NewScriptedConnection creates a connection backed by an in-memory
// transport preloaded with a reply script. The returned mock records every
// dispatched frame for inspection.
func NewScriptedConnection(t *testing.T, script *Script) (*client.Connection, *mock.Transport) {
	t.Helper()

	tr := mock.New()
	if script != nil {
		tr.QueueInbound(script.Bytes())
	}

	opts := client.DefaultOptions()
	opts.DebugMode = testing.Verbose()
	if !testing.Verbose() {
		opts.Logger = client.NewNopLogger()
	}

	return client.NewConnection(tr, &opts), tr
}

// TableName generates a unique table name for integration tests.
// Format: <prefix>_tbl_<timestamp>_<counter>
func TableName(prefix string) string {
	if prefix == "" {
		prefix = "test"
	}
	n := atomic.AddUint64(&testTableCounter, 1)
	return fmt.Sprintf("%s_tbl_%d_%d", prefix, time.Now().Unix(), n)
}
