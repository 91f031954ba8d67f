// Package pgpipe is a blocking convenience layer over the nonblocking
// pipeline client. Callers that do not want to drive transport readiness
// themselves build a Batch and hand it to Run, which performs one
// pipelined round trip and hands back the envelopes in queue order.
package pgpipe

import (
	"context"
	"time"

	"github.com/kvisten/pgpipe/client"
)

// Re-exported so simple callers only import this package.
type (
	Conn     = client.Connection
	Envelope = client.Envelope
	Options  = client.Options
)

// Connect opens a connection to the server named by a postgres:// URL.
func Connect(ctx context.Context, connStr string, opts *client.Options) (*client.Connection, error) {
	return client.Connect(ctx, connStr, opts)
}

type stepKind int

const (
	stepQuery stepKind = iota
	stepCommand
	stepPrepare
	stepPrepared
)

type step struct {
	kind      stepKind
	name      string
	sql       string
	params    [][]byte
	paramOIDs []uint32
	singleRow bool
}

// Batch collects statements for one pipelined round trip. The zero value
// is ready to use.
type Batch struct {
	steps []step
}

// Queue appends a row-returning statement.
func (b *Batch) Queue(sql string, params ...[]byte) *Batch {
	b.steps = append(b.steps, step{kind: stepQuery, sql: sql, params: params})
	return b
}

// QueueStreamed appends a row-returning statement whose rows are delivered
// one envelope at a time instead of buffered.
func (b *Batch) QueueStreamed(sql string, params ...[]byte) *Batch {
	b.steps = append(b.steps, step{kind: stepQuery, sql: sql, params: params, singleRow: true})
	return b
}

// QueueCommand appends a statement expected to complete without rows.
func (b *Batch) QueueCommand(sql string, params ...[]byte) *Batch {
	b.steps = append(b.steps, step{kind: stepCommand, sql: sql, params: params})
	return b
}

// Prepare appends a named statement preparation.
func (b *Batch) Prepare(name, sql string, paramOIDs ...uint32) *Batch {
	b.steps = append(b.steps, step{kind: stepPrepare, name: name, sql: sql, paramOIDs: paramOIDs})
	return b
}

// QueuePrepared appends an execution of a previously prepared statement.
func (b *Batch) QueuePrepared(name string, params ...[]byte) *Batch {
	b.steps = append(b.steps, step{kind: stepPrepared, name: name, params: params})
	return b
}

// Len returns the number of queued statements.
func (b *Batch) Len() int {
	return len(b.steps)
}

// Run dispatches the batch, appends the sync marker, and drains every
// envelope. Pipeline mode is entered and exited around the round trip; if
// the connection is already pipelining, Run queues onto the open group and
// leaves the mode engaged. Sync-boundary envelopes are consumed internally;
// everything else is returned in queue order. Server-side rejections come
// back as ErrorOccurred envelopes, not as the error return.
func Run(ctx context.Context, conn *client.Connection, b *Batch) ([]*client.Envelope, error) {
	wasOff := conn.PipelineStatus() == client.PipelineOff
	if wasOff {
		if err := conn.EnterPipeline(); err != nil {
			return nil, err
		}
	}

	for i := range b.steps {
		if err := dispatchStep(ctx, conn, &b.steps[i]); err != nil {
			return nil, err
		}
	}
	if err := untilSent(ctx, conn, func() (bool, error) { return conn.DispatchSync() }); err != nil {
		return nil, err
	}
	for {
		done, err := conn.Flush()
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		if err := backoff(ctx); err != nil {
			return nil, err
		}
	}

	var out []*client.Envelope
	idx := 0
	for {
		ok, err := conn.Advance()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if idx < len(b.steps) && b.steps[idx].singleRow {
			if err := conn.SetSingleRowMode(); err != nil {
				return nil, err
			}
		}
		for {
			env, err := conn.NextEnvelope()
			if err != nil {
				return nil, err
			}
			if env == nil {
				break
			}
			if env.Kind != client.EnvelopePipelineEnd {
				out = append(out, env)
			}
		}
		idx++
	}

	if wasOff {
		if err := conn.ExitPipeline(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func dispatchStep(ctx context.Context, conn *client.Connection, s *step) error {
	return untilSent(ctx, conn, func() (bool, error) {
		switch s.kind {
		case stepCommand:
			return conn.DispatchCommand(s.sql, s.params...)
		case stepPrepare:
			return conn.DispatchPrepare(s.name, s.sql, s.paramOIDs)
		case stepPrepared:
			return conn.DispatchPrepared(s.name, s.params...)
		default:
			return conn.DispatchQuery(s.sql, s.params...)
		}
	})
}

// untilSent retries a dispatch that reported send-buffer backpressure,
// flushing between attempts.
func untilSent(ctx context.Context, conn *client.Connection, send func() (bool, error)) error {
	for {
		ok, err := send()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if _, err := conn.Flush(); err != nil {
			return err
		}
		if err := backoff(ctx); err != nil {
			return err
		}
	}
}

func backoff(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Millisecond):
		return nil
	}
}
