package client

import (
	"context"

	"github.com/kvisten/pgpipe/protocol"
)

// Exec runs one statement over the simple query protocol and blocks until
// the server's ready marker. It is the normal-mode counterpart to the
// Dispatch methods and is refused while pipeline mode is engaged. When the
// statement yields rows the envelope is a TupleSet; a server rejection is
// returned as a *QueryError without poisoning the connection.
func (c *Connection) Exec(ctx context.Context, sql string) (*Envelope, error) {
	if err := c.fatal(); err != nil {
		return nil, err
	}
	if c.state != PipelineOff {
		return nil, ErrSequence("Exec", "not permitted while pipeline mode is engaged")
	}

	c.singleShot = true
	defer func() { c.singleShot = false }()

	if err := c.sendBlocking(ctx, c.codec.EncodeSimpleQuery(sql)); err != nil {
		return nil, err
	}

	var (
		env     *Envelope
		qerr    *QueryError
		inTuple bool
		columns []string
		rows    [][][]byte
	)

	// A simple query string may carry several statements; keep the last
	// result, which is what the callers here ever look at.
	for {
		reply, err := c.nextReply()
		if err != nil {
			return nil, err
		}

		switch reply.Type {
		case protocol.ReplyReady:
			if qerr != nil {
				return nil, qerr
			}
			if env == nil {
				env = &Envelope{Kind: EnvelopeCommandComplete}
			}
			return env, nil

		case protocol.ReplyRowDescription:
			inTuple = true
			columns = reply.Columns
			rows = nil

		case protocol.ReplyDataRow:
			rows = append(rows, reply.Row)

		case protocol.ReplyCommandComplete:
			if inTuple {
				env = &Envelope{
					Kind:     EnvelopeTupleSet,
					Tag:      reply.Tag,
					Columns:  columns,
					Rows:     rows,
					RowCount: len(rows),
				}
			} else {
				env = &Envelope{Kind: EnvelopeCommandComplete, Tag: reply.Tag}
			}
			inTuple = false

		case protocol.ReplyEmptyQuery:
			env = &Envelope{Kind: EnvelopeCommandComplete}

		case protocol.ReplyError:
			qerr = queryErrorFrom(reply.Err)

		default:
			// Notices and parameter churn were already skipped by the
			// decoder; anything else here is tolerated and dropped.
		}
	}
}
