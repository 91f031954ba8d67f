package client

import (
	"fmt"
	"time"

	"github.com/kvisten/pgpipe/protocol"
)

// NextEnvelope returns the next result envelope for the current queue
// head, or nil when none is due: before the first Advance of a group,
// after the head entry is exhausted, or when nothing was dispatched. The
// nil cases are deliberately indistinguishable; callers disambiguate by
// retrying Advance.
func (c *Connection) NextEnvelope() (*Envelope, error) {
	if err := c.fatal(); err != nil {
		return nil, err
	}
	if !c.headActive {
		return nil, nil
	}

	entry := c.queue[c.head]
	if entry.drained {
		return nil, nil
	}

	// Skipped entries never touch the transport: once the group is
	// aborted the server has discarded them, so there is nothing to read.
	if c.state == PipelineAborted && entry.kind != EntrySync {
		c.state = nextPipelineState(c.state, eventEntrySkipped)
		c.finishEntry(entry)
		entry.consumed++
		return &Envelope{Kind: EnvelopePipelineAborted, Seq: entry.seq}, nil
	}

	for {
		reply, err := c.nextReply()
		if err != nil {
			return nil, err
		}

		env, done, err := c.applyReply(entry, reply)
		if err != nil {
			return nil, err
		}
		if done {
			c.finishEntry(entry)
		}
		if env != nil {
			env.Seq = entry.seq
			entry.consumed++
			return env, nil
		}
	}
}

// Busy reports whether NextEnvelope would have to wait for more bytes from
// the server. It drains whatever the socket already holds but never blocks.
func (c *Connection) Busy() bool {
	if c.connErr != nil || c.closed || !c.headActive {
		return false
	}
	entry := c.queue[c.head]
	if entry.drained {
		return false
	}
	if c.state == PipelineAborted && entry.kind != EntrySync {
		return false
	}

	for !c.decoder.Pending() {
		data, err := c.transport.TryReceive()
		if err != nil || len(data) == 0 {
			return true
		}
		c.decoder.Feed(data)
	}
	return false
}

// SetSingleRowMode switches the current head entry to streamed row
// delivery. It is only legal while a head entry is current and before any
// of its results have been consumed; the flag does not persist to later
// entries.
func (c *Connection) SetSingleRowMode() error {
	if err := c.fatal(); err != nil {
		return err
	}
	if !c.headActive {
		return ErrSequence("SetSingleRowMode", "no current queue entry")
	}

	entry := c.queue[c.head]
	if entry.drained || entry.consumed > 0 || c.inTuples {
		return ErrSequence("SetSingleRowMode", "results already partially consumed for current entry")
	}

	entry.singleRow = true
	return nil
}

// nextReply returns the next decoded server reply, feeding the decoder
// from the transport and waiting on readability when the buffer runs dry.
func (c *Connection) nextReply() (*protocol.Reply, error) {
	for {
		reply, err := c.decoder.Next()
		if err != nil {
			return nil, c.poison(err)
		}
		if reply != nil {
			return reply, nil
		}

		data, err := c.transport.TryReceive()
		if err != nil {
			return nil, c.poison(err)
		}
		if len(data) > 0 {
			c.decoder.Feed(data)
			continue
		}

		ready, err := c.transport.WaitReady(true, c.opts.ReceiveWait)
		if err != nil {
			return nil, c.poison(err)
		}
		if !ready {
			return nil, ErrConnection("RECEIVE_TIMEOUT",
				fmt.Sprintf("no server reply within %s", c.opts.ReceiveWait), nil)
		}
	}
}

// applyReply folds one server reply into the current head entry. It
// returns the envelope to deliver, if any, and whether the entry is now
// fully drained. Replies that only accumulate state (BindComplete, a
// buffered DataRow) produce no envelope.
func (c *Connection) applyReply(entry *PipelineEntry, reply *protocol.Reply) (*Envelope, bool, error) {
	if entry.kind == EntrySync {
		if reply.Type != protocol.ReplyReady {
			return nil, false, c.poison(&ProtocolError{
				Code:    "UNEXPECTED_REPLY",
				Type:    "PROTOCOL_ERROR",
				Message: fmt.Sprintf("sync marker received %s reply", reply.Type),
				Details: map[string]interface{}{"seq": entry.seq},
			})
		}
		c.state = nextPipelineState(c.state, eventSyncDrained)
		return &Envelope{Kind: EnvelopePipelineEnd}, true, nil
	}

	switch reply.Type {
	case protocol.ReplyParseComplete, protocol.ReplyBindComplete,
		protocol.ReplyCloseComplete, protocol.ReplyParameterDescription:
		// Statement plumbing; nothing to deliver yet. A prepare entry
		// terminates on the NoData/RowDescription that follows.
		return nil, false, nil

	case protocol.ReplyNoData:
		if entry.kind == EntryPrepare {
			c.state = nextPipelineState(c.state, eventEntrySucceeded)
			return &Envelope{Kind: EnvelopeCommandComplete}, true, nil
		}
		return nil, false, nil

	case protocol.ReplyRowDescription:
		if entry.kind == EntryPrepare {
			c.state = nextPipelineState(c.state, eventEntrySucceeded)
			return &Envelope{Kind: EnvelopeCommandComplete, Columns: reply.Columns}, true, nil
		}
		c.inTuples = true
		c.columns = reply.Columns
		c.rows = nil
		return nil, false, nil

	case protocol.ReplyDataRow:
		if !c.inTuples {
			return nil, false, c.poison(&ProtocolError{
				Code:    "UNEXPECTED_REPLY",
				Type:    "PROTOCOL_ERROR",
				Message: "data row received outside a tuple stream",
				Details: map[string]interface{}{"seq": entry.seq},
			})
		}
		if entry.singleRow {
			entry.delivered++
			return &Envelope{
				Kind:    EnvelopeSingleRow,
				Columns: c.columns,
				Row:     reply.Row,
			}, false, nil
		}
		c.rows = append(c.rows, reply.Row)
		return nil, false, nil

	case protocol.ReplyCommandComplete:
		c.state = nextPipelineState(c.state, eventEntrySucceeded)
		if c.inTuples && entry.singleRow {
			return &Envelope{
				Kind:     EnvelopeCommandComplete,
				Tag:      reply.Tag,
				RowCount: entry.delivered,
			}, true, nil
		}
		if c.inTuples {
			return &Envelope{
				Kind:     EnvelopeTupleSet,
				Tag:      reply.Tag,
				Columns:  c.columns,
				Rows:     c.rows,
				RowCount: len(c.rows),
			}, true, nil
		}
		return &Envelope{Kind: EnvelopeCommandComplete, Tag: reply.Tag}, true, nil

	case protocol.ReplyEmptyQuery:
		c.state = nextPipelineState(c.state, eventEntrySucceeded)
		return &Envelope{Kind: EnvelopeCommandComplete}, true, nil

	case protocol.ReplyError:
		c.state = nextPipelineState(c.state, eventEntryFailed)
		c.logger.Debug("pipeline group aborted by server error",
			String("pipeline_id", c.groupID),
			Int64("seq", int64(entry.seq)),
			String("sqlstate", reply.Err.Code))
		return &Envelope{Kind: EnvelopeError, Err: queryErrorFrom(reply.Err)}, true, nil

	case protocol.ReplyReady:
		return nil, false, c.poison(&ProtocolError{
			Code:    "UNEXPECTED_REPLY",
			Type:    "PROTOCOL_ERROR",
			Message: "sync reply received for a non-sync entry",
			Details: map[string]interface{}{"seq": entry.seq},
		})

	default:
		return nil, false, c.poison(&ProtocolError{
			Code:    "UNEXPECTED_REPLY",
			Type:    "PROTOCOL_ERROR",
			Message: fmt.Sprintf("unhandled %s reply", reply.Type),
			Details: map[string]interface{}{"seq": entry.seq},
		})
	}
}

// finishEntry marks the head entry drained and clears accumulation state.
func (c *Connection) finishEntry(entry *PipelineEntry) {
	entry.drained = true
	c.resetEntryScratch()
}

// queryErrorFrom converts a wire-level server error into the client error
// type carried by ErrorOccurred envelopes.
func queryErrorFrom(err *protocol.ServerError) *QueryError {
	return &QueryError{
		Code:      "SERVER_ERROR",
		Type:      "QUERY_ERROR",
		Message:   err.Message,
		SQLState:  err.Code,
		Severity:  err.Severity,
		Detail:    err.Detail,
		Timestamp: time.Now(),
	}
}
