package client

// PipelineEntry represents one dispatched request awaiting its results.
// Entries live in the order they were dispatched and are drained strictly
// front to back.
type PipelineEntry struct {
	seq       uint64
	kind      EntryKind
	drained   bool
	delivered int
	consumed  int
	singleRow bool
}

// Seq returns the entry's dispatch sequence position.
func (e *PipelineEntry) Seq() uint64 {
	return e.seq
}

// Kind returns the entry's expected-reply classification.
func (e *PipelineEntry) Kind() EntryKind {
	return e.kind
}

// DispatchQuery appends a query entry to the pipeline queue and forwards
// its wire form to the transport. It returns (false, nil) when the
// transport reports backpressure; nothing is enqueued and the caller
// retries once the socket is writable. Parameter values are raw wire
// bytes; nil means NULL.
func (c *Connection) DispatchQuery(sql string, params ...[]byte) (bool, error) {
	return c.dispatch(EntryQuery, c.codec.EncodeQuery(sql, params), sql)
}

/// DispatchCommand appends a command entry: a statement whose natural
// outcome carries no tuple set. The wire form is identical to a query;
// only the expected-reply tag differs.
func (c *Connection) DispatchCommand(sql string, params ...[]byte) (bool, error) {
	return c.dispatch(EntryCommand, c.codec.EncodeQuery(sql, params), sql)
}

// DispatchPrepare appends a statement-preparation entry.
func (c *Connection) DispatchPrepare(name, sql string, paramOIDs []uint32) (bool, error) {
	return c.dispatch(EntryPrepare, c.codec.EncodePrepare(name, sql, paramOIDs), sql)
}

// DispatchPrepared appends a query entry executing a previously prepared
// statement.
func (c *Connection) DispatchPrepared(name string, params ...[]byte) (bool, error) {
	return c.dispatch(EntryQuery, c.codec.EncodePrepared(name, params), name)
}

// DispatchSync appends a sync marker closing the current pipeline group.
// The marker resolves to exactly one PipelineEnd envelope when drained.
func (c *Connection) DispatchSync() (bool, error) {
	return c.dispatch(EntrySync, c.codec.EncodeSync(), "")
}

// dispatch is the shared append-and-forward path for all entry kinds.
func (c *Connection) dispatch(kind EntryKind, frame []byte, desc string) (bool, error) {
	if err := c.fatal(); err != nil {
		return false, err
	}
	if c.state == PipelineOff {
		return false, ErrSequence("Dispatch", "pipeline mode is not active")
	}

	ok, err := c.transport.TrySend(frame)
	if err != nil {
		return false, c.poison(err)
	}
	if !ok {
		// Flow control, not failure: the entry was not enqueued.
		c.logger.Debug("dispatch deferred by send backpressure",
			String("kind", kind.String()))
		return false, nil
	}

	entry := &PipelineEntry{seq: c.nextSeq, kind: kind}
	c.nextSeq++
	c.queue = append(c.queue, entry)

	if c.opts.DebugMode {
		c.logger.Debug("dispatched pipeline entry",
			String("pipeline_id", c.groupID),
			String("kind", kind.String()),
			Int64("seq", int64(entry.seq)),
			String("statement", desc))
	}
	return true, nil
}

// Advance moves the queue head to the next dispatched entry, making its
// envelopes available from NextEnvelope. It returns (false, nil) when no
// entry remains to advance to, and fails with a SequenceError while the
// current head still has undrained results.
func (c *Connection) Advance() (bool, error) {
	if err := c.fatal(); err != nil {
		return false, err
	}
	if c.state == PipelineOff {
		return false, ErrSequence("Advance", "pipeline mode is not active")
	}

	if c.headActive {
		if !c.queue[c.head].drained {
			return false, ErrSequence("Advance", "results still pending for current queue head")
		}
		if c.head+1 >= len(c.queue) {
			// Fully drained: recycle the append-only queue.
			c.queue = c.queue[:0]
			c.head = 0
			c.headActive = false
			return false, nil
		}
		c.head++
	} else {
		if len(c.queue) == 0 {
			return false, nil
		}
		c.head = 0
		c.headActive = true
	}

	c.resetEntryScratch()
	return true, nil
}

// resetEntryScratch clears the per-entry accumulation state.
func (c *Connection) resetEntryScratch() {
	c.inTuples = false
	c.columns = nil
	c.rows = nil
}
