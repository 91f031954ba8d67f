package client

import (
	"github.com/google/uuid"
)

// EnterPipeline switches the Connection into pipeline mode. Entering when
// already in pipeline mode is a no-op. It fails with a SequenceError while
// a normal-mode request is outstanding.
func (c *Connection) EnterPipeline() error {
	if err := c.fatal(); err != nil {
		return err
	}
	if c.singleShot {
		return ErrSequence("EnterPipeline", "a normal-mode request is outstanding")
	}
	if c.state != PipelineOff {
		return nil
	}

	c.state = PipelineActive
	c.groupID = uuid.New().String()
	c.logger.Debug("entered pipeline mode", String("pipeline_id", c.groupID))
	return nil
}

// ExitPipeline returns the Connection to normal mode. It fails with a
// SequenceError while any dispatched entry is undrained. Exiting while
// aborted but fully drained is legal, and exiting when already off is a
// no-op.
func (c *Connection) ExitPipeline() error {
	if err := c.fatal(); err != nil {
		return err
	}
	if c.state == PipelineOff {
		return nil
	}

	if pending := c.pendingEntries(); pending > 0 {
		return &SequenceError{
			Code:    "SEQUENCE_VIOLATION",
			Type:    "SEQUENCE_ERROR",
			Message: "ExitPipeline: pipeline queue is not fully drained",
			Details: map[string]interface{}{
				"operation": "ExitPipeline",
				"pending":   pending,
			},
			StackTrace: captureStackTrace(),
		}
	}

	c.state = PipelineOff
	c.queue = c.queue[:0]
	c.head = 0
	c.headActive = false
	c.resetEntryScratch()
	c.logger.Debug("exited pipeline mode", String("pipeline_id", c.groupID))
	c.groupID = ""
	return nil
}

// PipelineStatus returns the current pipeline state. It never blocks and
// never touches the transport.
func (c *Connection) PipelineStatus() PipelineState {
	return c.state
}

// pendingEntries counts dispatched entries that are not yet fully drained.
func (c *Connection) pendingEntries() int {
	if !c.headActive {
		return len(c.queue)
	}
	n := len(c.queue) - c.head - 1
	if !c.queue[c.head].drained {
		n++
	}
	return n
}
