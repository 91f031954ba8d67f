package client

// PipelineState represents the connection's pipeline mode.
type PipelineState int

const (
	// PipelineOff indicates normal one-request-at-a-time operation.
	PipelineOff PipelineState = iota
	// PipelineActive indicates pipeline mode with results flowing normally.
	PipelineActive
	// PipelineAborted indicates pipeline mode after a failed entry; the
	// remainder of the current group is skipped.
	PipelineAborted
)

// String returns the string representation of the pipeline state.
func (s PipelineState) String() string {
	switch s {
	case PipelineOff:
		return "OFF"
	case PipelineActive:
		return "ACTIVE"
	case PipelineAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// EntryKind classifies a pipeline queue entry by its expected replies.
type EntryKind int

const (
	// EntryCommand is a statement expected to complete without rows.
	EntryCommand EntryKind = iota
	// EntryQuery is a statement that may produce a tuple set.
	EntryQuery
	// EntryPrepare is a statement preparation.
	EntryPrepare
	// EntrySync is a synchronization marker closing a pipeline group.
	EntrySync
)

// String returns the string representation of the entry kind.
func (k EntryKind) String() string {
	switch k {
	case EntryCommand:
		return "command"
	case EntryQuery:
		return "query"
	case EntryPrepare:
		return "prepare"
	case EntrySync:
		return "sync"
	default:
		return "unknown"
	}
}

// drainEvent is what happened while draining the current queue head.
type drainEvent int

const (
	// eventEntrySucceeded: a non-sync entry produced its natural outcome.
	eventEntrySucceeded drainEvent = iota
	// eventEntryFailed: a non-sync entry drew a server error.
	eventEntryFailed
	// eventEntrySkipped: a non-sync entry was drained while aborted.
	eventEntrySkipped
	// eventSyncDrained: a sync marker's terminal reply was consumed.
	eventSyncDrained
)

// nextPipelineState is the abort propagation transition function. The
// state machine is deliberately exhaustive: every (state, event) pair is
// spelled out so a new event cannot slip through a default arm.
func nextPipelineState(s PipelineState, ev drainEvent) PipelineState {
	switch s {
	case PipelineActive:
		switch ev {
		case eventEntrySucceeded:
			return PipelineActive
		case eventEntryFailed:
			return PipelineAborted
		case eventEntrySkipped:
			// Entries are only skipped while aborted; treat as a no-op.
			return PipelineActive
		case eventSyncDrained:
			return PipelineActive
		}
	case PipelineAborted:
		switch ev {
		case eventEntrySucceeded, eventEntryFailed, eventEntrySkipped:
			return PipelineAborted
		case eventSyncDrained:
			// Sync always clears the abort; the next group starts clean.
			return PipelineActive
		}
	case PipelineOff:
		// No drain events are generated outside pipeline mode.
		return PipelineOff
	}
	return s
}
