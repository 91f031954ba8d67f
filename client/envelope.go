package client

// EnvelopeKind tags the variant of a ResultEnvelope.
type EnvelopeKind int

const (
	// EnvelopeCommandComplete reports a statement that finished without a
	// tuple set, or the row-count summary closing a single-row stream.
	EnvelopeCommandComplete EnvelopeKind = iota
	// EnvelopeTupleSet carries a complete buffered result set.
	EnvelopeTupleSet
	// EnvelopeSingleRow carries one row of a single-row-mode result.
	EnvelopeSingleRow
	// EnvelopeError reports a server-rejected request.
	EnvelopeError
	// EnvelopePipelineAborted marks an entry skipped inside an aborted group.
	EnvelopePipelineAborted
	// EnvelopePipelineEnd is the terminal envelope of a sync marker.
	EnvelopePipelineEnd
)

// String returns the string representation of the envelope kind.
func (k EnvelopeKind) String() string {
	switch k {
	case EnvelopeCommandComplete:
		return "CommandComplete"
	case EnvelopeTupleSet:
		return "TupleSet"
	case EnvelopeSingleRow:
		return "SingleRow"
	case EnvelopeError:
		return "ErrorOccurred"
	case EnvelopePipelineAborted:
		return "PipelineAborted"
	case EnvelopePipelineEnd:
		return "PipelineEnd"
	default:
		return "Unknown"
	}
}

// Envelope is one demultiplexed result delivered to the caller. Envelopes
// for a given queue entry arrive strictly before any envelope of the next
// entry.
type Envelope struct {
	// Kind selects which of the remaining fields are meaningful.
	Kind EnvelopeKind

	// Seq is the sequence position of the queue entry this envelope
	// belongs to.
	Seq uint64

	// Tag is the server command tag (CommandComplete, TupleSet).
	Tag string

	// Columns holds result column names (TupleSet, SingleRow).
	Columns []string

	// Rows holds the buffered result rows (TupleSet). Column values are
	// raw wire bytes; nil means NULL.
	Rows [][][]byte

	// Row holds one streamed result row (SingleRow).
	Row [][]byte

	// RowCount is len(Rows) for TupleSet, and the total number of streamed
	// rows for the summary envelope closing a single-row stream.
	RowCount int

	// Err carries the server error (ErrorOccurred).
	Err *QueryError
}
