package client

import (
	"testing"
)

func TestPipelineStateString(t *testing.T) {
	tests := []struct {
		state    PipelineState
		expected string
	}{
		{PipelineOff, "OFF"},
		{PipelineActive, "ACTIVE"},
		{PipelineAborted, "ABORTED"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestEntryKindString(t *testing.T) {
	tests := []struct {
		kind     EntryKind
		expected string
	}{
		{EntryCommand, "command"},
		{EntryQuery, "query"},
		{EntryPrepare, "prepare"},
		{EntrySync, "sync"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestDrainTransitions(t *testing.T) {
	tests := []struct {
		name     string
		from     PipelineState
		event    drainEvent
		expected PipelineState
	}{
		{"active entry success stays active", PipelineActive, eventEntrySucceeded, PipelineActive},
		{"active entry failure aborts", PipelineActive, eventEntryFailed, PipelineAborted},
		{"active sync stays active", PipelineActive, eventSyncDrained, PipelineActive},
		{"aborted skips stay aborted", PipelineAborted, eventEntrySkipped, PipelineAborted},
		{"aborted sync recovers", PipelineAborted, eventSyncDrained, PipelineActive},
		{"aborted failure stays aborted", PipelineAborted, eventEntryFailed, PipelineAborted},
		// Drain events never engage pipeline mode by themselves.
		{"off entry success stays off", PipelineOff, eventEntrySucceeded, PipelineOff},
		{"off sync stays off", PipelineOff, eventSyncDrained, PipelineOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextPipelineState(tt.from, tt.event); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}
