package pgpipe_test

import (
	"context"
	"testing"

	"github.com/kvisten/pgpipe"
	"github.com/kvisten/pgpipe/client"
	"github.com/kvisten/pgpipe/testutil"
)

func TestBatchBuilder(t *testing.T) {
	batch := new(pgpipe.Batch).
		Prepare("s", "SELECT $1").
		QueuePrepared("s", []byte("1")).
		Queue("SELECT 2").
		QueueCommand("INSERT INTO t VALUES (3)")

	if batch.Len() != 4 {
		t.Errorf("expected 4 steps, got %d", batch.Len())
	}
}

func TestRunScripted(t *testing.T) {
	script := testutil.NewScript().
		ParseComplete().BindComplete().
		RowDescription("a").DataRow("1").
		CommandComplete("SELECT 1").
		ParseComplete().BindComplete().
		RowDescription("b").DataRow("2").
		CommandComplete("SELECT 1").
		ReadyForQuery('I')
	conn, tr := testutil.NewScriptedConnection(t, script)

	batch := new(pgpipe.Batch).
		Queue("SELECT a FROM t").
		Queue("SELECT b FROM t")

	envs, err := pgpipe.Run(context.Background(), conn, batch)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(envs) != 2 {
		t.Fatalf("expected 2 envelopes, got %d", len(envs))
	}
	for i, env := range envs {
		if env.Kind != client.EnvelopeTupleSet {
			t.Errorf("envelope %d: expected TupleSet, got %s", i, env.Kind)
		}
	}
	if string(envs[1].Rows[0][0]) != "2" {
		t.Errorf("unexpected value: %q", envs[1].Rows[0][0])
	}

	if got := conn.PipelineStatus(); got != client.PipelineOff {
		t.Errorf("expected pipeline OFF after Run, got %s", got)
	}

	// Two query dispatches plus the closing sync marker.
	if frames := tr.SentFrames(); len(frames) != 3 {
		t.Errorf("expected 3 dispatched frames, got %d", len(frames))
	}
}

func TestRunLeavesOpenPipelineEngaged(t *testing.T) {
	script := testutil.NewScript().
		ParseComplete().BindComplete().NoData().
		CommandComplete("INSERT 0 1").
		ReadyForQuery('I')
	conn, _ := testutil.NewScriptedConnection(t, script)

	if err := conn.EnterPipeline(); err != nil {
		t.Fatalf("EnterPipeline failed: %v", err)
	}

	batch := new(pgpipe.Batch).QueueCommand("INSERT INTO t VALUES (1)")
	if _, err := pgpipe.Run(context.Background(), conn, batch); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := conn.PipelineStatus(); got != client.PipelineActive {
		t.Errorf("expected pipeline to stay ACTIVE, got %s", got)
	}
}

func TestRunRetriesBackpressure(t *testing.T) {
	script := testutil.NewScript().
		ParseComplete().BindComplete().NoData().
		CommandComplete("INSERT 0 1").
		ReadyForQuery('I')
	conn, tr := testutil.NewScriptedConnection(t, script)
	tr.WithDeferredSends(1)

	batch := new(pgpipe.Batch).QueueCommand("INSERT INTO t VALUES (1)")
	envs, err := pgpipe.Run(context.Background(), conn, batch)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(envs) != 1 || envs[0].Kind != client.EnvelopeCommandComplete {
		t.Fatalf("unexpected envelopes: %+v", envs)
	}
	if tr.Metrics().SendDeferrals != 1 {
		t.Errorf("expected 1 recorded deferral, got %d", tr.Metrics().SendDeferrals)
	}
}
