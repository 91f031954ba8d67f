package client_test

import (
	"errors"
	"testing"

	"github.com/kvisten/pgpipe/client"
	"github.com/kvisten/pgpipe/testutil"
)

// drainHead pulls every envelope for the current queue head.
func drainHead(t *testing.T, conn *client.Connection) []*client.Envelope {
	t.Helper()

	var out []*client.Envelope
	for {
		env, err := conn.NextEnvelope()
		if err != nil {
			t.Fatalf("NextEnvelope failed: %v", err)
		}
		if env == nil {
			return out
		}
		out = append(out, env)
	}
}

// advance moves to the next entry, failing the test on misuse.
func advance(t *testing.T, conn *client.Connection) bool {
	t.Helper()

	ok, err := conn.Advance()
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	return ok
}

func TestSimpleGroup(t *testing.T) {
	script := testutil.NewScript().
		ParseComplete().BindComplete().
		RowDescription("id", "name").
		DataRow("1", "alpha").
		DataRow("2", "beta").
		CommandComplete("SELECT 2").
		ReadyForQuery('I')
	conn, _ := testutil.NewScriptedConnection(t, script)

	if err := conn.EnterPipeline(); err != nil {
		t.Fatalf("EnterPipeline failed: %v", err)
	}
	if _, err := conn.DispatchQuery("SELECT id, name FROM t"); err != nil {
		t.Fatalf("DispatchQuery failed: %v", err)
	}
	if _, err := conn.DispatchSync(); err != nil {
		t.Fatalf("DispatchSync failed: %v", err)
	}

	if !advance(t, conn) {
		t.Fatal("expected an entry to advance to")
	}
	envs := drainHead(t, conn)
	if len(envs) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(envs))
	}
	env := envs[0]
	if env.Kind != client.EnvelopeTupleSet {
		t.Fatalf("expected TupleSet, got %s", env.Kind)
	}
	if env.Tag != "SELECT 2" || env.RowCount != 2 {
		t.Errorf("unexpected tag/count: %q %d", env.Tag, env.RowCount)
	}
	if len(env.Columns) != 2 || env.Columns[1] != "name" {
		t.Errorf("unexpected columns: %v", env.Columns)
	}
	if string(env.Rows[1][1]) != "beta" {
		t.Errorf("unexpected row value: %q", env.Rows[1][1])
	}

	if !advance(t, conn) {
		t.Fatal("expected sync entry to advance to")
	}
	envs = drainHead(t, conn)
	if len(envs) != 1 || envs[0].Kind != client.EnvelopePipelineEnd {
		t.Fatalf("expected group boundary, got %+v", envs)
	}

	if advance(t, conn) {
		t.Error("expected queue to be exhausted")
	}
	if err := conn.ExitPipeline(); err != nil {
		t.Fatalf("ExitPipeline failed: %v", err)
	}
}

func TestCommandWithoutRows(t *testing.T) {
	script := testutil.NewScript().
		ParseComplete().BindComplete().NoData().
		CommandComplete("INSERT 0 1").
		ReadyForQuery('I')
	conn, _ := testutil.NewScriptedConnection(t, script)

	if err := conn.EnterPipeline(); err != nil {
		t.Fatalf("EnterPipeline failed: %v", err)
	}
	if _, err := conn.DispatchCommand("INSERT INTO t VALUES (1)"); err != nil {
		t.Fatalf("DispatchCommand failed: %v", err)
	}
	if _, err := conn.DispatchSync(); err != nil {
		t.Fatalf("DispatchSync failed: %v", err)
	}

	advance(t, conn)
	envs := drainHead(t, conn)
	if len(envs) != 1 || envs[0].Kind != client.EnvelopeCommandComplete {
		t.Fatalf("expected CommandComplete, got %+v", envs)
	}
	if envs[0].Tag != "INSERT 0 1" {
		t.Errorf("unexpected tag: %q", envs[0].Tag)
	}
}

func TestPrepareEntry(t *testing.T) {
	script := testutil.NewScript().
		ParseComplete().
		ParameterDescription(23).
		NoData().
		ReadyForQuery('I')
	conn, _ := testutil.NewScriptedConnection(t, script)

	if err := conn.EnterPipeline(); err != nil {
		t.Fatalf("EnterPipeline failed: %v", err)
	}
	if _, err := conn.DispatchPrepare("ins", "INSERT INTO t VALUES ($1)", []uint32{23}); err != nil {
		t.Fatalf("DispatchPrepare failed: %v", err)
	}
	if _, err := conn.DispatchSync(); err != nil {
		t.Fatalf("DispatchSync failed: %v", err)
	}

	advance(t, conn)
	envs := drainHead(t, conn)
	if len(envs) != 1 || envs[0].Kind != client.EnvelopeCommandComplete {
		t.Fatalf("expected CommandComplete for preparation, got %+v", envs)
	}
}

func TestEmptyQueryReply(t *testing.T) {
	script := testutil.NewScript().
		ParseComplete().BindComplete().EmptyQuery().
		ReadyForQuery('I')
	conn, _ := testutil.NewScriptedConnection(t, script)

	if err := conn.EnterPipeline(); err != nil {
		t.Fatalf("EnterPipeline failed: %v", err)
	}
	if _, err := conn.DispatchQuery(""); err != nil {
		t.Fatalf("DispatchQuery failed: %v", err)
	}
	if _, err := conn.DispatchSync(); err != nil {
		t.Fatalf("DispatchSync failed: %v", err)
	}

	advance(t, conn)
	envs := drainHead(t, conn)
	if len(envs) != 1 || envs[0].Kind != client.EnvelopeCommandComplete {
		t.Fatalf("expected CommandComplete for empty query, got %+v", envs)
	}
}

func TestAbortPropagation(t *testing.T) {
	script := testutil.NewScript().
		// Entry 0 succeeds.
		ParseComplete().BindComplete().NoData().CommandComplete("INSERT 0 1").
		// Entry 1 fails; the server discards everything up to the sync.
		Error("42P01", "relation does not exist").
		ReadyForQuery('E')
	conn, _ := testutil.NewScriptedConnection(t, script)

	if err := conn.EnterPipeline(); err != nil {
		t.Fatalf("EnterPipeline failed: %v", err)
	}
	for _, sql := range []string{
		"INSERT INTO t VALUES (1)",
		"INSERT INTO missing VALUES (1)",
		"INSERT INTO t VALUES (2)",
	} {
		if _, err := conn.DispatchCommand(sql); err != nil {
			t.Fatalf("DispatchCommand failed: %v", err)
		}
	}
	if _, err := conn.DispatchSync(); err != nil {
		t.Fatalf("DispatchSync failed: %v", err)
	}

	advance(t, conn)
	envs := drainHead(t, conn)
	if len(envs) != 1 || envs[0].Kind != client.EnvelopeCommandComplete {
		t.Fatalf("entry 0: expected CommandComplete, got %+v", envs)
	}

	advance(t, conn)
	envs = drainHead(t, conn)
	if len(envs) != 1 || envs[0].Kind != client.EnvelopeError {
		t.Fatalf("entry 1: expected ErrorOccurred, got %+v", envs)
	}
	if envs[0].Err == nil || envs[0].Err.SQLState != "42P01" {
		t.Errorf("expected SQLSTATE 42P01, got %+v", envs[0].Err)
	}
	if got := conn.PipelineStatus(); got != client.PipelineAborted {
		t.Errorf("expected status ABORTED after failure, got %s", got)
	}

	advance(t, conn)
	envs = drainHead(t, conn)
	if len(envs) != 1 || envs[0].Kind != client.EnvelopePipelineAborted {
		t.Fatalf("entry 2: expected PipelineAborted, got %+v", envs)
	}

	advance(t, conn)
	envs = drainHead(t, conn)
	if len(envs) != 1 || envs[0].Kind != client.EnvelopePipelineEnd {
		t.Fatalf("sync: expected group boundary, got %+v", envs)
	}
	if got := conn.PipelineStatus(); got != client.PipelineActive {
		t.Errorf("expected status ACTIVE after boundary, got %s", got)
	}
}

func TestEnvelopeSequenceNumbers(t *testing.T) {
	script := testutil.NewScript().
		ParseComplete().BindComplete().NoData().CommandComplete("INSERT 0 1").
		ParseComplete().BindComplete().NoData().CommandComplete("INSERT 0 1").
		ReadyForQuery('I')
	conn, _ := testutil.NewScriptedConnection(t, script)

	if err := conn.EnterPipeline(); err != nil {
		t.Fatalf("EnterPipeline failed: %v", err)
	}
	conn.DispatchCommand("INSERT INTO t VALUES (1)")
	conn.DispatchCommand("INSERT INTO t VALUES (2)")
	conn.DispatchSync()

	var seqs []uint64
	for advance(t, conn) {
		for _, env := range drainHead(t, conn) {
			if env.Kind != client.EnvelopePipelineEnd {
				seqs = append(seqs, env.Seq)
			}
		}
	}
	if len(seqs) != 2 || seqs[0] >= seqs[1] {
		t.Errorf("expected strictly increasing sequence numbers, got %v", seqs)
	}
}

func TestSingleRowMode(t *testing.T) {
	script := testutil.NewScript().
		ParseComplete().BindComplete().
		RowDescription("n").
		DataRow("1").DataRow("2").DataRow("3").
		CommandComplete("SELECT 3").
		ReadyForQuery('I')
	conn, _ := testutil.NewScriptedConnection(t, script)

	if err := conn.EnterPipeline(); err != nil {
		t.Fatalf("EnterPipeline failed: %v", err)
	}
	if _, err := conn.DispatchQuery("SELECT n FROM t"); err != nil {
		t.Fatalf("DispatchQuery failed: %v", err)
	}
	if _, err := conn.DispatchSync(); err != nil {
		t.Fatalf("DispatchSync failed: %v", err)
	}

	advance(t, conn)
	if err := conn.SetSingleRowMode(); err != nil {
		t.Fatalf("SetSingleRowMode failed: %v", err)
	}

	envs := drainHead(t, conn)
	if len(envs) != 4 {
		t.Fatalf("expected 3 rows plus summary, got %d envelopes", len(envs))
	}
	for i := 0; i < 3; i++ {
		if envs[i].Kind != client.EnvelopeSingleRow {
			t.Errorf("envelope %d: expected SingleRow, got %s", i, envs[i].Kind)
		}
		if len(envs[i].Columns) != 1 || envs[i].Columns[0] != "n" {
			t.Errorf("envelope %d: unexpected columns %v", i, envs[i].Columns)
		}
	}
	if string(envs[1].Row[0]) != "2" {
		t.Errorf("unexpected streamed value: %q", envs[1].Row[0])
	}
	summary := envs[3]
	if summary.Kind != client.EnvelopeCommandComplete || summary.RowCount != 3 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestSingleRowModeDoesNotPersist(t *testing.T) {
	script := testutil.NewScript().
		ParseComplete().BindComplete().
		RowDescription("n").DataRow("1").
		CommandComplete("SELECT 1").
		ParseComplete().BindComplete().
		RowDescription("n").DataRow("2").
		CommandComplete("SELECT 1").
		ReadyForQuery('I')
	conn, _ := testutil.NewScriptedConnection(t, script)

	if err := conn.EnterPipeline(); err != nil {
		t.Fatalf("EnterPipeline failed: %v", err)
	}
	conn.DispatchQuery("SELECT 1")
	conn.DispatchQuery("SELECT 2")
	conn.DispatchSync()

	advance(t, conn)
	if err := conn.SetSingleRowMode(); err != nil {
		t.Fatalf("SetSingleRowMode failed: %v", err)
	}
	envs := drainHead(t, conn)
	if len(envs) != 2 || envs[0].Kind != client.EnvelopeSingleRow {
		t.Fatalf("first entry: expected streamed rows, got %+v", envs)
	}

	// The second entry reverts to buffered delivery.
	advance(t, conn)
	envs = drainHead(t, conn)
	if len(envs) != 1 || envs[0].Kind != client.EnvelopeTupleSet {
		t.Fatalf("second entry: expected buffered TupleSet, got %+v", envs)
	}
}

func TestSingleRowModeRefusedAfterConsumption(t *testing.T) {
	script := testutil.NewScript().
		ParseComplete().BindComplete().
		RowDescription("n").DataRow("1").
		CommandComplete("SELECT 1").
		ReadyForQuery('I')
	conn, _ := testutil.NewScriptedConnection(t, script)

	if err := conn.EnterPipeline(); err != nil {
		t.Fatalf("EnterPipeline failed: %v", err)
	}
	conn.DispatchQuery("SELECT 1")
	conn.DispatchSync()

	advance(t, conn)
	if _, err := conn.NextEnvelope(); err != nil {
		t.Fatalf("NextEnvelope failed: %v", err)
	}

	err := conn.SetSingleRowMode()
	var seqErr *client.SequenceError
	if !errors.As(err, &seqErr) {
		t.Fatalf("expected SequenceError after consumption, got %v", err)
	}
}

func TestChunkedReceive(t *testing.T) {
	script := testutil.NewScript().
		ParseComplete().BindComplete().
		RowDescription("v").DataRow("payload").
		CommandComplete("SELECT 1").
		ReadyForQuery('I')
	conn, tr := testutil.NewScriptedConnection(t, script)
	tr.WithRecvChunk(3)

	if err := conn.EnterPipeline(); err != nil {
		t.Fatalf("EnterPipeline failed: %v", err)
	}
	conn.DispatchQuery("SELECT v FROM t")
	conn.DispatchSync()

	advance(t, conn)
	envs := drainHead(t, conn)
	if len(envs) != 1 || envs[0].Kind != client.EnvelopeTupleSet {
		t.Fatalf("expected TupleSet, got %+v", envs)
	}
	if string(envs[0].Rows[0][0]) != "payload" {
		t.Errorf("unexpected value: %q", envs[0].Rows[0][0])
	}
}

func TestUnexpectedReplyPoisonsConnection(t *testing.T) {
	script := testutil.NewScript().
		ReadyForQuery('I')
	conn, _ := testutil.NewScriptedConnection(t, script)

	if err := conn.EnterPipeline(); err != nil {
		t.Fatalf("EnterPipeline failed: %v", err)
	}
	conn.DispatchQuery("SELECT 1")
	conn.DispatchSync()

	advance(t, conn)
	if _, err := conn.NextEnvelope(); err == nil {
		t.Fatal("expected failure on out-of-place sync reply")
	}

	// The failure is sticky.
	_, err := conn.DispatchQuery("SELECT 1")
	var connErr *client.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError on poisoned connection, got %v", err)
	}
}

func TestReceiveExhaustedScript(t *testing.T) {
	conn, _ := testutil.NewScriptedConnection(t, nil)

	if err := conn.EnterPipeline(); err != nil {
		t.Fatalf("EnterPipeline failed: %v", err)
	}
	conn.DispatchQuery("SELECT 1")
	conn.DispatchSync()

	advance(t, conn)
	if _, err := conn.NextEnvelope(); err == nil {
		t.Fatal("expected error when no reply is available")
	}
}

func TestBusy(t *testing.T) {
	script := testutil.NewScript().
		ParseComplete().BindComplete().NoData().CommandComplete("INSERT 0 1").
		ReadyForQuery('I')
	conn, _ := testutil.NewScriptedConnection(t, script)

	if err := conn.EnterPipeline(); err != nil {
		t.Fatalf("EnterPipeline failed: %v", err)
	}
	if conn.Busy() {
		t.Error("expected not busy with no current entry")
	}
	conn.DispatchCommand("INSERT INTO t VALUES (1)")
	conn.DispatchSync()

	advance(t, conn)
	if conn.Busy() {
		t.Error("expected not busy with a scripted reply buffered")
	}
	drainHead(t, conn)
}
