package client_test

import (
	"context"
	"errors"
	"testing"

	"github.com/kvisten/pgpipe/client"
	"github.com/kvisten/pgpipe/testutil"
)

func TestExecSelect(t *testing.T) {
	script := testutil.NewScript().
		RowDescription("id").
		DataRow("7").
		CommandComplete("SELECT 1").
		ReadyForQuery('I')
	conn, tr := testutil.NewScriptedConnection(t, script)

	env, err := conn.Exec(context.Background(), "SELECT id FROM t")
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if env.Kind != client.EnvelopeTupleSet || env.RowCount != 1 {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if string(env.Rows[0][0]) != "7" {
		t.Errorf("unexpected value: %q", env.Rows[0][0])
	}

	// The simple protocol uses a single query frame.
	frames := tr.SentFrames()
	if len(frames) != 1 || frames[0][0] != 'Q' {
		t.Errorf("expected one simple query frame, got %d frames", len(frames))
	}
}

func TestExecCommand(t *testing.T) {
	script := testutil.NewScript().
		CommandComplete("CREATE TABLE").
		ReadyForQuery('I')
	conn, _ := testutil.NewScriptedConnection(t, script)

	env, err := conn.Exec(context.Background(), "CREATE TABLE t (id int)")
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if env.Kind != client.EnvelopeCommandComplete || env.Tag != "CREATE TABLE" {
		t.Errorf("unexpected envelope: %+v", env)
	}
}

func TestExecServerError(t *testing.T) {
	script := testutil.NewScript().
		Error("42601", "syntax error at or near").
		ReadyForQuery('I')
	conn, _ := testutil.NewScriptedConnection(t, script)

	_, err := conn.Exec(context.Background(), "SELEC 1")
	var qerr *client.QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("expected QueryError, got %v", err)
	}
	if qerr.SQLState != "42601" {
		t.Errorf("expected SQLSTATE 42601, got %q", qerr.SQLState)
	}

	// A rejected statement must not poison the connection.
	if err := conn.EnterPipeline(); err != nil {
		t.Errorf("connection unusable after query error: %v", err)
	}
}

func TestExecRefusedWhilePipelining(t *testing.T) {
	conn, _ := testutil.NewScriptedConnection(t, nil)

	if err := conn.EnterPipeline(); err != nil {
		t.Fatalf("EnterPipeline failed: %v", err)
	}

	_, err := conn.Exec(context.Background(), "SELECT 1")
	var seqErr *client.SequenceError
	if !errors.As(err, &seqErr) {
		t.Fatalf("expected SequenceError, got %v", err)
	}
}

func TestExecLastResultWins(t *testing.T) {
	script := testutil.NewScript().
		CommandComplete("BEGIN").
		RowDescription("n").
		DataRow("1").
		CommandComplete("SELECT 1").
		CommandComplete("COMMIT").
		ReadyForQuery('I')
	conn, _ := testutil.NewScriptedConnection(t, script)

	env, err := conn.Exec(context.Background(), "BEGIN; SELECT 1; COMMIT")
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if env.Kind != client.EnvelopeCommandComplete || env.Tag != "COMMIT" {
		t.Errorf("expected last statement's result, got %+v", env)
	}
}
