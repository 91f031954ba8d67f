package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kvisten/pgpipe"
	"github.com/kvisten/pgpipe/client"
)

type scenario struct {
	name string
	desc string
	fn   func(context.Context, *client.Connection) error
}

var scenarios = []scenario{
	{"disallowed", "Operations refused while pipelining", scenarioDisallowed},
	{"simple", "One group, one query", scenarioSimple},
	{"multi", "Several sync groups on one connection", scenarioMulti},
	{"abort", "Failed statement aborts only its own group", scenarioAbort},
	{"prepared", "Prepared statement reuse inside a group", scenarioPrepared},
	{"singlerow", "Streamed row delivery", scenarioSingleRow},
}

func handleRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	connFlag := fs.String("conn", "", "Connection URL (overrides config and PGPIPE_CONN)")
	only := fs.String("scenario", "", "Run a single scenario by name")
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}
	if *connFlag != "" {
		cfg.Conn = *connFlag
	}
	if cfg.Conn == "" {
		printError("Connection URL is required")
		fmt.Println("\nProvide via --conn flag, PGPIPE_CONN environment variable, or pgpipe.toml")
		os.Exit(1)
	}

	selected := scenarios
	if *only != "" {
		selected = nil
		for _, s := range scenarios {
			if s.name == *only {
				selected = []scenario{s}
				break
			}
		}
		if selected == nil {
			printError(fmt.Sprintf("Unknown scenario: %s", *only))
			os.Exit(1)
		}
	}

	printHeader("Pipeline Protocol Scenarios")
	fmt.Println()

	passed := 0
	for i, s := range selected {
		printStep(i+1, len(selected), s.name+" "+colorDim("("+s.desc+")"))
		if err := runScenario(cfg, s); err != nil {
			printError(client.FormatError(err, cfg.Options.DebugMode))
			continue
		}
		passed++
	}

	fmt.Println()
	if passed == len(selected) {
		printSuccess(fmt.Sprintf("All scenarios passed! (%d/%d)", passed, len(selected)))
	} else {
		printError(fmt.Sprintf("Some scenarios failed (%d/%d passed)", passed, len(selected)))
		os.Exit(1)
	}
}

// runScenario connects fresh so a poisoned connection cannot leak into the
// next scenario.
func runScenario(cfg cliConfig, s scenario) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgpipe.Connect(ctx, cfg.Conn, &cfg.Options)
	if err != nil {
		return err
	}
	defer conn.Close()

	return s.fn(ctx, conn)
}

// syncAndDrain closes the open group with a sync marker, flushes, and
// collects every envelope up to and including the group boundary.
func syncAndDrain(conn *client.Connection) ([]*client.Envelope, error) {
	for {
		ok, err := conn.DispatchSync()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if _, err := conn.Flush(); err != nil {
			return nil, err
		}
	}
	for {
		done, err := conn.Flush()
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
	}

	var out []*client.Envelope
	for {
		ok, err := conn.Advance()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		for {
			env, err := conn.NextEnvelope()
			if err != nil {
				return nil, err
			}
			if env == nil {
				break
			}
			out = append(out, env)
		}
	}
}

func scenarioDisallowed(ctx context.Context, conn *client.Connection) error {
	if err := conn.EnterPipeline(); err != nil {
		return err
	}
	if got := conn.PipelineStatus(); got != client.PipelineActive {
		return fmt.Errorf("expected status ACTIVE, got %s", got)
	}
	// Re-entering is a no-op.
	if err := conn.EnterPipeline(); err != nil {
		return err
	}

	if _, err := conn.Exec(ctx, "SELECT 1"); err == nil {
		return fmt.Errorf("single-shot execution was not refused while pipelining")
	}

	if _, err := conn.DispatchQuery("SELECT 1"); err != nil {
		return err
	}
	if err := conn.ExitPipeline(); err == nil {
		return fmt.Errorf("exit was not refused with a pending entry")
	}

	if _, err := syncAndDrain(conn); err != nil {
		return err
	}
	if err := conn.ExitPipeline(); err != nil {
		return err
	}
	if got := conn.PipelineStatus(); got != client.PipelineOff {
		return fmt.Errorf("expected status OFF after exit, got %s", got)
	}
	return nil
}

func scenarioSimple(ctx context.Context, conn *client.Connection) error {
	if err := conn.EnterPipeline(); err != nil {
		return err
	}
	if _, err := conn.DispatchQuery("SELECT 1"); err != nil {
		return err
	}
	envs, err := syncAndDrain(conn)
	if err != nil {
		return err
	}
	if len(envs) != 2 {
		return fmt.Errorf("expected 2 envelopes, got %d", len(envs))
	}
	if envs[0].Kind != client.EnvelopeTupleSet || string(envs[0].Rows[0][0]) != "1" {
		return fmt.Errorf("unexpected result envelope: %+v", envs[0])
	}
	if envs[1].Kind != client.EnvelopePipelineEnd {
		return fmt.Errorf("expected group boundary, got %s", envs[1].Kind)
	}
	return conn.ExitPipeline()
}

func scenarioMulti(ctx context.Context, conn *client.Connection) error {
	if err := conn.EnterPipeline(); err != nil {
		return err
	}

	// Three groups dispatched back to back before any draining.
	for i := 0; i < 3; i++ {
		if _, err := conn.DispatchQuery(fmt.Sprintf("SELECT %d", i)); err != nil {
			return err
		}
		for {
			ok, err := conn.DispatchSync()
			if err != nil {
				return err
			}
			if ok {
				break
			}
			if _, err := conn.Flush(); err != nil {
				return err
			}
		}
	}
	for {
		done, err := conn.Flush()
		if err != nil {
			return err
		}
		if done {
			break
		}
	}

	seenResults, seenEnds := 0, 0
	for {
		ok, err := conn.Advance()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		for {
			env, err := conn.NextEnvelope()
			if err != nil {
				return err
			}
			if env == nil {
				break
			}
			switch env.Kind {
			case client.EnvelopeTupleSet:
				seenResults++
			case client.EnvelopePipelineEnd:
				seenEnds++
			default:
				return fmt.Errorf("unexpected envelope %s", env.Kind)
			}
		}
	}
	if seenResults != 3 || seenEnds != 3 {
		return fmt.Errorf("expected 3 results and 3 boundaries, got %d and %d", seenResults, seenEnds)
	}
	return conn.ExitPipeline()
}

func scenarioAbort(ctx context.Context, conn *client.Connection) error {
	table := fmt.Sprintf("pgpipe_abort_%d", time.Now().UnixNano())
	if _, err := conn.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (id int)", table)); err != nil {
		return err
	}
	defer func() {
		if _, err := conn.Exec(ctx, "DROP TABLE "+table); err != nil {
			printWarning(fmt.Sprintf("cleanup failed, table %s left behind", table))
		}
	}()

	first := new(pgpipe.Batch).
		QueueCommand(fmt.Sprintf("INSERT INTO %s VALUES (1)", table)).
		QueueCommand("INSERT INTO no_such_table VALUES (1)").
		QueueCommand(fmt.Sprintf("INSERT INTO %s VALUES (2)", table))
	envs, err := pgpipe.Run(ctx, conn, first)
	if err != nil {
		return err
	}
	if len(envs) != 3 ||
		envs[0].Kind != client.EnvelopeCommandComplete ||
		envs[1].Kind != client.EnvelopeError ||
		envs[2].Kind != client.EnvelopePipelineAborted {
		return fmt.Errorf("unexpected abort sequence: %v %v %v", envs[0].Kind, envs[1].Kind, envs[2].Kind)
	}

	second := new(pgpipe.Batch).
		QueueCommand(fmt.Sprintf("INSERT INTO %s VALUES (3)", table))
	if _, err := pgpipe.Run(ctx, conn, second); err != nil {
		return err
	}

	env, err := conn.Exec(ctx, "SELECT id FROM "+table+" ORDER BY id")
	if err != nil {
		return err
	}
	if env.RowCount != 1 || string(env.Rows[0][0]) != "3" {
		return fmt.Errorf("expected only row 3 to survive, got %d rows", env.RowCount)
	}
	return nil
}

func scenarioPrepared(ctx context.Context, conn *client.Connection) error {
	batch := new(pgpipe.Batch).
		Prepare("pgpipe_cli_add", "SELECT $1::int + $2::int").
		QueuePrepared("pgpipe_cli_add", []byte("1"), []byte("2")).
		QueuePrepared("pgpipe_cli_add", []byte("40"), []byte("2"))

	envs, err := pgpipe.Run(ctx, conn, batch)
	if err != nil {
		return err
	}
	if len(envs) != 3 {
		return fmt.Errorf("expected 3 envelopes, got %d", len(envs))
	}
	if got := string(envs[1].Rows[0][0]); got != "3" {
		return fmt.Errorf("expected 3, got %s", got)
	}
	if got := string(envs[2].Rows[0][0]); got != "42" {
		return fmt.Errorf("expected 42, got %s", got)
	}
	return nil
}

func scenarioSingleRow(ctx context.Context, conn *client.Connection) error {
	if err := conn.EnterPipeline(); err != nil {
		return err
	}
	if _, err := conn.DispatchQuery("SELECT generate_series(1, 5)"); err != nil {
		return err
	}
	for {
		ok, err := conn.DispatchSync()
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if _, err := conn.Flush(); err != nil {
			return err
		}
	}
	for {
		done, err := conn.Flush()
		if err != nil {
			return err
		}
		if done {
			break
		}
	}

	if ok, err := conn.Advance(); err != nil || !ok {
		return fmt.Errorf("advance to query entry failed: %v", err)
	}
	if err := conn.SetSingleRowMode(); err != nil {
		return err
	}

	rows := 0
	for {
		env, err := conn.NextEnvelope()
		if err != nil {
			return err
		}
		if env == nil {
			break
		}
		switch env.Kind {
		case client.EnvelopeSingleRow:
			rows++
		case client.EnvelopeCommandComplete:
			if env.RowCount != rows {
				return fmt.Errorf("summary row count %d does not match %d streamed rows", env.RowCount, rows)
			}
		default:
			return fmt.Errorf("unexpected envelope %s", env.Kind)
		}
	}
	if rows != 5 {
		return fmt.Errorf("expected 5 streamed rows, got %d", rows)
	}

	// Drain the remaining group boundary before exiting.
	for {
		ok, err := conn.Advance()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		for {
			env, err := conn.NextEnvelope()
			if err != nil {
				return err
			}
			if env == nil {
				break
			}
		}
	}
	return conn.ExitPipeline()
}
