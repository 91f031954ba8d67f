package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kvisten/pgpipe"
)

func handleBench(args []string) {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	connFlag := fs.String("conn", "", "Connection URL (overrides config and PGPIPE_CONN)")
	rows := fs.Int("rows", 1000, "Number of inserts per run")
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
		os.Exit(1)
	}

	printHeader("Pipelined vs Sequential Inserts")
	printInfo(fmt.Sprintf("%d rows per run", *rows))
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	conn, err := pgpipe.Connect(ctx, cfg.Conn, &cfg.Options)
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}
	defer conn.Close()

	table := fmt.Sprintf("pgpipe_bench_%d", time.Now().UnixNano())
	if _, err := conn.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (id int, label text)", table)); err != nil {
		printError(err.Error())
		os.Exit(1)
	}
	defer conn.Exec(ctx, "DROP TABLE "+table)

	pipelined, err := benchPipelined(ctx, conn, table, *rows)
	if err != nil {
		printError(fmt.Sprintf("pipelined run failed: %v", err))
		os.Exit(1)
	}

	sequential, err := benchSequential(ctx, conn, table, *rows)
	if err != nil {
		printError(fmt.Sprintf("sequential run failed: %v", err))
		os.Exit(1)
	}

	printTable(
		[]string{"Mode", "Elapsed", "Rows/s"},
		[][]string{
			{"pipelined", pipelined.Round(time.Millisecond).String(), rate(*rows, pipelined)},
			{"sequential", sequential.Round(time.Millisecond).String(), rate(*rows, sequential)},
		},
	)

	fmt.Println()
	if pipelined < sequential {
		printSuccess(fmt.Sprintf("Pipelining was %.1fx faster", float64(sequential)/float64(pipelined)))
	} else {
		printWarning("Pipelining was not faster; is the server on localhost?")
	}
}

func benchPipelined(ctx context.Context, conn *pgpipe.Conn, table string, rows int) (time.Duration, error) {
	batch := new(pgpipe.Batch).
		Prepare("pgpipe_bench_ins", fmt.Sprintf("INSERT INTO %s VALUES ($1, $2)", table))
	for i := 0; i < rows; i++ {
		batch.QueuePrepared("pgpipe_bench_ins",
			[]byte(strconv.Itoa(i)), []byte("pipelined"))
	}

	start := time.Now()
	envs, err := pgpipe.Run(ctx, conn, batch)
	if err != nil {
		return 0, err
	}
	for _, env := range envs {
		if env.Err != nil {
			return 0, env.Err
		}
	}
	return time.Since(start), nil
}

func benchSequential(ctx context.Context, conn *pgpipe.Conn, table string, rows int) (time.Duration, error) {
	start := time.Now()
	for i := 0; i < rows; i++ {
		stmt := fmt.Sprintf("INSERT INTO %s VALUES (%d, 'sequential')", table, i)
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return 0, err
		}
	}
	return time.Since(start), nil
}

func rate(rows int, d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f", float64(rows)/d.Seconds())
}
