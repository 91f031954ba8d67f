package main

import (
	"fmt"
	"os"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "run":
		handleRun(os.Args[2:])
	case "bench":
		handleBench(os.Args[2:])
	case "version", "-v", "--version":
		fmt.Printf("pgpipe v%s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		printError(fmt.Sprintf("Unknown command: %s", command))
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(colorBold(colorCyan("pgpipe CLI")) + " - Pipeline protocol scenarios and benchmarks\n")
	fmt.Println("Usage:")
	fmt.Println("  pgpipe " + colorYellow("<command>") + " [options]\n")
	fmt.Println("Commands:")
	fmt.Println("  " + colorGreen("run") + "       Run protocol scenarios against a server")
	fmt.Println("  " + colorGreen("bench") + "     Compare pipelined vs sequential round trips")
	fmt.Println("  " + colorGreen("version") + "   Show version information")
	fmt.Println("  " + colorGreen("help") + "      Show this help message\n")
	fmt.Println("Run '" + colorCyan("pgpipe <command> --help") + "' for more information on a command.\n")
	fmt.Println("Environment Variables:")
	fmt.Println("  PGPIPE_CONN        Server connection URL (postgres://...)")
	fmt.Println("  PGPIPE_CONFIG      Path to config file (default: ./pgpipe.toml)")
	fmt.Println("  PGPIPE_LOG_LEVEL   Log level (DEBUG, INFO, WARN, ERROR)")
}
