// Command vehdiag is a command-line diagnostic client for the three
// protocols this project speaks: CAN/ISO-TP (OBD-II), KWP1281, and KWP2000.
package main

import (
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/vehdiag/vehdiag/pkg/config"
)

// defaultConfig returns the compiled-in ECU/PID tables. A future revision
// could thread a --config flag through to config.Load; nothing in the CLI
// surface currently asks for that.
func defaultConfig() config.Config {
	return config.Default()
}

// Exit codes, per the CLI surface: 0 success, 1 protocol-layer failure, 2
// I/O/device failure, 3 invalid argument.
const (
	exitOK       = 0
	exitProtocol = 1
	exitIO       = 2
	exitUsage    = 3
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: vehdiag [-v] <command> [arguments]

commands:
  can [--interface can0] <bit_rate> <read-dtcs|clear-dtcs|read-data <pid>|log-data --output <file> <pid>...>
  kwp1281 --ecu <id> <read-dtcs|clear-dtcs|ecu-id|read-group <g>|read-adaptation <ch>|write-adaptation <ch> <value>>
  kwp2000 --ecu <id> <read-dtcs|clear-dtcs|ecu-id>
  test <loopback|simulate-ecu <protocol>>`)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.CommandLine.Usage = usage
	flag.CommandLine.Parse(args)

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	rest := flag.CommandLine.Args()
	if len(rest) == 0 {
		usage()
		return exitUsage
	}

	cmd, rest := rest[0], rest[1:]
	switch cmd {
	case "can":
		return runCAN(rest)
	case "kwp1281":
		return runKWP1281(rest)
	case "kwp2000":
		return runKWP2000(rest)
	case "test":
		return runTest(rest)
	default:
		log.Errorf("vehdiag: unknown command %q", cmd)
		usage()
		return exitUsage
	}
}
