package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vehdiag/vehdiag/pkg/can"
	"github.com/vehdiag/vehdiag/pkg/config"
	"github.com/vehdiag/vehdiag/pkg/obd"
)

func runCAN(args []string) int {
	fs := flag.NewFlagSet("can", flag.ContinueOnError)
	iface := fs.String("interface", "can0", "CAN interface name")
	backend := fs.String("backend", "socketcan", "CAN backend: socketcan or socketcanv3")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	rest := fs.Args()
	if len(rest) < 2 {
		fmt.Println("usage: vehdiag can [--interface can0] <bit_rate> <read-dtcs|clear-dtcs|read-data <pid>|log-data --output <file> <pid>...>")
		return exitUsage
	}

	bitRate, err := strconv.Atoi(rest[0])
	if err != nil {
		log.Errorf("vehdiag: invalid bit rate %q", rest[0])
		return exitUsage
	}
	action, actionArgs := rest[1], rest[2:]

	conn, err := config.OpenCANConnection(*backend, *iface, bitRate)
	if err != nil {
		log.Errorf("vehdiag: open CAN: %v", err)
		return exitIO
	}
	defer conn.Close()

	client := obd.NewClient(conn.Bus(), obd.BroadcastRequestID)

	if action == "log-data" {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return runLogData(ctx, client, actionArgs)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch action {
	case "read-dtcs":
		records, err := client.ReadStoredDTCs(ctx)
		if err != nil {
			log.Errorf("vehdiag: read-dtcs: %v", err)
			return exitProtocol
		}
		if len(records) == 0 {
			fmt.Println("no stored DTCs")
		}
		for _, r := range records {
			fmt.Printf("%s\n", r.Code())
		}
	case "clear-dtcs":
		if err := client.ClearDTCs(ctx); err != nil {
			log.Errorf("vehdiag: clear-dtcs: %v", err)
			return exitProtocol
		}
		fmt.Println("DTCs cleared")
	case "read-data":
		if len(actionArgs) < 1 {
			fmt.Println("usage: vehdiag can <bit_rate> read-data <pid>")
			return exitUsage
		}
		pid, err := parsePID(actionArgs[0])
		if err != nil {
			return exitUsage
		}
		value, err := readPID(ctx, client, pid)
		if err != nil {
			log.Errorf("vehdiag: read-data: %v", err)
			return exitProtocol
		}
		fmt.Printf("%s\n", value)
	default:
		log.Errorf("vehdiag: unknown can action %q", action)
		return exitUsage
	}
	return exitOK
}

// obdClient builds a broadcast-request OBD-II client over an already
// connected bus, used by the loopback self-test.
func obdClient(bus can.Bus) *obd.Client {
	return obd.NewClient(bus, obd.BroadcastRequestID)
}

func parsePID(s string) (byte, error) {
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		log.Errorf("vehdiag: invalid pid %q", s)
		return 0, err
	}
	return byte(n), nil
}

// readPID reads one PID and renders it as a decoded value when a known
// formula applies, falling back to the raw hex payload otherwise.
func readPID(ctx context.Context, client *obd.Client, pid byte) (string, error) {
	data, err := client.ReadCurrent(ctx, pid)
	if err != nil {
		return "", err
	}
	if len(data) < 1 {
		return "", fmt.Errorf("vehdiag: short response for pid %#02x", pid)
	}
	if value, ok := obd.Decode(pid, data[1:]); ok {
		return strconv.FormatFloat(value, 'f', -1, 64), nil
	}
	return fmt.Sprintf("% X", data[1:]), nil
}
