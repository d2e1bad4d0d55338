package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vehdiag/vehdiag/pkg/config"
	"github.com/vehdiag/vehdiag/pkg/dtc"
	"github.com/vehdiag/vehdiag/pkg/kline"
	"github.com/vehdiag/vehdiag/pkg/kwp2000"
)

func runKWP2000(args []string) int {
	fs := flag.NewFlagSet("kwp2000", flag.ContinueOnError)
	ecu := fs.String("ecu", "", "ECU name (looked up in the address table) or a raw hex address")
	serialPath := fs.String("serial", "/dev/ttyUSB0", "K-line serial device")
	gpioLine := fs.String("gpio", "GPIO17", "GPIO line wired to the K-line TX pin")
	baud := fs.Int("baud", 10400, "initial UART baud rate")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	rest := fs.Args()
	if *ecu == "" || len(rest) < 1 {
		fmt.Println("usage: vehdiag kwp2000 --ecu <id> <read-dtcs|clear-dtcs|ecu-id>")
		return exitUsage
	}

	address, err := resolveECU(*ecu)
	if err != nil {
		return exitUsage
	}

	conn, err := config.OpenKLine(*serialPath, *gpioLine, *baud)
	if err != nil {
		log.Errorf("vehdiag: open K-line: %v", err)
		return exitIO
	}
	defer conn.Close()

	driver := kline.NewDriver(conn.Serial(), conn.GPIO(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sess, err := kwp2000.Open(ctx, driver, address)
	if err != nil {
		log.Errorf("vehdiag: kwp2000 init: %v", err)
		return exitProtocol
	}

	action := rest[0]
	switch action {
	case "read-dtcs":
		codes, err := sess.ReadDTCs(ctx)
		if err != nil {
			log.Errorf("vehdiag: read-dtcs: %v", err)
			return exitProtocol
		}
		if len(codes) == 0 {
			fmt.Println("no stored DTCs")
		}
		for _, c := range codes {
			if rec, ok := dtc.DecodeISO15031(c.HighByte, c.LowByte); ok {
				fmt.Printf("%s (status %#02x)\n", rec.Code(), c.Status)
			}
		}
	case "clear-dtcs":
		if err := sess.ClearDTCs(ctx); err != nil {
			log.Errorf("vehdiag: clear-dtcs: %v", err)
			return exitProtocol
		}
		fmt.Println("DTCs cleared")
	case "ecu-id":
		data, err := sess.ReadECUID(ctx)
		if err != nil {
			log.Errorf("vehdiag: ecu-id: %v", err)
			return exitProtocol
		}
		fmt.Printf("% X\n", data)
	default:
		log.Errorf("vehdiag: unknown kwp2000 action %q", action)
		return exitUsage
	}
	return exitOK
}
