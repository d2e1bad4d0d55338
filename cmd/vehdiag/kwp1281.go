package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vehdiag/vehdiag/pkg/config"
	"github.com/vehdiag/vehdiag/pkg/kline"
	"github.com/vehdiag/vehdiag/pkg/kwp1281"
)

func runKWP1281(args []string) int {
	fs := flag.NewFlagSet("kwp1281", flag.ContinueOnError)
	ecu := fs.String("ecu", "", "ECU name (looked up in the address table) or a raw hex address")
	serialPath := fs.String("serial", "/dev/ttyUSB0", "K-line serial device")
	gpioLine := fs.String("gpio", "GPIO17", "GPIO line wired to the K-line TX pin")
	baud := fs.Int("baud", 9600, "initial UART baud rate")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	rest := fs.Args()
	if *ecu == "" || len(rest) < 1 {
		fmt.Println("usage: vehdiag kwp1281 --ecu <id> <read-dtcs|clear-dtcs|ecu-id|read-group <g>|read-adaptation <ch>|write-adaptation <ch> <value>>")
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

	sess, err := kwp1281.Open(ctx, driver, address)
	if err != nil {
		log.Errorf("vehdiag: kwp1281 init: %v", err)
		return exitProtocol
	}
	defer sess.Close(ctx)

	action, actionArgs := rest[0], rest[1:]
	switch action {
	case "read-dtcs":
		records, err := sess.ReadDTCs(ctx)
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
		if err := sess.ClearDTCs(ctx); err != nil {
			log.Errorf("vehdiag: clear-dtcs: %v", err)
			return exitProtocol
		}
		fmt.Println("DTCs cleared")
	case "ecu-id":
		fmt.Println(sess.ECUID())
	case "read-group":
		if len(actionArgs) < 1 {
			fmt.Println("usage: vehdiag kwp1281 --ecu <id> read-group <group>")
			return exitUsage
		}
		group, err := parseByteArg(actionArgs[0])
		if err != nil {
			return exitUsage
		}
		values, err := sess.ReadGroup(ctx, group)
		if err != nil {
			log.Errorf("vehdiag: read-group: %v", err)
			return exitProtocol
		}
		for i, v := range values {
			physical, ok := kwp1281.Interpret(v)
			if ok {
				fmt.Printf("field %d: %.2f\n", i, physical)
			} else {
				fmt.Printf("field %d: raw formula=%#02x a=%#02x b=%#02x\n", i, v.FormulaID, v.RawA, v.RawB)
			}
		}
	case "read-adaptation":
		if len(actionArgs) < 1 {
			fmt.Println("usage: vehdiag kwp1281 --ecu <id> read-adaptation <channel>")
			return exitUsage
		}
		channel, err := parseByteArg(actionArgs[0])
		if err != nil {
			return exitUsage
		}
		data, err := sess.ReadAdaptation(ctx, channel)
		if err != nil {
			log.Errorf("vehdiag: read-adaptation: %v", err)
			return exitProtocol
		}
		fmt.Printf("% X\n", data)
	case "write-adaptation":
		if len(actionArgs) < 2 {
			fmt.Println("usage: vehdiag kwp1281 --ecu <id> write-adaptation <channel> <value>")
			return exitUsage
		}
		channel, err := parseByteArg(actionArgs[0])
		if err != nil {
			return exitUsage
		}
		value, err := parseByteArg(actionArgs[1])
		if err != nil {
			return exitUsage
		}
		if err := sess.WriteAdaptation(ctx, channel, []byte{value}); err != nil {
			log.Errorf("vehdiag: write-adaptation: %v", err)
			return exitProtocol
		}
		fmt.Println("adaptation written")
	default:
		log.Errorf("vehdiag: unknown kwp1281 action %q", action)
		return exitUsage
	}
	return exitOK
}

// resolveECU looks ecu up in the default address table, falling back to
// parsing it directly as a hex byte.
func resolveECU(ecu string) (byte, error) {
	cfg := defaultConfig()
	if addr, ok := cfg.ECUAddresses[ecu]; ok {
		return addr, nil
	}
	return parseByteArg(ecu)
}

func parseByteArg(s string) (byte, error) {
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		log.Errorf("vehdiag: invalid value %q", s)
		return 0, err
	}
	return byte(n), nil
}
