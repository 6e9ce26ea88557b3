package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/thatsimonsguy/psu-controller/db"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command, flagName, remark, date string
	var value bool
	var slot, limit int
	flag.StringVar(&dbPath, "db", "data/psu.db", "Path to the SQLite database file")
	flag.StringVar(&command, "cmd", "", "Command to run: show-config, set-flag, set-recall-slot, set-calibration, dump-profile, list-events")
	flag.StringVar(&flagName, "flag", "", "Device flag for set-flag: auto-recall, force-disable-outputs, shutdown-on-protection, output-protection-couple, front-panel-lock")
	flag.BoolVar(&value, "value", false, "Value for set-flag, enabled state for set-calibration")
	flag.IntVar(&slot, "slot", 0, "Profile slot for set-recall-slot and dump-profile, channel slot for set-calibration")
	flag.StringVar(&remark, "remark", "", "Calibration remark for set-calibration")
	flag.StringVar(&date, "date", "", "Calibration date for set-calibration")
	flag.IntVar(&limit, "limit", 20, "Number of events for list-events")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of psu-debug:")
		fmt.Println("  -db string\tPath to the SQLite database file (default 'data/psu.db')")
		fmt.Println("  -cmd string\tCommand to run: show-config, set-flag, set-recall-slot, set-calibration, dump-profile, list-events")
		fmt.Println("  -flag string\tDevice flag for set-flag")
		fmt.Println("  -value bool\tValue for set-flag, enabled state for set-calibration")
		fmt.Println("  -slot int\tProfile or channel slot")
		fmt.Println("  -remark string\tCalibration remark")
		fmt.Println("  -date string\tCalibration date")
		fmt.Println("  -limit int\tNumber of events to list")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	var (
		out interface{}
		err error
	)
	switch command {
	case "show-config":
		out, err = db.ShowDeviceConfigCLI(dbPath)
	case "set-flag":
		if flagName == "" {
			fmt.Println("Error: -flag is required")
			os.Exit(1)
		}
		err = db.SetDeviceFlagCLI(dbPath, flagName, value)
	case "set-recall-slot":
		err = db.SetAutoRecallLocationCLI(dbPath, slot)
	case "set-calibration":
		err = db.SetCalibrationCLI(dbPath, slot, value, remark, date)
	case "dump-profile":
		out, err = db.DumpProfileCLI(dbPath, slot)
	case "list-events":
		out, err = db.ListEventsCLI(dbPath, limit)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	if out != nil {
		encoded, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(encoded))
		return
	}
	fmt.Printf("Command %s completed successfully\n", command)
}
