package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/espruino/espruino.github.io/internal/ble"
)

var cmdScan = &cobra.Command{
	Use:   "scan",
	Short: "List nearby devices advertising the Nordic UART service",
	Long:  ``,
	RunE:  runScan,
}

func init() {
	rootCmd.AddCommand(cmdScan)
}

func runScan(cmd *cobra.Command, args []string) error {
	devices, err := ble.ScanForDevices(ble.NewBluetoothAdapter(), cfg.ScanTimeout())
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("no UART devices found")
		return nil
	}

	fmt.Printf("%-24s %-28s %s\n", "NAME", "ADDRESS", "RSSI")
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("%-24s %-28s %d\n", name, d.Address, d.RSSI)
	}
	return nil
}
