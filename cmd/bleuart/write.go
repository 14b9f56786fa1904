package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var cmdWrite = &cobra.Command{
	Use:   "write <data>...",
	Short: "Send bytes to the device",
	Long: `Send the given data to the device's UART write characteristic.
By default a trailing newline is appended so the interpreter executes the
line; pass --raw to send the bytes exactly as given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWrite,
}

var (
	writeRaw      bool
	writeResponse bool
)

func init() {
	rootCmd.AddCommand(cmdWrite)
	cmdWrite.Flags().BoolVar(&writeRaw, "raw", false, "do not append a trailing newline")
	cmdWrite.Flags().BoolVarP(&writeResponse, "response", "r", false, "collect and print the device's output")
}

func runWrite(cmd *cobra.Command, args []string) error {
	data := strings.Join(args, " ")
	if !writeRaw && !strings.HasSuffix(data, "\n") {
		data += "\n"
	}

	ctx, cancel := context.WithTimeout(context.Background(), flagTimeout)
	defer cancel()

	session := newSession()
	defer session.Close()

	if !writeResponse {
		return session.Send(ctx, data)
	}

	resp, err := session.Request(ctx, data)
	if err != nil {
		return err
	}
	fmt.Print(resp)
	return nil
}
