package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cmdRepl = &cobra.Command{
	Use:   "repl",
	Short: "Interactive line-oriented session with the device",
	Long: `Read lines from stdin, send each to the device, and print whatever
output it produces. Exit with Ctrl-D.`,
	RunE: runRepl,
}

func init() {
	rootCmd.AddCommand(cmdRepl)
}

func runRepl(cmd *cobra.Command, args []string) error {
	session := newSession()
	defer session.Close()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			ctx, cancel := context.WithTimeout(context.Background(), flagTimeout)
			resp, err := session.Request(ctx, line+"\n")
			cancel()
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			} else if resp != "" {
				fmt.Print(resp)
				if resp[len(resp)-1] != '\n' {
					fmt.Println()
				}
			}
		}
		fmt.Print("> ")
	}
	fmt.Println()
	return scanner.Err()
}
