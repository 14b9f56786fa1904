package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cmdEval = &cobra.Command{
	Use:   "eval <expression>",
	Short: "Evaluate an expression on the device and print the result",
	Long: `Evaluate a JavaScript expression on the device's interpreter and
print its JSON-serialized result, e.g.:

  bleuart eval "E.getTemperature()"`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(cmdEval)
}

func runEval(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), flagTimeout)
	defer cancel()

	session := newSession()
	defer session.Close()

	result, err := session.Eval(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(result)
	return nil
}
