package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes: 0 all tasks completed, 1 run aborted, 2 invalid
// configuration or plan.
const (
	exitOK            = 0
	exitAborted       = 1
	exitInvalidConfig = 2
)

// exitError carries a specific process exit code up to Execute.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func invalidConfig(err error) error {
	return &exitError{code: exitInvalidConfig, err: err}
}

var rootCmd = &cobra.Command{
	Use:   "foreman",
	Short: "Task-graph scheduler with a supervised agent pool",
	Long: `Foreman runs a plan of interdependent tasks across a pool of worker
agents. Tasks start as soon as their dependencies complete, hung agents
are restarted within a per-agent budget, and a live dashboard shows the
run as it happens.

Plans are YAML files; see 'foreman validate' to check one without
running it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and maps errors to exit codes.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			if exit.err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", exit.err)
			}
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitAborted)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}
