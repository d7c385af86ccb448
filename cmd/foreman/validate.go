package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aristath/foreman/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate <plan.yaml>",
	Short: "Check a plan without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := config.LoadPlan(args[0])
		if err != nil {
			return invalidConfig(err)
		}
		graph, err := plan.Graph()
		if err != nil {
			return invalidConfig(err)
		}

		order, err := graph.Validate()
		if err != nil {
			return invalidConfig(err)
		}

		color.Green("Plan OK: %d tasks", len(order))
		fmt.Println("Execution order (dependencies permitting):")
		for i, id := range order {
			task, _ := graph.Get(id)
			deps := ""
			if len(task.DependsOn) > 0 {
				deps = fmt.Sprintf("  (after %v)", task.DependsOn)
			}
			fmt.Printf("  %2d. %-8s %s%s\n", i+1, id, task.Name, deps)
		}
		return nil
	},
}
