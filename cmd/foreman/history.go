package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aristath/foreman/internal/config"
	"github.com/aristath/foreman/internal/persistence"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List past runs, or show one run in detail",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadDefault()
		if err != nil {
			return invalidConfig(err)
		}

		ctx := context.Background()
		store, err := openStore(ctx, cfg)
		if err != nil {
			return invalidConfig(err)
		}
		defer store.Close()

		if len(args) == 1 {
			return showRun(ctx, store, args[0])
		}
		return listRuns(ctx, store)
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to list")
}

func listRuns(ctx context.Context, store persistence.Store) error {
	runs, err := store.ListRuns(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	for _, run := range runs {
		state := color.GreenString(run.State)
		if run.State != "done" {
			state = color.RedString(run.State)
		}
		fmt.Printf("%s  %s  %s  %d/%d tasks  %s\n",
			run.ID, run.StartedAt.Format(time.RFC3339), state,
			run.Completed, run.Total, run.Plan)
	}
	return nil
}

func showRun(ctx context.Context, store persistence.Store, runID string) error {
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s (%s)\n", run.ID, run.State)
	fmt.Printf("  Plan:     %s\n", run.Plan)
	fmt.Printf("  Started:  %s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Printf("  Duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	fmt.Printf("  Tasks:    %d completed, %d failed of %d\n\n", run.Completed, run.Failed, run.Total)

	for _, task := range run.Tasks {
		agent := "-"
		if task.AgentID >= 0 {
			agent = fmt.Sprintf("agent-%d", task.AgentID)
		}
		line := fmt.Sprintf("  %-8s %-28s %-10s %-8s  %s",
			task.TaskID, task.Name, task.Status, agent,
			task.Duration.Round(time.Millisecond))
		if task.Detail != "" {
			line += "  " + task.Detail
		}
		fmt.Println(line)
	}

	fmt.Println()
	for _, agent := range run.Agents {
		fmt.Printf("  %-10s %-8s %d completed, %d failed, %d restarts\n",
			agent.Name, agent.State, agent.TasksCompleted, agent.TasksFailed, agent.Restarts)
	}

	alerts, err := store.ListAlerts(ctx, runID)
	if err != nil {
		return err
	}
	if len(alerts) > 0 {
		fmt.Println()
		color.Red("  Health alerts:")
		for _, alert := range alerts {
			fmt.Printf("    %s  %s: %s\n",
				alert.CreatedAt.Format(time.RFC3339), alert.AgentName, alert.Reason)
		}
	}
	return nil
}
