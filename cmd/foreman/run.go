package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/foreman/internal/config"
	"github.com/aristath/foreman/internal/events"
	"github.com/aristath/foreman/internal/executor"
	"github.com/aristath/foreman/internal/handler"
	"github.com/aristath/foreman/internal/health"
	"github.com/aristath/foreman/internal/logging"
	"github.com/aristath/foreman/internal/orchestrator"
	"github.com/aristath/foreman/internal/persistence"
	"github.com/aristath/foreman/internal/pool"
	"github.com/aristath/foreman/internal/tui"
)

var (
	runNoTUI     bool
	runNumAgents int
	runLogFile   string
)

var runCmd = &cobra.Command{
	Use:   "run <plan.yaml>",
	Short: "Execute a task plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlan(args[0])
	},
}

func init() {
	runCmd.Flags().BoolVar(&runNoTUI, "no-tui", false, "Log to the terminal instead of the dashboard")
	runCmd.Flags().IntVar(&runNumAgents, "agents", 0, "Override the configured agent count")
	runCmd.Flags().StringVar(&runLogFile, "log-file", "", "Override the configured log file")
}

func runPlan(planPath string) error {
	cfg, err := config.LoadDefault()
	if err != nil {
		return invalidConfig(err)
	}
	if runNumAgents > 0 {
		cfg.NumAgents = runNumAgents
	}
	if runLogFile != "" {
		cfg.LogFile = runLogFile
	}
	if err := cfg.Validate(); err != nil {
		return invalidConfig(err)
	}

	plan, err := config.LoadPlan(planPath)
	if err != nil {
		return invalidConfig(err)
	}
	graph, err := plan.Graph()
	if err != nil {
		return invalidConfig(err)
	}

	log, err := buildLogger(cfg, runNoTUI)
	if err != nil {
		return invalidConfig(err)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	defer bus.Close()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return invalidConfig(err)
	}
	defer store.Close()

	runID := uuid.NewString()
	agents := pool.New(cfg.NumAgents, cfg.AgentNames, cfg.MaxRestarts)
	exec := executor.New(executor.Config{
		Handler:           buildHandler(cfg),
		Pool:              agents,
		DefaultTimeout:    cfg.TaskTimeout.Std(),
		HeartbeatInterval: cfg.HeartbeatInterval.Std(),
		Logger:            log,
	})
	runner := orchestrator.NewRunner(orchestrator.Config{
		Executor:     exec,
		Bus:          bus,
		Logger:       log,
		PollInterval: cfg.PollInterval.Std(),
		DrainTimeout: cfg.DrainTimeout.Std(),
	}, graph, agents)
	monitor := health.NewMonitor(health.Config{
		HeartbeatTimeout: cfg.HeartbeatTimeout.Std(),
		CheckInterval:    cfg.HealthCheckInterval.Std(),
		Logger:           log,
		Bus:              bus,
	}, agents, graph)
	relay := persistence.NewRelay(runID, store, log)
	alertSub := bus.Subscribe(events.TopicAgent, 256)

	// The run context ends when the runner finishes or the user quits,
	// whichever comes first; everything else follows it down.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)

	var report *orchestrator.Report
	started := time.Now()
	g.Go(func() error {
		defer cancel()
		var runErr error
		report, runErr = runner.Run(gctx)
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			return runErr
		}
		return nil
	})
	g.Go(func() error {
		if err := monitor.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		relay.Run(gctx, alertSub)
		return nil
	})

	if !runNoTUI {
		p := tea.NewProgram(tui.New(runner.Snapshot, bus), tea.WithAltScreen())
		g.Go(func() error {
			_, err := p.Run()
			cancel()
			return err
		})
		g.Go(func() error {
			<-gctx.Done()
			p.Quit()
			return nil
		})
	}

	waitErr := g.Wait()
	if report == nil {
		if waitErr != nil {
			return waitErr
		}
		return &exitError{code: exitAborted, err: errors.New("run never produced a report")}
	}

	saveReport(store, runID, planPath, report, started, log)
	printSummary(report)

	if !report.Success() {
		return &exitError{code: exitAborted}
	}
	return nil
}

// buildLogger assembles the console and file loggers. With the dashboard
// active the console stays quiet; log lines would tear the screen.
func buildLogger(cfg *config.Config, noTUI bool) (logging.Logger, error) {
	var logs []logging.Logger
	if noTUI {
		logs = append(logs, logging.NewConsole(os.Stderr))
	}
	if cfg.LogFile != "" {
		file, err := logging.NewFile(cfg.LogFile)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		logs = append(logs, file)
	}
	switch len(logs) {
	case 0:
		return logging.Nop{}, nil
	case 1:
		return logs[0], nil
	default:
		return logging.Tee(logs), nil
	}
}

// buildHandler wires configured component commands over the simulated
// fallback.
func buildHandler(cfg *config.Config) handler.TaskHandler {
	registry := handler.NewRegistry(handler.NewSimulated())
	for component, cmd := range cfg.Commands {
		registry.Register(component, &handler.Command{
			Name: cmd.Command,
			Args: cmd.Args,
			Dir:  cmd.Dir,
		})
	}
	return registry
}

func openStore(ctx context.Context, cfg *config.Config) (persistence.Store, error) {
	path := cfg.HistoryDB
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".foreman", "history.db")
	}
	return persistence.NewSQLiteStore(ctx, path)
}

// saveReport persists the run summary. History is best effort; a storage
// failure never changes the run's outcome.
func saveReport(store persistence.Store, runID, planPath string, report *orchestrator.Report, started time.Time, log logging.Logger) {
	record := &persistence.RunRecord{
		ID:         runID,
		Plan:       planPath,
		State:      report.State.String(),
		StartedAt:  started,
		FinishedAt: started.Add(report.Duration),
		Total:      report.Total,
		Completed:  report.Completed,
		Failed:     report.Failed,
	}
	for _, task := range report.Tasks {
		record.Tasks = append(record.Tasks, persistence.TaskRecord{
			TaskID:    task.ID,
			Name:      task.Name,
			Component: task.Component,
			Status:    task.Status.String(),
			AgentID:   task.AgentID,
			Duration:  task.Duration,
			Detail:    task.Detail,
		})
	}
	for _, agent := range report.Agents {
		record.Agents = append(record.Agents, persistence.AgentRecord{
			AgentID:        agent.ID,
			Name:           agent.Name,
			State:          agent.State.String(),
			TasksCompleted: agent.TasksCompleted,
			TasksFailed:    agent.TasksFailed,
			Restarts:       agent.Restarts,
		})
	}

	ctx, cancelSave := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelSave()
	if err := store.SaveRun(ctx, record); err != nil {
		log.Error("save run history: %v", err)
	}
}

func printSummary(report *orchestrator.Report) {
	if report.Success() {
		color.Green("Run complete: %d/%d tasks in %s",
			report.Completed, report.Total, report.Duration.Round(time.Second))
		return
	}

	color.Red("Run aborted: %d completed, %d failed of %d tasks",
		report.Completed, report.Failed, report.Total)
	if len(report.NeverReady) > 0 {
		color.Yellow("Never ready (failed dependencies): %v", report.NeverReady)
	}
	for _, agent := range report.Agents {
		if agent.State == pool.StateFailed {
			color.Yellow("Agent %s lost after %d restarts", agent.Name, agent.Restarts)
		}
	}
}
