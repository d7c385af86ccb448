package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
)

// Command runs a configured shell command for each task of a component.
// The task's ID, name, and component are exposed to the command through
// environment variables.
type Command struct {
	Name string   // Binary name
	Args []string // Fixed arguments
	Dir  string   // Working directory ("" = inherit)
}

// Run executes the command and returns its stdout as the result output.
// A non-zero exit becomes an error with stderr context attached.
func (c *Command) Run(ctx context.Context, component string, payload Payload) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	// Own process group, so cancellation can take the whole subtree down.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.Env = append(cmd.Environ(),
		"FOREMAN_TASK_ID="+payload.TaskID,
		"FOREMAN_TASK_NAME="+payload.Name,
		"FOREMAN_COMPONENT="+component,
	)

	stdout, stderr, err := drainCommand(cmd)
	if err != nil {
		if len(stderr) > 0 {
			return Result{}, fmt.Errorf("command failed: %w (stderr: %s)", err, bytes.TrimSpace(stderr))
		}
		return Result{}, fmt.Errorf("command failed: %w", err)
	}

	return Result{Output: string(bytes.TrimSpace(stdout))}, nil
}

// drainCommand starts cmd and reads both pipes concurrently before calling
// Wait. Draining first prevents a deadlock when subprocess output exceeds
// the pipe buffer.
func drainCommand(cmd *exec.Cmd) (stdout, stderr []byte, err error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start: %w", err)
	}

	var wg sync.WaitGroup
	var stdoutBuf, stderrBuf bytes.Buffer
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(&stdoutBuf, stdoutPipe)
	}()
	go func() {
		defer wg.Done()
		io.Copy(&stderrBuf, stderrPipe)
	}()
	wg.Wait()

	waitErr := cmd.Wait()
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), waitErr
}
