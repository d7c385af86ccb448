// Package logging provides the leveled logger sink the core writes task
// transitions, restarts, and health alerts to.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Logger is the sink consumed by the scheduler core. Implementations must
// be safe for concurrent use.
type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	Close() error
}

// Console writes colored, timestamped lines to a writer.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

var (
	infoTag  = color.New(color.FgCyan).Sprint("INFO ")
	warnTag  = color.New(color.FgYellow).Sprint("WARN ")
	errorTag = color.New(color.FgRed, color.Bold).Sprint("ERROR")
)

// NewConsole creates a console logger. A nil writer defaults to stderr.
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stderr
	}
	return &Console{out: out}
}

func (c *Console) write(tag, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s %s %s\n", time.Now().Format("15:04:05.000"), tag, fmt.Sprintf(format, args...))
}

func (c *Console) Info(format string, args ...any)  { c.write(infoTag, format, args...) }
func (c *Console) Warn(format string, args ...any)  { c.write(warnTag, format, args...) }
func (c *Console) Error(format string, args ...any) { c.write(errorTag, format, args...) }
func (c *Console) Close() error                     { return nil }

// File appends timestamped lines to a log file, creating parent
// directories as needed.
type File struct {
	mu   sync.Mutex
	file *os.File
}

// NewFile opens (or creates) a file logger at path.
func NewFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &File{file: f}, nil
}

func (l *File) write(level, format string, args ...any) {
	if l == nil || l.file == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.file, "[%s] %s %s\n", time.Now().Format(time.RFC3339), level, fmt.Sprintf(format, args...))
	l.file.Sync()
}

func (l *File) Info(format string, args ...any)  { l.write("INFO", format, args...) }
func (l *File) Warn(format string, args ...any)  { l.write("WARN", format, args...) }
func (l *File) Error(format string, args ...any) { l.write("ERROR", format, args...) }

func (l *File) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Nop discards everything. Used in tests and when a sink is optional.
type Nop struct{}

func (Nop) Info(string, ...any)  {}
func (Nop) Warn(string, ...any)  {}
func (Nop) Error(string, ...any) {}
func (Nop) Close() error         { return nil }

// Tee duplicates every line to multiple loggers.
type Tee []Logger

func (t Tee) Info(format string, args ...any) {
	for _, l := range t {
		l.Info(format, args...)
	}
}

func (t Tee) Warn(format string, args ...any) {
	for _, l := range t {
		l.Warn(format, args...)
	}
}

func (t Tee) Error(format string, args ...any) {
	for _, l := range t {
		l.Error(format, args...)
	}
}

func (t Tee) Close() error {
	var firstErr error
	for _, l := range t {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
