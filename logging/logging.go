// Package logging provides leveled console output for the coordination
// engine. Events published through the events package are the structured
// record; this package provides optional real-time output for monitoring.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// rank orders levels for filtering. Unknown levels sort above ERROR so
// a misconfigured minimum drops everything rather than everything
// passing.
func (lv Level) rank() int {
	switch lv {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 4
	}
}

// Logger writes leveled key=value lines. Engine components share one
// logger, differing only by component tag.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
}

// New creates a Logger writing to stdout at INFO level.
func New() *Logger {
	return &Logger{output: os.Stdout, minLevel: LevelInfo}
}

// Discard creates a Logger that drops everything. Components accept a
// nil logger and substitute this.
func Discard() *Logger {
	return &Logger{output: io.Discard, minLevel: LevelError}
}

// WithComponent returns a new logger tagging each line with the
// component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{output: l.output, minLevel: l.minLevel, component: component}
}

// SetLevel sets the minimum level written.
func (l *Logger) SetLevel(level Level) { l.minLevel = level }

// SetOutput redirects output away from stdout.
func (l *Logger) SetOutput(w io.Writer) { l.output = w }

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields renders fields as " k=v" pairs in key order, so the same
// call always produces the same line.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}

// log writes one line: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if level.rank() < l.minLevel.rank() {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-5s %s ", level, time.Now().UTC().Format("2006-01-02T15:04:05.000Z"))
	if l.component != "" {
		fmt.Fprintf(&b, "[%s] ", l.component)
	}
	b.WriteString(msg)
	if len(fields) > 0 && fields[0] != nil {
		b.WriteString(formatFields(fields[0]))
	}
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	io.WriteString(l.output, b.String())
}

// --- Coordination-derived logging methods ---
// Called by engine components after state transitions. They provide
// real-time console output without duplicating event payloads.

// DependencyStatus logs a dependency status transition.
func (l *Logger) DependencyStatus(depID, status string) {
	l.Debug("dependency_status", map[string]interface{}{
		"dependency": depID,
		"status":     status,
	})
}

// DependencyBlocked logs a dependency entering blocked state.
func (l *Logger) DependencyBlocked(depID, impact string) {
	l.Warn("dependency_blocked", map[string]interface{}{
		"dependency": depID,
		"impact":     impact,
	})
}

// RebalancePass logs the outcome of a resource rebalance.
func (l *Logger) RebalancePass(resourceID string, before, after float64) {
	l.Info("rebalance", map[string]interface{}{
		"resource": resourceID,
		"before":   fmt.Sprintf("%.2f", before),
		"after":    fmt.Sprintf("%.2f", after),
	})
}

// SyncCheck logs a synchronization point check result.
func (l *Logger) SyncCheck(pointID, status string, completed, total int) {
	l.Debug("sync_check", map[string]interface{}{
		"point":     pointID,
		"status":    status,
		"completed": completed,
		"total":     total,
	})
}

// SyncTerminal logs a synchronization point reaching terminal state.
func (l *Logger) SyncTerminal(pointID, status string) {
	l.Info("sync_terminal", map[string]interface{}{
		"point":  pointID,
		"status": status,
	})
}

// ContextChange logs an accepted shared-context mutation.
func (l *Logger) ContextChange(contextID, changeType string, version int) {
	l.Debug("context_change", map[string]interface{}{
		"context": contextID,
		"type":    changeType,
		"version": version,
	})
}

// ConflictDetected logs a detected concurrent-edit conflict.
func (l *Logger) ConflictDetected(conflictID, contextID string, changes int) {
	l.Warn("conflict_detected", map[string]interface{}{
		"conflict": conflictID,
		"context":  contextID,
		"changes":  changes,
	})
}
