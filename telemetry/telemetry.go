// Package telemetry exports coordination events and traces to external
// collectors.
package telemetry

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/taskmesh/coordkit/events"
)

// Exporter receives coordination events for out-of-process analysis.
type Exporter interface {
	// LogEvent records one event. Implementations must be safe for
	// concurrent use; they are called from notifier delivery.
	LogEvent(name string, data map[string]interface{})
	// Flush sends any buffered data.
	Flush() error
	// Close flushes and releases the exporter.
	Close() error
}

// Event is the wire form of an exported coordination event.
type Event struct {
	Name      string                 `json:"name"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewExporter builds an exporter for the configured protocol: "http"
// posts JSON batches to the endpoint, "file" appends JSON lines to the
// endpoint path, and "noop" (or empty) discards everything.
func NewExporter(protocol, endpoint string) (Exporter, error) {
	switch protocol {
	case "http":
		return NewHTTPExporter(endpoint), nil
	case "file":
		return NewFileExporter(endpoint)
	case "noop", "":
		return NewNoopExporter(), nil
	default:
		return nil, fmt.Errorf("unknown telemetry protocol: %s", protocol)
	}
}

// Attach subscribes an exporter to every coordination event published
// through the notifier. Unsubscribe to detach.
func Attach(notifier *events.Notifier, exp Exporter) events.Subscription {
	return notifier.SubscribeAll(func(ev events.Event) {
		exp.LogEvent(string(ev.Kind), map[string]interface{}{
			"entity":      ev.Entity,
			"entity_type": ev.EntityType,
			"priority":    ev.Priority.String(),
			"agents":      ev.Agents,
		})
	})
}

const httpBatchSize = 100

// HTTPExporter batches events and posts them as a JSON array. A batch
// is sent when it reaches httpBatchSize events or on Flush/Close.
type HTTPExporter struct {
	mu       sync.Mutex
	endpoint string
	client   *http.Client
	pending  []Event
}

// NewHTTPExporter creates an exporter posting to the given URL.
func NewHTTPExporter(endpoint string) *HTTPExporter {
	return &HTTPExporter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (e *HTTPExporter) LogEvent(name string, data map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pending = append(e.pending, Event{Name: name, Timestamp: time.Now(), Data: data})
	if len(e.pending) >= httpBatchSize {
		e.sendLocked()
	}
}

// Flush posts the pending batch, if any.
func (e *HTTPExporter) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sendLocked()
}

// Close flushes the last batch.
func (e *HTTPExporter) Close() error { return e.Flush() }

func (e *HTTPExporter) sendLocked() error {
	if len(e.pending) == 0 {
		return nil
	}
	body, err := json.Marshal(e.pending)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("telemetry endpoint returned %d", resp.StatusCode)
	}

	e.pending = e.pending[:0]
	return nil
}

// FileExporter appends events to a file as JSON lines.
type FileExporter struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
	enc  *json.Encoder
}

// NewFileExporter creates (or appends to) the journal at path.
func NewFileExporter(path string) (*FileExporter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open telemetry file: %w", err)
	}
	w := bufio.NewWriter(file)
	return &FileExporter{file: file, w: w, enc: json.NewEncoder(w)}, nil
}

func (e *FileExporter) LogEvent(name string, data map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enc.Encode(Event{Name: name, Timestamp: time.Now(), Data: data})
}

// Flush writes buffered lines through to disk.
func (e *FileExporter) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.w.Flush(); err != nil {
		return err
	}
	return e.file.Sync()
}

// Close flushes and closes the underlying file.
func (e *FileExporter) Close() error {
	if err := e.Flush(); err != nil {
		e.file.Close()
		return err
	}
	return e.file.Close()
}

// NoopExporter discards everything.
type NoopExporter struct{}

// NewNoopExporter returns an exporter that drops all events.
func NewNoopExporter() *NoopExporter { return &NoopExporter{} }

func (*NoopExporter) LogEvent(string, map[string]interface{}) {}
func (*NoopExporter) Flush() error                            { return nil }
func (*NoopExporter) Close() error                            { return nil }
