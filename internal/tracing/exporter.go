package tracing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var errExporterClosed = errors.New("run exporter is shut down")

// RunRecord is one JSONL line: an execution span flattened into the run it
// describes. Attributes xh does not set land in Extra.
type RunRecord struct {
	RunID      string         `json:"run_id,omitempty"`
	Command    string         `json:"command"`
	Argv       []string       `json:"argv,omitempty"`
	Mode       string         `json:"mode,omitempty"`
	PID        int64          `json:"pid,omitempty"`
	ExitCode   *int64         `json:"exit_code,omitempty"` // nil when the program never started
	Signaled   bool           `json:"signaled,omitempty"`
	NewSession bool           `json:"new_session,omitempty"`
	Failed     bool           `json:"failed"`
	Error      string         `json:"error,omitempty"`
	Start      time.Time      `json:"start"`
	DurationMs float64        `json:"duration_ms"`
	TraceID    string         `json:"trace_id"`
	SpanID     string         `json:"span_id"`
	Events     []RunEvent     `json:"events,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// RunEvent is a span event, timed relative to the start of the run.
type RunEvent struct {
	Name     string         `json:"name"`
	OffsetMs float64        `json:"offset_ms"`
	Stream   string         `json:"stream,omitempty"`
	Detail   map[string]any `json:"detail,omitempty"`
}

// FileExporter appends one RunRecord per finished execution span to a
// JSONL file. It implements sdktrace.SpanExporter.
type FileExporter struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileExporter opens path for appending, creating its directory.
func NewFileExporter(path string) (*FileExporter, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create trace directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // G304: configured trace path
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return &FileExporter{file: f, enc: json.NewEncoder(f)}, nil
}

// ExportSpans writes a record for each span.
func (e *FileExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file == nil {
		return errExporterClosed
	}
	for _, span := range spans {
		if err := e.enc.Encode(NewRunRecord(span)); err != nil {
			return fmt.Errorf("write run record: %w", err)
		}
	}
	return nil
}

// Shutdown closes the file. Later exports fail; a second Shutdown is a no-op.
func (e *FileExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file == nil {
		return nil
	}
	err := e.file.Close()
	e.file, e.enc = nil, nil
	return err
}

// NewRunRecord flattens an execution span.
func NewRunRecord(span sdktrace.ReadOnlySpan) RunRecord {
	start := span.StartTime()
	rec := RunRecord{
		Command:    strings.TrimPrefix(span.Name(), SpanPrefixExec),
		Failed:     span.Status().Code == codes.Error,
		Error:      span.Status().Description,
		Start:      start,
		DurationMs: millis(span.EndTime().Sub(start)),
		TraceID:    span.SpanContext().TraceID().String(),
		SpanID:     span.SpanContext().SpanID().String(),
	}

	for _, kv := range span.Attributes() {
		switch string(kv.Key) {
		case AttrRunID:
			rec.RunID = kv.Value.AsString()
		case AttrCommand:
			rec.Command = kv.Value.AsString()
		case AttrArgv:
			rec.Argv = kv.Value.AsStringSlice()
		case AttrMode:
			rec.Mode = kv.Value.AsString()
		case AttrPID:
			rec.PID = kv.Value.AsInt64()
		case AttrExitCode:
			code := kv.Value.AsInt64()
			rec.ExitCode = &code
		case AttrSignaled:
			rec.Signaled = kv.Value.AsBool()
		case AttrNewSession:
			rec.NewSession = kv.Value.AsBool()
		default:
			if rec.Extra == nil {
				rec.Extra = make(map[string]any)
			}
			rec.Extra[string(kv.Key)] = kv.Value.AsInterface()
		}
	}

	for _, ev := range span.Events() {
		rev := RunEvent{Name: ev.Name, OffsetMs: millis(ev.Time.Sub(start))}
		for _, kv := range ev.Attributes {
			if kv.Key == attribute.Key(AttrStream) {
				rev.Stream = kv.Value.AsString()
				continue
			}
			if rev.Detail == nil {
				rev.Detail = make(map[string]any)
			}
			rev.Detail[string(kv.Key)] = kv.Value.AsInterface()
		}
		rec.Events = append(rec.Events, rev)
	}
	return rec
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
