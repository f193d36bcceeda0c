package tracing

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.False(t, cfg.Enabled)
	require.Equal(t, "file", cfg.Exporter)
	require.Empty(t, cfg.FilePath)
	require.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	require.Equal(t, 1.0, cfg.SampleRate)
	require.Equal(t, "xh", cfg.ServiceName)
}

func TestNewProvider_DisabledIsNoop(t *testing.T) {
	p, err := NewProvider(Config{Enabled: false, Exporter: "bogus"})
	require.NoError(t, err)
	require.False(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), "exec.noop")
	require.False(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_FileExporterWritesSpan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.jsonl")

	p, err := NewProvider(Config{
		Enabled:    true,
		Exporter:   "file",
		FilePath:   path,
		SampleRate: 1.0,
	})
	require.NoError(t, err)
	require.True(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), SpanPrefixExec+"echo")
	require.True(t, span.SpanContext().IsValid())
	span.SetAttributes(attribute.Int(AttrExitCode, 0))
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
	require.Equal(t, 1, countLines(t, path))
}

func TestNewProvider_StdoutExporterUsesWriter(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewProvider(Config{Enabled: true, Exporter: "stdout", StdoutWriter: &buf})
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "exec.stdout")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	require.Contains(t, buf.String(), "exec.stdout")
}

func TestNewProvider_NoneExporter(t *testing.T) {
	p, err := NewProvider(Config{Enabled: true, Exporter: "none"})
	require.NoError(t, err)
	require.True(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), "exec.none")
	require.True(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_Errors(t *testing.T) {
	_, err := NewProvider(Config{Enabled: true, Exporter: "file"})
	require.ErrorContains(t, err, "file_path required")

	_, err = NewProvider(Config{Enabled: true, Exporter: "zipkin"})
	require.ErrorContains(t, err, "unsupported exporter type")
}

func TestNewProvider_ZeroSampleRateTracesEverything(t *testing.T) {
	p, err := NewProvider(Config{Enabled: true, Exporter: "none", SampleRate: 0})
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	_, span := p.Tracer().Start(context.Background(), "exec.sampled")
	require.True(t, span.SpanContext().IsSampled())
	span.End()
}
