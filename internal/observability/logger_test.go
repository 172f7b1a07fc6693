package observability

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	messages []string
}

func (r *recordingLogger) Debug(msg string, _ ...Field) { r.messages = append(r.messages, msg) }
func (r *recordingLogger) Info(msg string, _ ...Field)  { r.messages = append(r.messages, msg) }
func (r *recordingLogger) Error(msg string, _ ...Field) { r.messages = append(r.messages, msg) }

func TestSetLoggerOverridesGlobal(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	rec := new(recordingLogger)
	SetLogger(rec)
	Log().Info("hello")

	require.Equal(t, []string{"hello"}, rec.messages)
}

func TestSetLoggerNilRestoresNoop(t *testing.T) {
	SetLogger(nil)
	require.NotPanics(t, func() { Log().Error("ignored") })
}

func TestSlogLoggerEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	logger.Info("event published", F("topic", "order.filled"))

	require.Contains(t, buf.String(), "event published")
	require.Contains(t, buf.String(), "topic=order.filled")
}
