// internal/observability/logger_test.go
package observability

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/embershell/embershell/internal/config"
)

type memSink struct {
	strings.Builder
}

func (*memSink) Sync() error { return nil }

// TestInitialize covers the pre-init fallback and the one-shot console
// setup in order, since initialization is once per process.
func TestInitialize(t *testing.T) {
	// Before initialization the global logger is a usable no-op.
	require.NotNil(t, GetLogger())
	GetLogger().Info("goes nowhere")

	sink := &memSink{}
	Initialize(config.LoggerConfig{
		Level:       "debug",
		Format:      "json",
		ServiceName: "embershell-test",
	}, zapcore.AddSync(sink))

	GetLogger().Debug("hello from test")
	require.Contains(t, sink.String(), "hello from test")
	require.Contains(t, sink.String(), "embershell-test")

	// A second Initialize is a no-op.
	other := &memSink{}
	Initialize(config.LoggerConfig{Level: "info"}, zapcore.AddSync(other))
	GetLogger().Info("still the first core")
	require.Empty(t, other.String())
	require.Contains(t, sink.String(), "still the first core")
}
