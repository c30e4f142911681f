package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convenios/internal/common/logging"
	"convenios/internal/common/types"
)

func setupBuffer(t *testing.T, cfg logging.Config) *bytes.Buffer {
	t.Helper()
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer
	cfg.Output = &buf
	logging.Setup(cfg)
	return &buf
}

func TestContextAttributes(t *testing.T) {
	buf := setupBuffer(t, logging.Config{Level: "debug", Format: "json", Service: "convenios"})

	ctx := logging.WithCorrelationID(context.Background(), types.CorrelationID("corr-1"))
	ctx = logging.WithConvenioID(ctx, 42)

	logging.InfoContext(ctx, "Consumo recalculado", "tickets", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "corr-1", entry["correlation_id"])
	assert.EqualValues(t, 42, entry["convenio_id"])
	assert.EqualValues(t, 3, entry["tickets"])
	assert.Equal(t, "convenios", entry["service"])
	assert.Equal(t, "Consumo recalculado", entry["msg"])
}

func TestPlainSlogCallsCarryContext(t *testing.T) {
	buf := setupBuffer(t, logging.Config{Format: "json"})

	ctx := logging.WithConvenioID(context.Background(), 7)
	slog.Default().With("job", "sweep").WarnContext(ctx, "Convenio vencido")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.EqualValues(t, 7, entry["convenio_id"])
	assert.Equal(t, "sweep", entry["job"])
	assert.NotContains(t, entry, "correlation_id")
	assert.NotContains(t, entry, "service")
}

func TestSetupLevel(t *testing.T) {
	buf := setupBuffer(t, logging.Config{Level: "warn", Format: "text"})

	logging.Info("dropped")
	logging.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}
