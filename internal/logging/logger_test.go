package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/sensorlink/internal/config"
)

func TestProdLoggerWritesJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	cfg := config.Config{AppEnv: "prod", LogLevel: slog.LevelInfo}

	log := newTo(&buf, cfg, "1.2.0", "sensorlink")
	log.Debug("hidden")
	log.Info("session up", "state", "AUTHENTICATED")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "session up", rec["msg"])
	assert.Equal(t, "sensorlink", rec["app"])
	assert.Equal(t, "1.2.0", rec["version"])
	assert.Equal(t, "prod", rec["env"])
	assert.Equal(t, "AUTHENTICATED", rec["state"])
}

func TestDevLoggerIsText(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	cfg := config.Config{AppEnv: "dev", LogLevel: slog.LevelDebug}

	newTo(&buf, cfg, "dev", "sensorlink").Debug("frame", "kind", "gas")

	out := buf.String()
	assert.Contains(t, out, "frame")
	assert.Contains(t, out, "kind=")
	assert.False(t, json.Valid(buf.Bytes()))
}
