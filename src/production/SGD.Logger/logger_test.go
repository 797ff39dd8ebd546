package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	config "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Config"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestWithComponentAndDevice(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf).WithComponent("gateway").WithDevice("ESP32_GARDEN_001")

	log.Info("state updated")

	entry := decode(t, &buf)
	assert.Equal(t, "gateway", entry["component"])
	assert.Equal(t, "ESP32_GARDEN_001", entry["device_uid"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "state updated", entry["message"])
}

func TestErrorWithError(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).ErrorWithError(errors.New("broker down"), "publish failed")

	entry := decode(t, &buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "broker down", entry["error"])
}

func TestResolveOutput(t *testing.T) {
	assert.Equal(t, os.Stdout, resolveOutput(""))
	assert.Equal(t, os.Stderr, resolveOutput("stderr"))

	path := filepath.Join(t.TempDir(), "garden.log")
	w := resolveOutput(path)
	f, ok := w.(*os.File)
	require.True(t, ok)
	defer f.Close()
	assert.FileExists(t, path)

	assert.Equal(t, os.Stdout, resolveOutput(filepath.Join(t.TempDir(), "missing", "dir", "x.log")))
}

func TestNewLogger_JSONToFile(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	path := filepath.Join(t.TempDir(), "garden.log")
	log := NewLogger(&config.LoggingConfig{Level: "warn", Format: "json", Output: path})

	log.Info("dropped below level")
	log.Warn("kept")

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "dropped below level")
	assert.Contains(t, string(body), `"message":"kept"`)
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() { Nop().WithDevice("x").Warn("nothing") })
}
