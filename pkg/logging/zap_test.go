// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/siderolabs/storagecfg/pkg/logging"
)

func TestNew(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger, err := logging.New(&buf, "warn", logging.WithoutTimestamp())
	require.NoError(t, err)

	logger.Info("hidden")
	logger.With(logging.Component("solver")).Warn("shown", zap.Int("devices", 2))

	out := buf.String()

	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, `"component": "solver"`)
	assert.Contains(t, out, `"devices": 2`)
}

func TestNewJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger, err := logging.New(&buf, "", logging.WithFormat(logging.FormatJSON))
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("config updated", zap.Uint64("generation", 3))

	var entry map[string]any

	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))

	assert.Equal(t, "config updated", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.EqualValues(t, 3, entry["generation"])
	assert.Contains(t, entry, "ts")
}

func TestNewInvalidLevel(t *testing.T) {
	t.Parallel()

	_, err := logging.New(&bytes.Buffer{}, "loud")
	require.Error(t, err)
}

func TestWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := logging.ZapLogger(logging.NewLogDestination(&buf, zapcore.InfoLevel, logging.WithoutTimestamp()))

	w := logging.NewWriter(logger, zapcore.DebugLevel)
	n, err := w.Write([]byte("dropped\n"))
	require.NoError(t, err)
	assert.Zero(t, n)

	logging.StdLogger(logger, zapcore.WarnLevel).Print("http: TLS handshake error")

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "WARN")
	assert.Contains(t, buf.String(), "http: TLS handshake error")
}
