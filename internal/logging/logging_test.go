package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileLoggerWritesJSONWithStaticFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewFileLogger("cpu_tracking", &buf)

	log.WithField("cpu0", 12.5).Debug("sample")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "sample", record["message"])
	assert.Equal(t, "cpu_tracking", record[ComponentField])
	assert.NotEmpty(t, record[HostnameField])
	assert.Equal(t, 12.5, record["cpu0"])
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	logger := logrus.New()
	New(logger, "test", false, false)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	New(logger, "test", false, true)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}
