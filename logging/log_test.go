package logging

import (
	"bytes"
	"net/http"
	"strconv"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomOutputForApplicationLog(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Options{ApplicationLogOutput: &buf}))
	msg := "Hello, world!"
	log.Info(msg)
	assert.Contains(t, buf.String(), msg)
}

func TestCustomPrefixForApplicationLog(t *testing.T) {
	var buf bytes.Buffer
	prefix := "[TEST_PREFIX]"
	require.NoError(t, Init(Options{
		ApplicationLogOutput: &buf,
		ApplicationLogPrefix: prefix}))
	log.Infof("Hello, world!")
	got := buf.String()
	assert.True(t, len(got) > len(prefix) && got[:len(prefix)] == prefix, got)
	assert.Contains(t, got, "Hello, world!")
}

func TestApplicationLogLevel(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)

	var buf bytes.Buffer
	require.NoError(t, Init(Options{ApplicationLogOutput: &buf, ApplicationLogLevel: "warn"}))
	log.Info("hidden")
	log.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	assert.Error(t, Init(Options{ApplicationLogLevel: "loud"}))
}

func TestApplicationLogJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Options{ApplicationLogOutput: &buf, ApplicationLogJSONEnabled: true}))
	defer log.SetFormatter(&log.TextFormatter{})

	log.Info("json message")
	assert.Contains(t, buf.String(), `"msg":"json message"`)
}

func TestCustomOutputForAccessLog(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Options{AccessLogOutput: &buf}))
	LogAccess(&AccessEntry{StatusCode: http.StatusTeapot}, nil)
	assert.Contains(t, buf.String(), strconv.Itoa(http.StatusTeapot))
}
