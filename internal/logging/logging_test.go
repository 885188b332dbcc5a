package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	defer logrus.SetOutput(os.Stderr)
	defer logrus.SetLevel(logrus.InfoLevel)

	log, c, err := Setup(Options{Level: "debug"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.NoError(t, c.Close())

	_, _, err = Setup(Options{Level: "loud"})
	assert.Error(t, err)
	_, _, err = Setup(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestSetup_file(t *testing.T) {
	defer logrus.SetOutput(os.Stderr)
	defer logrus.SetFormatter(&logrus.TextFormatter{})
	path := filepath.Join(t.TempDir(), "logs", "epgnorm.log")
	log, c, err := Setup(Options{File: path, Format: "json"})
	require.NoError(t, err)
	log.WithField("component", "test").Info("hello")
	require.NoError(t, c.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"component":"test"`)
}
