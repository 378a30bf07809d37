package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestConfigure_JSON(t *testing.T) {
	var buf bytes.Buffer
	t.Cleanup(func() { _ = Configure("info", "text", os.Stderr) })

	require.NoError(t, Configure("debug", "json", &buf))
	WithFields(logrus.Fields{"table": "routes"}).Debug("index built")

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	require.Equal(t, "routes", m["table"])
	require.Equal(t, "index built", m["msg"])
}

func TestConfigure_BadInput(t *testing.T) {
	require.Error(t, Configure("loud", "text", nil))
	require.Error(t, Configure("info", "xml", nil))
}
