package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONToRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	log := New(Config{Level: "debug", Format: "json", Output: path, MaxSize: 1})

	log.WithComponent("grid").WithField("rank", 2).Debug("Ордер поставлен.")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &line))
	assert.Equal(t, "grid", line["component"])
	assert.Equal(t, float64(2), line["rank"])
	assert.Equal(t, "debug", line["level"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, parseLevel("warning"))
	assert.Equal(t, logrus.InfoLevel, parseLevel(""))
	assert.Equal(t, logrus.InfoLevel, parseLevel("nonsense"))
}

func TestWrap_Helpers(t *testing.T) {
	base, hook := test.NewNullLogger()
	log := Wrap(base)

	log.WithSymbol("BTC_JPY").Info("a")
	log.WithOrderID("JRF1").Info("b")

	require.Len(t, hook.AllEntries(), 2)
	assert.Equal(t, "BTC_JPY", hook.AllEntries()[0].Data["symbol"])
	assert.Equal(t, "JRF1", hook.LastEntry().Data["order_id"])
}
