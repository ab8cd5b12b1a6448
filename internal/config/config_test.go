package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileWithEnvSecrets(t *testing.T) {
	t.Setenv("BF_KEY", "k-123")
	t.Setenv("BF_SECRET", "s-456")

	path := writeConfig(t, `
exchange:
  api_key: ${BF_KEY}
  secret: ${BF_SECRET}
  pair: FX_BTC_JPY
order:
  fill_wait: 30s
  max_resubmits: 5
grid:
  legs: 3
  side: sell
runtime:
  mode: grid
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "k-123", cfg.Exchange.ApiKey)
	assert.Equal(t, "s-456", cfg.Exchange.Secret)
	assert.Equal(t, "FX_BTC_JPY", cfg.Exchange.Pair)
	assert.Equal(t, 30*time.Second, cfg.Order.FillWait)
	assert.Equal(t, 5, cfg.Order.MaxResubmits)
	assert.Equal(t, 3, cfg.Grid.Legs)
	assert.Equal(t, "SELL", cfg.Grid.Side)
	assert.Equal(t, ModeGrid, cfg.Runtime.Mode)

	assert.Equal(t, 18*time.Second, cfg.Grid.TickInterval)
	assert.Equal(t, 525600*time.Minute, cfg.Grid.OrderTTL)
	assert.Equal(t, 240*time.Minute, cfg.Breakout.CandleSize)
	assert.Equal(t, "GTC", cfg.Order.TimeInForce)
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "runtime:\n  mode: grid\n")

	flags := Flags()
	require.NoError(t, flags.Parse([]string{"--mode", "backtest", "--dry-run"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, ModeBacktest, cfg.Runtime.Mode)
	assert.True(t, cfg.Runtime.DryRun)
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("BFBOT_BREAKOUT_ENTRY_TERM", "20")
	path := writeConfig(t, "exchange:\n  pair: BTC_JPY\n")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Breakout.EntryTerm)
	assert.Equal(t, 7, cfg.Breakout.CloseTerm)
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, `
runtime:
  mode: breakout
breakout:
  lot: 0
  close_term: 0
`)
	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "breakout.lot")
	assert.Contains(t, err.Error(), "close_term")

	_, err = Load(writeConfig(t, "runtime:\n  mode: scalping\n"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scalping")
}

func TestMissingFileIsAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}
