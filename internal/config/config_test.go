package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floorVault/internal/fixedpoint"
	"floorVault/internal/model"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.Interval)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)

	want := model.DefaultParameters()
	assert.True(t, cfg.Params.ShiftRatio.Eq(want.ShiftRatio))
	assert.True(t, cfg.Params.FloorPercentage.Eq(want.FloorPercentage))
	assert.Equal(t, want.TickSpacing, cfg.Params.TickSpacing)
	assert.Equal(t, 7*24*time.Hour, cfg.Supply.Period)
	assert.True(t, cfg.Supply.IncludeStaked)
}

func TestLoadPrecedence(t *testing.T) {
	dir := chdirTemp(t)
	file := filepath.Join(dir, "keeper.yaml")
	require.NoError(t, os.WriteFile(file, []byte(
		"rpc: http://file\nshift-ratio: \"0.85\"\nauthority: \"0x01, 0x02\"\ninterval: 30s\n"), 0o644))

	t.Setenv("KEEPER_PRIVATE_KEY", "deadbeef")
	t.Setenv("KEEPER_SLIDE_RATIO", "1.2")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	require.NoError(t, flags.Parse([]string{"--rpc", "http://flag"}))

	cfg, err := Load(file, flags)
	require.NoError(t, err)

	assert.Equal(t, "http://flag", cfg.RPCURL)
	assert.Equal(t, "deadbeef", cfg.PrivateKey)
	assert.Equal(t, []string{"0x01", "0x02"}, cfg.Authorities)
	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.Equal(t, "0.85", fixedpoint.FormatWad(cfg.Params.ShiftRatio))
	assert.Equal(t, "1.2", fixedpoint.FormatWad(cfg.Params.SlideRatio))

	redacted := cfg.Redacted()
	assert.Equal(t, "***", redacted.PrivateKey)
	assert.Equal(t, "deadbeef", cfg.PrivateKey)
}

func TestLoadRejectsBadParameters(t *testing.T) {
	chdirTemp(t)

	t.Setenv("KEEPER_SHIFT_RATIO", "not-a-number")
	_, err := Load("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shift-ratio")

	t.Setenv("KEEPER_SHIFT_RATIO", "0.9")
	t.Setenv("KEEPER_VOL_MEDIUM", "0.1")
	_, err = Load("", nil)
	assert.ErrorIs(t, err, model.ErrInvalidThresholds)
}

func TestLoadSimulate(t *testing.T) {
	chdirTemp(t)
	t.Setenv("KEEPER_PATH", "1.5, 0.8")

	cfg, err := LoadSimulate("", nil)
	require.NoError(t, err)
	require.Len(t, cfg.Path, 2)
	assert.Equal(t, "1.5", fixedpoint.FormatWad(cfg.Path[0]))
	assert.True(t, cfg.TotalSupply.Eq(fixedpoint.Units(1_000_000)))

	t.Setenv("KEEPER_PATH", "1,0")
	_, err = LoadSimulate("", nil)
	assert.Error(t, err)
}

func TestLoadRewards(t *testing.T) {
	chdirTemp(t)
	for key, value := range map[string]string{
		"KEEPER_ETH_AMOUNT":   "10",
		"KEEPER_IMV":          "2",
		"KEEPER_CIRCULATING":  "500",
		"KEEPER_TOTAL_SUPPLY": "1000",
		"KEEPER_VOLATILITY":   "0",
	} {
		t.Setenv(key, value)
	}

	cfg, err := LoadRewards("", nil)
	require.NoError(t, err)
	assert.True(t, cfg.Params.IMV.Eq(fixedpoint.Units(2)))
	assert.Equal(t, "0.1", fixedpoint.FormatWad(cfg.Params.Kr))
	assert.Empty(t, cfg.Calculator)
}
