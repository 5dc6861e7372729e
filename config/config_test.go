package config

import (
	"path/filepath"
	"testing"

	"github.com/btcsuite/btclog"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, defaultDataDirname, cfg.DataDir)
	require.Equal(t, filepath.Join(defaultDataDirname, "logs"), cfg.LogDir)
	require.Equal(t, defaultLogLevel, cfg.LogLevel)
	require.Equal(t, defaultMaxPendingReqs, cfg.MaxPendingRequests)
}

func TestLoadHonorsFlagOverrides(t *testing.T) {
	cfg, err := Load([]string{"--datadir=/tmp/custom", "--loglevel=debug"})
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom", cfg.DataDir)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLogFileJoinsLogDir(t *testing.T) {
	cfg := &Config{LogDir: "/var/log/offchain"}
	require.Equal(t, "/var/log/offchain/offchain.log", cfg.LogFile())
}

func TestParsedLogLevelFallsBackToInfo(t *testing.T) {
	cfg := &Config{LogLevel: "not-a-real-level"}
	require.Equal(t, btclog.LevelInfo, cfg.ParsedLogLevel())
}
