// Package config defines the process-level configuration surface,
// parsed with jessevdk/go-flags the way btcd's own config.go does:
// command-line flags layered over an INI file layered over defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename    = "offchain.conf"
	defaultDataDirname       = "data"
	defaultLogFilename       = "offchain.log"
	defaultLogLevel          = "info"
	defaultMaxLogRolls       = 10
	defaultRetransmitSeconds = 30
	defaultObligationSeconds = 10
	defaultMaxPendingReqs    = 256
)

// Config is the process configuration (spec §9.2). cmd/vaspsim reads
// DataDir and the logging fields; the retransmit and obligation
// intervals, MaxPendingRequests and SealKeyHex are parsed but nothing in
// this module reads them, so no limit is placed on deferred requests and
// no watchdog or retry sweep is started from them.
type Config struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`

	DataDir string `short:"b" long:"datadir" description:"Directory to store channel and obligation-log state"`
	LogDir  string `long:"logdir" description:"Directory to log output"`

	LogLevel string `long:"loglevel" description:"Logging level: trace, debug, info, warn, error, critical"`

	RetransmitIntervalSeconds int `long:"retransmitinterval" description:"Seconds between channel watchdog retransmission sweeps"`
	ObligationIntervalSeconds int `long:"obligationinterval" description:"Seconds between obligation-log retry sweeps"`
	MaxPendingRequests        int `long:"maxpendingrequests" description:"Maximum requests a channel will defer behind a racing own proposal"`

	SealKeyHex string `long:"sealkey" description:"Hex-encoded 32-byte key sealing the obligation log at rest"`
}

// defaultConfig returns a Config populated with the same defaults btcd's
// loadConfig seeds before flag/INI parsing overrides them.
func defaultConfig() Config {
	return Config{
		ConfigFile:                defaultConfigFilename,
		DataDir:                   defaultDataDirname,
		LogDir:                    filepath.Join(defaultDataDirname, "logs"),
		LogLevel:                  defaultLogLevel,
		RetransmitIntervalSeconds: defaultRetransmitSeconds,
		ObligationIntervalSeconds: defaultObligationSeconds,
		MaxPendingRequests:        defaultMaxPendingReqs,
	}
}

// Load parses command-line arguments (and, if present, an INI config
// file) into a Config, applying defaults for anything unset.
func Load(args []string) (*Config, error) {
	cfg := defaultConfig()

	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default|flags.IgnoreUnknown)
	if _, err := preParser.ParseArgs(args); err != nil {
		return nil, err
	}

	if preCfg.ConfigFile != "" {
		if _, err := os.Stat(preCfg.ConfigFile); err == nil {
			iniParser := flags.NewParser(&cfg, flags.Default)
			if err := flags.NewIniParser(iniParser).ParseFile(preCfg.ConfigFile); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", preCfg.ConfigFile, err)
			}
		}
	}

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDirname
	}
	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(cfg.DataDir, "logs")
	}
	return &cfg, nil
}

// LogFile returns the path logging.InitLogRotator should write to.
func (c *Config) LogFile() string {
	return filepath.Join(c.LogDir, defaultLogFilename)
}

// MaxLogRolls is the fixed backup-file count; not currently
// user-configurable, matching btcd's own hardcoded maxLogRolls.
func (c *Config) MaxLogRolls() int { return defaultMaxLogRolls }

// ParsedLogLevel resolves LogLevel into a btclog.Level, defaulting to
// Info on an unrecognized value rather than failing startup over a typo.
func (c *Config) ParsedLogLevel() btclog.Level {
	level, ok := btclog.LevelFromString(c.LogLevel)
	if !ok {
		return btclog.LevelInfo
	}
	return level
}
