// Package logging wires every package's btclog.Logger to a shared,
// rotating backend, the way btcd's top-level log.go does for its own
// subsystems.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"

	"github.com/vasp-network/offchain/channel"
	"github.com/vasp-network/offchain/executor"
	"github.com/vasp-network/offchain/processor"
)

// logWriter implements io.Writer and writes to both stdout and the
// rotator, matching btcd's split console/file sink.
type logWriter struct {
	rotator *rotator.Rotator
}

func (w logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	return w.rotator.Write(p)
}

var (
	backendLog *btclog.Backend
	logRotator *rotator.Rotator
)

// subsystems maps a short subsystem tag to the UseLogger hook that
// installs a configured logger for it.
var subsystems = map[string]func(btclog.Logger){
	"EXEC": executor.UseLogger,
	"PROC": processor.UseLogger,
	"CHAN": channel.UseLogger,
}

// InitLogRotator creates a rotating file logger at logFile, with up to
// maxRolls backup files, and wires every subsystem's logger to it at
// level (spec §9.1).
func InitLogRotator(logFile string, maxRolls int, level btclog.Level) error {
	logDir := filepath.Dir(logFile)
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return fmt.Errorf("logging: creating log directory: %w", err)
	}

	r, err := rotator.New(logFile, 10*1024, false, maxRolls)
	if err != nil {
		return fmt.Errorf("logging: creating log rotator: %w", err)
	}
	logRotator = r

	backendLog = btclog.NewBackend(logWriter{rotator: r})
	SetLevel(level)
	return nil
}

// SetLevel re-levels every wired subsystem, and is safe to call again at
// runtime (e.g. in response to a config reload).
func SetLevel(level btclog.Level) {
	if backendLog == nil {
		return
	}
	for tag, use := range subsystems {
		l := backendLog.Logger(tag)
		l.SetLevel(level)
		use(l)
	}
}

// Close flushes and releases the underlying log file.
func Close() {
	if logRotator != nil {
		logRotator.Close()
	}
}
