// Package logging wires up the coordinator's subsystem loggers: one
// btclog backend, one named logger per package, all independently
// levelled. Mirrors daemon/log.go's structure.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// backendLog is the single backend every subsystem logger writes
// through: stdout only, until InitLogRotator replaces it with one that
// also writes the rotating log file.
var backendLog = btclog.NewBackend(os.Stdout)

var logRotator *rotator.Rotator

// subsystemLoggers maps each subsystem tag to its logger, populated as
// subsystems register via NewSubLogger.
var subsystemLoggers = make(map[string]btclog.Logger)

// NewSubLogger creates (or returns the existing) logger for tag and
// registers it so SetLevel/SetLevels can reach it later.
func NewSubLogger(tag string) btclog.Logger {
	if logger, ok := subsystemLoggers[tag]; ok {
		return logger
	}
	logger := backendLog.Logger(tag)
	subsystemLoggers[tag] = logger
	return logger
}

// InitLogRotator points the backend at a rotating log file in addition
// to stdout, the way daemon/log.go's initLogRotator does.
func InitLogRotator(logFile string, maxSizeKB, maxFiles int) error {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	r, err := rotator.New(logFile, int64(maxSizeKB), false, maxFiles)
	if err != nil {
		return fmt.Errorf("creating log rotator: %w", err)
	}

	pr, pw := io.Pipe()
	go r.Run(pr)

	backendLog = btclog.NewBackend(io.MultiWriter(os.Stdout, pw))
	logRotator = r

	// Re-point already-registered loggers at the new backend. A logger
	// value handed out before this call keeps the old backend; calling
	// NewSubLogger again returns the re-pointed one.
	for tag := range subsystemLoggers {
		subsystemLoggers[tag] = backendLog.Logger(tag)
	}
	return nil
}

// SetLevel sets the logging level for one subsystem. Unknown subsystems
// are ignored, matching daemon/log.go's setLogLevel.
func SetLevel(subsystem, level string) {
	logger, ok := subsystemLoggers[subsystem]
	if !ok {
		return
	}
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		lvl = btclog.LevelInfo
	}
	logger.SetLevel(lvl)
}

// SetLevels sets every registered subsystem to the same level, for the
// config's top-level --debuglevel flag.
func SetLevels(level string) {
	for subsystem := range subsystemLoggers {
		SetLevel(subsystem, level)
	}
}

// Close flushes and closes the log rotator during SIGTERM drain.
func Close() {
	if logRotator != nil {
		logRotator.Close()
	}
}
