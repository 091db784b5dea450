package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gpflash/internal/common/fsutil"
	"gpflash/internal/config"
)

const defaultLogName = "gpflash.log"

// newLogger builds the process logger. Console mode writes human-readable
// lines to stderr; otherwise the terminal belongs to the UI and records go
// to a file under the firmware directory.
func newLogger(cfg config.Config, console bool, stderr io.Writer) (zerolog.Logger, func() error, error) {
	level := parseLevel(cfg.LogLevel)
	var writers []io.Writer
	if console {
		writers = append(writers, zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen})
	}
	path := cfg.LogFile
	if path == "" && !console {
		path = filepath.Join(cfg.FirmwareDir, defaultLogName)
	}
	closeFn := func() error { return nil }
	if path != "" {
		if _, err := fsutil.EnsureDir(filepath.Dir(path)); err != nil {
			return zerolog.Nop(), closeFn, err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), closeFn, err
		}
		writers = append(writers, f)
		closeFn = f.Close
	}
	log := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Str("app", "gpflash").
		Logger()
	return log, closeFn, nil
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
