// Package logging builds the process-wide zerolog.Logger from
// config.LoggingConfig: level parsing, a console-vs-JSON writer choice, and
// the destination fan-out (stdout/stderr/file), per the ambient logging
// contract.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/howard-nolan/llmrouter/internal/config"
)

// New builds a Logger per cfg. An unparseable level falls back to info
// rather than failing startup over a typo in a config file, and an
// unopenable log file falls back to stderr the same way.
func New(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	writer := destinationWriter(cfg)
	if strings.EqualFold(cfg.Format, "console") {
		writer = zerolog.ConsoleWriter{Out: writer}
	}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

func destinationWriter(cfg config.LoggingConfig) io.Writer {
	if len(cfg.Destinations) == 0 {
		return os.Stderr
	}
	var writers []io.Writer
	for _, dest := range cfg.Destinations {
		switch strings.ToLower(dest) {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		case "file":
			f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				writers = append(writers, os.Stderr)
				continue
			}
			writers = append(writers, f)
		}
	}
	if len(writers) == 0 {
		return os.Stderr
	}
	if len(writers) == 1 {
		return writers[0]
	}
	return zerolog.MultiLevelWriter(writers...)
}
