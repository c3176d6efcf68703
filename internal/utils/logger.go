package utils

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogFileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// InitLogger installs the global zerolog logger. Console output goes to
// stderr; when a log file is configured, JSON lines are also written to a
// rotating file.
func InitLogger(debug bool, file LogFileConfig) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	var output io.Writer = zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.DateTime,
	}
	if file.Path != "" {
		output = zerolog.MultiLevelWriter(output, &lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    max(file.MaxSizeMB, 1),
			MaxBackups: file.MaxBackups,
			MaxAge:     file.MaxAgeDays,
			Compress:   true,
		})
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
