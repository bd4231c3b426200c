package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup настраивает глобальный zerolog логгер.
// В development пишем человекочитаемый вывод, в production - JSON строки.
func Setup(environment string) {
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stdout
	level := zerolog.InfoLevel
	if environment != "production" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
		level = zerolog.DebugLevel
	}

	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}
