package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New - 서비스 기본 로거 생성 (development 환경은 콘솔 출력, 그 외 JSON)
func New(appEnv string) zerolog.Logger {
	return NewWithWriter(os.Stdout, appEnv)
}

// NewWithWriter - 출력 대상을 지정해서 로거 생성
func NewWithWriter(w io.Writer, appEnv string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()
}
