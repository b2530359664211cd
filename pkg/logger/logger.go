package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level = zapcore.Level

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
	FatalLevel = zapcore.FatalLevel
)

// Logger is a named sugared logger. It satisfies the Logger interfaces used
// by the http middlewares.
type Logger struct {
	*zap.SugaredLogger
}

var (
	rootOnce sync.Once
	root     *zap.Logger
	level    = zap.NewAtomicLevelAt(InfoLevel)
)

// Root returns the process wide logger. The format is picked from LOG_FORMAT
// (json or console) and the initial level from LOG_LEVEL.
func Root() *zap.Logger {
	rootOnce.Do(func() {
		if lvl, err := zapcore.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
			level.SetLevel(lvl)
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "ts"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

		var enc zapcore.Encoder
		if strings.EqualFold(os.Getenv("LOG_FORMAT"), "console") {
			encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
			enc = zapcore.NewConsoleEncoder(encCfg)
		} else {
			enc = zapcore.NewJSONEncoder(encCfg)
		}
		core := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level)
		root = zap.New(core, zap.AddCaller(), zap.AddStacktrace(ErrorLevel))
	})
	return root
}

// SetLevel changes the level of every logger created by this package.
func SetLevel(lvl string) error {
	parsed, err := zapcore.ParseLevel(lvl)
	if err != nil {
		return err
	}
	level.SetLevel(parsed)
	return nil
}

func MustNamed(name string) *Logger {
	if name == "" {
		panic("logger name is required")
	}
	return &Logger{Root().Named(name).Sugar()}
}

func (l *Logger) Unwrap() *zap.SugaredLogger {
	return l.SugaredLogger
}

// Reflect is a lazily serialized field for values without a cheap String form.
func Reflect(key string, value any) zap.Field {
	return zap.Reflect(key, value)
}

func Sync() {
	if root != nil {
		_ = root.Sync()
	}
}
