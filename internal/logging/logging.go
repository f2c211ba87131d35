package logging

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger used across the module.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	With(keysAndValues ...interface{}) Logger
}

// globalLogger starts as an info-level console logger on stderr until the
// command line calls InitLogger with the configured settings.
var globalLogger = newLogger("info", "console", zapcore.Lock(os.Stderr))

// InitLogger replaces the global logger. format is "json" or "console"; an
// unknown level falls back to info. A nil output writes to stderr.
func InitLogger(level, format string, output zapcore.WriteSyncer) {
	if output == nil {
		output = zapcore.Lock(os.Stderr)
	}
	globalLogger = newLogger(level, format, output)
}

// GetLogger returns the global logger.
func GetLogger() Logger {
	return globalLogger
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() Logger {
	return &zapLogger{zap.NewNop().Sugar()}
}

// NewWriter builds a standalone debug-level console logger writing to w.
func NewWriter(w io.Writer) Logger {
	return newLogger("debug", "plain", zapcore.AddSync(w))
}

func newLogger(level, format string, out zapcore.WriteSyncer) Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		lvl = zapcore.InfoLevel
	}

	var enc zapcore.Encoder
	switch format {
	case "json":
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	case "console":
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(ec)
	default:
		enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}
	core := zapcore.NewCore(enc, out, lvl)
	return &zapLogger{zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()}
}

type zapLogger struct {
	*zap.SugaredLogger
}

func (l *zapLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, keysAndValues...)
}

func (l *zapLogger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, keysAndValues...)
}

func (l *zapLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, keysAndValues...)
}

func (l *zapLogger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)
}

func (l *zapLogger) With(keysAndValues ...interface{}) Logger {
	return &zapLogger{l.SugaredLogger.With(keysAndValues...)}
}
