// Package log provides the logging functionality for pexec.
package log

import (
	"context"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pexec/pexec/pkg/errdefs"
)

// Logger is the process-wide logger. Replace it with SetLogger (or by
// assigning a logger from CreateLogger) before running processes.
var Logger *pexecLogger
var nopLogger = zap.NewNop().Sugar()

func init() {
	Logger = CreateLoggerWithConfig(DefaultLoggerConfig())
}

func DefaultLoggerConfig() *zap.Config {
	c := zap.NewProductionConfig()
	c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return &c
}

// CreateLoggerWithLumberjack writes JSON logs to the given file,
// rotating it once it grows past maxSize megabytes.
func CreateLoggerWithLumberjack(logFile string, maxSize int, logLevel zapcore.Level) *pexecLogger {
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    maxSize, // megabytes
		MaxBackups: 5,
		MaxAge:     3,    // days
		Compress:   true, // compress the rotated files
	})

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		w,
		logLevel,
	)
	return newPexecLogger(zap.New(core).Sugar())
}

func ParseLogLevel(logLevel string) (zap.AtomicLevel, error) {
	zapLvl := zap.NewAtomicLevel() // info level by default
	if logLevel != "" && logLevel != "info" {
		var err error
		zapLvl, err = zap.ParseAtomicLevel(logLevel)
		if err != nil {
			return zap.AtomicLevel{}, err
		}
	}
	return zapLvl, nil
}

// CreateLogger logs to the file with rotation if logFile is set,
// otherwise to stderr.
func CreateLogger(logLevel zap.AtomicLevel, logFile string) *pexecLogger {
	if logFile != "" {
		return CreateLoggerWithLumberjack(logFile, 128, logLevel.Level())
	}

	lCfg := DefaultLoggerConfig()
	lCfg.Level = logLevel
	return CreateLoggerWithConfig(lCfg)
}

func CreateLoggerWithConfig(config *zap.Config) *pexecLogger {
	if config == nil {
		config = DefaultLoggerConfig()
	}

	l, err := config.Build()
	if err != nil {
		panic(err)
	}

	return newPexecLogger(l.Sugar())
}

type pexecLogger struct {
	logger atomic.Pointer[zap.SugaredLogger]
}

func newPexecLogger(logger *zap.SugaredLogger) *pexecLogger {
	l := &pexecLogger{}
	l.set(logger)
	return l
}

func (l *pexecLogger) get() *zap.SugaredLogger {
	if l == nil {
		return nopLogger
	}
	logger := l.logger.Load()
	if logger == nil {
		return nopLogger
	}
	return logger
}

func (l *pexecLogger) set(logger *zap.SugaredLogger) {
	if logger == nil {
		logger = nopLogger
	}
	l.logger.Store(logger)
}

// SetLogger swaps the underlying logger of the global Logger.
// A nil logger silences all logging.
func SetLogger(logger *pexecLogger) {
	if logger == nil {
		Logger.set(nil)
		return
	}
	Logger.set(logger.get())
}

// Errorw logs at warn level instead when the "error" value is a context cancellation,
// since the caller asked for it.
func (l *pexecLogger) Errorw(msg string, keysAndValues ...interface{}) {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if keysAndValues[i] != "error" {
			continue
		}
		if err, ok := keysAndValues[i+1].(error); ok {
			if errdefs.IsCanceled(err) || strings.Contains(err.Error(), context.Canceled.Error()) {
				l.Warnw(msg, keysAndValues...)
				return
			}
		}
	}

	l.get().Errorw(msg, keysAndValues...) // nolint:staticcheck
}

func (l *pexecLogger) Debugw(msg string, keysAndValues ...interface{}) {
	l.get().Debugw(msg, keysAndValues...)
}

func (l *pexecLogger) Infof(template string, args ...interface{}) {
	l.get().Infof(template, args...)
}

func (l *pexecLogger) Infow(msg string, keysAndValues ...interface{}) {
	l.get().Infow(msg, keysAndValues...)
}

func (l *pexecLogger) Warnw(msg string, keysAndValues ...interface{}) {
	l.get().Warnw(msg, keysAndValues...)
}

func (l *pexecLogger) Errorf(template string, args ...interface{}) {
	l.get().Errorf(template, args...)
}

func (l *pexecLogger) With(args ...interface{}) *zap.SugaredLogger {
	return l.get().With(args...)
}

func (l *pexecLogger) Desugar() *zap.Logger {
	return l.get().Desugar()
}
