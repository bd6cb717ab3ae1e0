// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package commons

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the structured logger every component receives.
type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(template string, args ...interface{})

	// Benchmark logs how long a named operation took.
	Benchmark(functionName string, duration time.Duration)

	// With returns a child logger carrying the given key/value pairs.
	With(keysAndValues ...interface{}) Logger
	Sync() error
}

type loggerOptions struct {
	name       string
	path       string
	level      string
	enableFile bool
	maxSizeMB  int
	maxBackups int
	maxAgeDays int
}

// Option configures the application logger.
type Option func(*loggerOptions)

func Name(name string) Option {
	return func(o *loggerOptions) { o.name = name }
}

func Path(path string) Option {
	return func(o *loggerOptions) {
		o.path = path
		o.enableFile = path != ""
	}
}

func Level(level string) Option {
	return func(o *loggerOptions) { o.level = level }
}

// EnableFile toggles the rotating file sink. Console output is always on.
func EnableFile(enabled bool) Option {
	return func(o *loggerOptions) { o.enableFile = enabled }
}

func Rotation(maxSizeMB, maxBackups, maxAgeDays int) Option {
	return func(o *loggerOptions) {
		o.maxSizeMB = maxSizeMB
		o.maxBackups = maxBackups
		o.maxAgeDays = maxAgeDays
	}
}

type applicationLogger struct {
	sugar *zap.SugaredLogger
}

// NewApplicationLogger builds a zap logger writing to stderr and, when a path
// is configured, to a lumberjack-rotated file <path>/<name>.log.
func NewApplicationLogger(opts ...Option) (Logger, error) {
	o := &loggerOptions{
		name:       "intelliconvo",
		level:      "info",
		maxSizeMB:  50,
		maxBackups: 5,
		maxAgeDays: 14,
	}
	for _, opt := range opts {
		opt(o)
	}

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(o.level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", o.level, err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), level),
	}

	if o.enableFile && o.path != "" {
		if err := os.MkdirAll(o.path, 0o755); err != nil {
			return nil, fmt.Errorf("unable to create log directory: %w", err)
		}
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(o.path, o.name+".log"),
			MaxSize:    o.maxSizeMB,
			MaxBackups: o.maxBackups,
			MaxAge:     o.maxAgeDays,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), writer, level))
	}

	zl := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)).Named(o.name)
	return &applicationLogger{sugar: zl.Sugar()}, nil
}

// NewNopLogger discards everything; handy for tests that do not assert logs.
func NewNopLogger() Logger {
	return &applicationLogger{sugar: zap.NewNop().Sugar()}
}

func (l *applicationLogger) Debug(args ...interface{}) { l.sugar.Debug(args...) }
func (l *applicationLogger) Debugf(template string, args ...interface{}) {
	l.sugar.Debugf(template, args...)
}
func (l *applicationLogger) Info(args ...interface{}) { l.sugar.Info(args...) }
func (l *applicationLogger) Infof(template string, args ...interface{}) {
	l.sugar.Infof(template, args...)
}
func (l *applicationLogger) Warn(args ...interface{}) { l.sugar.Warn(args...) }
func (l *applicationLogger) Warnf(template string, args ...interface{}) {
	l.sugar.Warnf(template, args...)
}
func (l *applicationLogger) Error(args ...interface{}) { l.sugar.Error(args...) }
func (l *applicationLogger) Errorf(template string, args ...interface{}) {
	l.sugar.Errorf(template, args...)
}
func (l *applicationLogger) Fatal(args ...interface{}) { l.sugar.Fatal(args...) }
func (l *applicationLogger) Fatalf(template string, args ...interface{}) {
	l.sugar.Fatalf(template, args...)
}

func (l *applicationLogger) Benchmark(functionName string, duration time.Duration) {
	l.sugar.Debugw("benchmark", "function", functionName, "took", duration.String())
}

func (l *applicationLogger) With(keysAndValues ...interface{}) Logger {
	return &applicationLogger{sugar: l.sugar.With(keysAndValues...)}
}

func (l *applicationLogger) Sync() error {
	return l.sugar.Sync()
}
