package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the level and the optional rotated log file.
type Config struct {
	Level      string
	Path       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

var (
	mu     sync.RWMutex
	global *zap.SugaredLogger
)

// Init sets up logging to stdout and, when Path is set, to a rotated file
// as well. It returns an error only for an unknown level; a log file that
// cannot be created falls back to stdout alone.
func Init(cfg Config) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)}

	var fileErr error
	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			fileErr = err
		} else {
			rotator := &lumberjack.Logger{
				Filename:   cfg.Path,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			}
			cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), level))
		}
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Sugar()

	mu.Lock()
	global = logger
	mu.Unlock()

	if fileErr != nil {
		logger.Warnw("cannot create log directory, logging to stdout only", "path", cfg.Path, "error", fileErr)
	} else if cfg.Path != "" {
		logger.Infow("logging to file", "path", cfg.Path, "level", level.String())
	}
	return nil
}

func parseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return level, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}

// L returns the process logger. Before Init it is a development logger.
func L() *zap.SugaredLogger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}

	dev, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewExample().Sugar()
	}
	return dev.Sugar()
}

// Named returns a child of the process logger for one component.
func Named(component string) *zap.SugaredLogger {
	return L().Named(component)
}

// Sync flushes buffered entries.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if global != nil {
		return global.Sync()
	}
	return nil
}
