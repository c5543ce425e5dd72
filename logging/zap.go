package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 5
	defaultMaxAgeDays = 14
)

// FileConfig describes where and how a command logs.
type FileConfig struct {
	// Level is a zap level name, "info" when empty.
	Level string
	// Path enables a rotating log file; stdout is used when empty.
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewZapLogger builds a JSON zap logger writing to stdout or to a rotating file.
func NewZapLogger(cfg FileConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		level = parsed
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(writer(cfg)), level)

	return zap.New(core, zap.AddCaller()), nil
}

func writer(cfg FileConfig) io.Writer {
	if cfg.Path == "" {
		return os.Stdout
	}

	rotate := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	if rotate.MaxSize <= 0 {
		rotate.MaxSize = defaultMaxSizeMB
	}
	if rotate.MaxBackups <= 0 {
		rotate.MaxBackups = defaultMaxBackups
	}
	if rotate.MaxAge <= 0 {
		rotate.MaxAge = defaultMaxAgeDays
	}

	return rotate
}
