// Package logging adapts structured loggers to softtx.Logger.
//
// Arguments follow the key/value convention used across softtx:
//
//	logger.Warn("softtx delivery cycle failed", "err", err, "next", wait)
package logging

import (
	"github.com/rs/zerolog"
	"go.uber.org/zap"

	"github.com/velmie/softtx"
)

// Zap wraps a *zap.Logger.
type Zap struct {
	sugar *zap.SugaredLogger
}

var _ softtx.Logger = Zap{}

// NewZap returns a softtx.Logger writing through logger.
func NewZap(logger *zap.Logger) Zap {
	if logger == nil {
		logger = zap.NewNop()
	}

	return Zap{sugar: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (z Zap) Debug(msg string, args ...any) { z.sugar.Debugw(msg, args...) }
func (z Zap) Info(msg string, args ...any)  { z.sugar.Infow(msg, args...) }
func (z Zap) Warn(msg string, args ...any)  { z.sugar.Warnw(msg, args...) }
func (z Zap) Error(msg string, args ...any) { z.sugar.Errorw(msg, args...) }

// Zerolog wraps a zerolog.Logger.
type Zerolog struct {
	logger zerolog.Logger
}

var _ softtx.Logger = Zerolog{}

// NewZerolog returns a softtx.Logger writing through logger.
func NewZerolog(logger zerolog.Logger) Zerolog {
	return Zerolog{logger: logger}
}

func (z Zerolog) Debug(msg string, args ...any) { write(z.logger.Debug(), msg, args) }
func (z Zerolog) Info(msg string, args ...any)  { write(z.logger.Info(), msg, args) }
func (z Zerolog) Warn(msg string, args ...any)  { write(z.logger.Warn(), msg, args) }
func (z Zerolog) Error(msg string, args ...any) { write(z.logger.Error(), msg, args) }

// A trailing value without a key is logged under "!BADKEY".
func write(event *zerolog.Event, msg string, args []any) {
	if event == nil {
		return
	}
	if n := len(args); n%2 == 1 {
		args = append(args[:n-1:n-1], "!BADKEY", args[n-1])
	}
	event.Fields(args).Msg(msg)
}
