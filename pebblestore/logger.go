package pebblestore

import (
	"fmt"

	"github.com/velmie/softtx"
)

// pebbleLogger routes Pebble's printf logging to a softtx.Logger.
type pebbleLogger struct {
	logger softtx.Logger
}

func (l pebbleLogger) Infof(format string, args ...any) {
	l.logger.Debug("[pebble] " + fmt.Sprintf(format, args...))
}

func (l pebbleLogger) Errorf(format string, args ...any) {
	l.logger.Error("[pebble] " + fmt.Sprintf(format, args...))
}

// Fatalf must not return.
func (l pebbleLogger) Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.logger.Error("[pebble] " + msg)
	panic("pebble: " + msg)
}
