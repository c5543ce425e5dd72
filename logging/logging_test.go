package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapWritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZap(zap.New(core))

	logger.Warn("softtx delivery cycle failed", "err", errors.New("boom"), "tries", 2)
	logger.Debug("softtx log delivered", "id", "log-1")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level, got %s", entries[0].Level)
	}
	fields := entries[0].ContextMap()
	if fields["err"] != "boom" || fields["tries"] != int64(2) {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestZapNilLogger(t *testing.T) {
	NewZap(nil).Error("ignored")
}

func TestZerologWritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerolog(zerolog.New(&buf).Level(zerolog.InfoLevel))

	logger.Debug("dropped")
	logger.Info("softtx purged exhausted logs", "count", 3)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["message"] != "softtx purged exhausted logs" || line["count"] != float64(3) || line["level"] != "info" {
		t.Fatalf("unexpected line: %v", line)
	}
}

func TestZerologDanglingValue(t *testing.T) {
	var buf bytes.Buffer
	NewZerolog(zerolog.New(&buf)).Warn("odd", "id", "log-1", "orphan")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["id"] != "log-1" || line["!BADKEY"] != "orphan" {
		t.Fatalf("unexpected line: %v", line)
	}
}
