package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func captureLogger(level string) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	lvl, _ := zerolog.ParseLevel(level)
	zl := zerolog.New(buf).Level(lvl)
	return &Logger{logger: zl, service: "test"}, buf
}

func TestLogger_InfoWritesJSON(t *testing.T) {
	log, buf := captureLogger("info")
	log.Info("plan saved", Fields(FieldPlanID, "p1"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line: %v", err)
	}
	if entry["message"] != "plan saved" {
		t.Fatalf("expected message 'plan saved', got %v", entry["message"])
	}
	if entry[FieldPlanID] != "p1" {
		t.Fatalf("expected plan_id p1, got %v", entry[FieldPlanID])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	log, buf := captureLogger("warn")
	log.Debug("should not appear")
	log.Info("should not appear either")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}
	log.Warn("lost status race")
	if !strings.Contains(buf.String(), "lost status race") {
		t.Fatalf("expected warn output, got %q", buf.String())
	}
}

func TestLogger_WithComponent(t *testing.T) {
	log, buf := captureLogger("info")
	log.WithComponent("execution-store").Info("ready")
	if !strings.Contains(buf.String(), `"component":"execution-store"`) {
		t.Fatalf("expected component field, got %q", buf.String())
	}
}

func TestLogger_WithError(t *testing.T) {
	log, buf := captureLogger("info")
	log.WithError(errTest{}).Error("update failed")
	if !strings.Contains(buf.String(), "boom") {
		t.Fatalf("expected error field, got %q", buf.String())
	}
}

type errTest struct{}

func (errTest) Error() string { return "boom" }

func TestFields_IgnoresDanglingKey(t *testing.T) {
	m := Fields("a", 1, "b")
	if len(m) != 1 || m["a"] != 1 {
		t.Fatalf("expected only complete pairs, got %v", m)
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if cfg.Level != "info" || cfg.Format != "json" || cfg.Output != "stdout" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{Level: "verbose", Format: "json"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid level")
	}
	cfg = Config{Level: "debug", Format: "xml"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid format")
	}
	cfg = Config{Level: "debug", Format: "console"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
