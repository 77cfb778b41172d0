package pxlower

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerRecordsLowering(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer SetLogger(nil)

	en := NewEngine(Options{})
	if _, err := en.LowerTree(Binary(OpAdd, Arg("a", V64I2), Arg("b", V64I2))); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "pxlower: lowered") || !strings.Contains(out, "name=i2-add") {
		t.Fatalf("missing lowering record:\n%s", out)
	}
}

func TestLoggerDefaultIsSilent(t *testing.T) {
	SetLogger(nil)
	if Logger().Enabled(context.Background(), slog.LevelError) {
		t.Fatal("default logger is enabled")
	}
}
