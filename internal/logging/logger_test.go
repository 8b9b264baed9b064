package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestSetAndGetLogger(t *testing.T) {
	original := Logger()
	defer SetLogger(original)

	var buf bytes.Buffer
	custom := slog.New(slog.NewJSONHandler(&buf, nil))
	SetLogger(custom)

	if Logger() != custom {
		t.Error("Logger() did not return the logger set by SetLogger()")
	}
}

func TestSetOutput(t *testing.T) {
	original := Logger()
	defer SetLogger(original)

	var buf bytes.Buffer
	SetOutput(&buf)

	Debug("should not appear")
	if buf.Len() > 0 {
		t.Error("debug messages should not appear at info level")
	}

	Info("test message", "key", "value")
	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("expected output to contain 'test message', got: %s", output)
	}
	if !strings.Contains(output, `"key"`) {
		t.Errorf("expected output to contain key, got: %s", output)
	}
}

func TestConfigure(t *testing.T) {
	original := Logger()
	defer SetLogger(original)

	var buf bytes.Buffer
	if err := Configure(&buf, "debug", "text"); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	Debug("visible at debug")
	if !strings.Contains(buf.String(), "visible at debug") {
		t.Errorf("expected debug output, got: %s", buf.String())
	}

	if err := Configure(&buf, "loud", "json"); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := Configure(&buf, "info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogLevels(t *testing.T) {
	original := Logger()
	defer SetLogger(original)

	var buf bytes.Buffer
	SetTextOutput(&buf)

	tests := []struct {
		name    string
		logFunc func(string, ...any)
		level   string
	}{
		{"Debug", Debug, "DEBUG"},
		{"Info", Info, "INFO"},
		{"Warn", Warn, "WARN"},
		{"Error", Error, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.logFunc(tt.name+" test message", "key", "val")
			output := buf.String()
			if !strings.Contains(output, tt.name+" test message") {
				t.Errorf("expected output to contain message, got: %s", output)
			}
			if !strings.Contains(output, tt.level) {
				t.Errorf("expected output to contain level %s, got: %s", tt.level, output)
			}
		})
	}
}

func TestLogWithContext(t *testing.T) {
	original := Logger()
	defer SetLogger(original)

	var buf bytes.Buffer
	SetTextOutput(&buf)

	ctx := context.Background()
	for _, fn := range []func(context.Context, string, ...any){DebugContext, InfoContext, WarnContext, ErrorContext} {
		buf.Reset()
		fn(ctx, "context message")
		if !strings.Contains(buf.String(), "context message") {
			t.Errorf("expected output to contain message, got: %s", buf.String())
		}
	}
}

func TestFieldHelpers(t *testing.T) {
	addr := common.HexToAddress("0x1234567890123456789012345678901234567890")
	if a := Account(addr); a.Key != "account" || a.Value.String() != addr.Hex() {
		t.Errorf("unexpected account attr: %v", a)
	}
	if a := Pool(0); a.Key != "pool" || a.Value.Uint64() != 0 {
		t.Errorf("unexpected pool attr: %v", a)
	}
	h := common.HexToHash("0xabc")
	if a := TxHash(h); a.Key != "tx_hash" || a.Value.String() != h.Hex() {
		t.Errorf("unexpected tx_hash attr: %v", a)
	}
	if a := Err(nil); a.Value.String() != "" {
		t.Errorf("expected empty error attr, got %q", a.Value.String())
	}
	if a := Err(errors.New("boom")); a.Value.String() != "boom" {
		t.Errorf("expected 'boom', got %q", a.Value.String())
	}
	if a := Component("tracker"); a.Key != "component" {
		t.Errorf("unexpected component key %q", a.Key)
	}
}

func TestAudit(t *testing.T) {
	original := Logger()
	defer SetLogger(original)

	var buf bytes.Buffer
	SetOutput(&buf)

	Audit(AuditEvent{Operation: "unstake", Account: "0xabc", Amount: "1.5", Result: "submitted"})
	out := buf.String()
	for _, want := range []string{`"audit":true`, `"operation":"unstake"`, `"amount":"1.5"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}
