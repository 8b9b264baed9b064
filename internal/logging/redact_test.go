package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newTestRedactingLogger(buf *bytes.Buffer) *slog.Logger {
	inner := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewRedactingHandler(inner))
}

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestRedact_NormalValuesPassThrough(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestRedactingLogger(&buf)

	logger.Info("position refreshed",
		"account", "0x1234567890123456789012345678901234567890",
		"staked", "10.5",
		"pool", 0,
	)

	output := buf.String()
	for _, expected := range []string{"0x1234567890123456789012345678901234567890", "10.5"} {
		if !strings.Contains(output, expected) {
			t.Errorf("expected output to contain %q, got: %s", expected, output)
		}
	}
	if strings.Contains(output, "[REDACTED]") {
		t.Errorf("normal values should not be redacted, got: %s", output)
	}
}

func TestRedact_SensitiveKeys(t *testing.T) {
	for _, key := range []string{"password", "wallet_password", "private_key", "mnemonic"} {
		t.Run(key, func(t *testing.T) {
			var buf bytes.Buffer
			newTestRedactingLogger(&buf).Info("msg", key, "hunter2")
			if strings.Contains(buf.String(), "hunter2") {
				t.Errorf("value under %q leaked: %s", key, buf.String())
			}
		})
	}
}

func TestRedact_PrivateKeyInValue(t *testing.T) {
	var buf bytes.Buffer
	newTestRedactingLogger(&buf).Info("import", "input", "key="+testKey)
	if strings.Contains(buf.String(), testKey) {
		t.Errorf("private key leaked: %s", buf.String())
	}

	buf.Reset()
	newTestRedactingLogger(&buf).Info("import", "input", testKey[2:])
	if strings.Contains(buf.String(), testKey[2:]) {
		t.Errorf("bare private key leaked: %s", buf.String())
	}
}

func TestRedact_TxHashKept(t *testing.T) {
	var buf bytes.Buffer
	newTestRedactingLogger(&buf).Info("tx submitted", "tx_hash", testKey)
	if !strings.Contains(buf.String(), testKey) {
		t.Errorf("tx hash should pass through, got: %s", buf.String())
	}
}

func TestRedact_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestRedactingLogger(&buf).With("secret", "s3cr3t")
	logger.Info("msg")
	if strings.Contains(buf.String(), "s3cr3t") {
		t.Errorf("secret leaked through With: %s", buf.String())
	}
}

func TestNewRedactingHandler_NoDoubleWrap(t *testing.T) {
	inner := NewRedactingHandler(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	if NewRedactingHandler(inner) != inner {
		t.Error("expected existing RedactingHandler to be returned as-is")
	}
}
