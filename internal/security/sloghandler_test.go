package security

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer) (*slog.Logger, *Redactor) {
	r := NewRedactor()
	return NewLogger(buf, slog.LevelDebug, r), r
}

func TestRedactingHandler_Message(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, _ := newTestLogger(&buf)
	logger.Info("starting with " + sampleToken)

	if out := buf.String(); strings.Contains(out, sampleToken) || !strings.Contains(out, RedactPlaceholder) {
		t.Errorf("output = %s", out)
	}
}

func TestRedactingHandler_Attributes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, r := newTestLogger(&buf)
	r.AddLiteral("super-secret-value")

	logger.Info("test", "token", "super-secret-value", "safe", "visible")

	out := buf.String()
	if strings.Contains(out, "super-secret-value") {
		t.Errorf("secret found in attributes: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("safe value missing: %s", out)
	}
}

func TestRedactingHandler_Errors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, _ := newTestLogger(&buf)
	err := errors.New(`Post "https://api.telegram.org/bot` + sampleToken + `/sendMessage": timeout`)
	logger.Warn("send failed", "error", err)

	if out := buf.String(); strings.Contains(out, sampleToken) {
		t.Errorf("token leaked through error value: %s", out)
	}
}

func TestRedactingHandler_WithAttrsAndGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, _ := newTestLogger(&buf)
	logger.With("url", "https://x/bot"+sampleToken).
		WithGroup("req").
		Info("call", slog.Group("auth", "header", "Bearer abcdefgh12345678"))

	out := buf.String()
	if strings.Contains(out, sampleToken) || strings.Contains(out, "abcdefgh12345678") {
		t.Errorf("secret leaked: %s", out)
	}
	if !strings.Contains(out, "req.auth.header=") {
		t.Errorf("group prefix lost: %s", out)
	}
}

func TestRedactingHandler_Level(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn, NewRedactor())
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %s", buf.String())
	}
}
