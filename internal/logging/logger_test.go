package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestRedactsSensitiveAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "debug")

	logger.Info("login", "embed_secret", "s3cr3t", "password", "hunter2", "Authorization", "Bearer abc", "viewer", "user@example.com")

	out := buf.String()
	for _, leaked := range []string{"s3cr3t", "hunter2", "Bearer abc"} {
		if strings.Contains(out, leaked) {
			t.Fatalf("log output leaked %q: %s", leaked, out)
		}
	}
	if !strings.Contains(out, "user@example.com") {
		t.Fatalf("expected non-sensitive attribute to survive: %s", out)
	}
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "chatty")

	logger.Debug("hidden")
	logger.Info("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("debug record emitted at info level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("info record missing")
	}
}
