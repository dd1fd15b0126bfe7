package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("hello", "key", "value")

	output := buf.String()
	if !strings.Contains(output, "hello") {
		t.Fatalf("expected 'hello' in output, got: %s", output)
	}
	if !strings.Contains(output, `"key":"value"`) {
		t.Fatalf("expected key=value in JSON output, got: %s", output)
	}
	if !strings.Contains(output, `"level":"INFO"`) {
		t.Fatalf("expected level INFO in output, got: %s", output)
	}
}

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("should not appear")
	log.Debug("also should not appear")

	if buf.Len() > 0 {
		t.Fatalf("expected no output for info/debug at warn level, got: %s", buf.String())
	}

	log.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected warn message in output, got: %s", buf.String())
	}
}

func TestPretty(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelInfo)
	log.Info("test message", "key", "value")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Fatalf("expected 'test message' in output, got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Fatalf("expected 'key=value' in output, got: %s", output)
	}
}

func TestWith(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	childLog := log.With("component", "test")
	childLog.Info("child message")

	output := buf.String()
	if !strings.Contains(output, `"component":"test"`) {
		t.Fatalf("expected component=test in output, got: %s", output)
	}
	if !strings.Contains(output, "child message") {
		t.Fatalf("expected 'child message' in output, got: %s", output)
	}
}

func TestFromContextDefault(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	log := FromContext(ctx)
	if log == nil {
		t.Fatal("FromContext with no logger returned nil")
	}
	// Should not panic
	log.Info("from context")
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)

	ctx := WithContext(context.Background(), log)
	retrieved := FromContext(ctx)

	retrieved.Info("roundtrip test")
	if !strings.Contains(buf.String(), "roundtrip test") {
		t.Fatalf("expected message via context logger, got: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{" Warning ", slog.LevelWarn},
		{"info+2", slog.LevelInfo + 2},
	}

	for _, tc := range tests {
		result, err := ParseLevel(tc.input)
		if err != nil {
			t.Errorf("ParseLevel(%q): %v", tc.input, err)
			continue
		}
		if result != tc.expected {
			t.Errorf("ParseLevel(%q): expected %v, got %v", tc.input, tc.expected, result)
		}
	}

	for _, bad := range []string{"", "verbose"} {
		if _, err := ParseLevel(bad); err == nil {
			t.Errorf("ParseLevel(%q): expected error", bad)
		}
	}
}

func TestOpenFormats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format Format
		want   string
	}{
		{FormatJSON, `"n":1`},
		{FormatText, "n=1"},
		{FormatPretty, "n=1"},
		{"", "n=1"},
	}
	for _, tc := range tests {
		var buf bytes.Buffer
		log, closer, err := Open(Options{Format: tc.format, Level: slog.LevelInfo, Output: &buf})
		if err != nil {
			t.Fatalf("Open(%q): %v", tc.format, err)
		}
		if closer != nil {
			t.Fatalf("Open(%q): unexpected closer", tc.format)
		}
		log.Debug("hidden")
		log.Info("shown", "n", 1)
		if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), tc.want) {
			t.Fatalf("Open(%q) output: %s", tc.format, buf.String())
		}
	}

	if _, _, err := Open(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestPrettyHandlerEnabled(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info to be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("expected warn to be enabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("expected error to be enabled at warn level")
	}
}

func TestPrettyHandlerWithAttrs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil)

	h2 := h.WithAttrs([]slog.Attr{slog.String("service", "test")})
	logger := slog.New(h2)
	logger.Info("with attrs")

	output := buf.String()
	if !strings.Contains(output, "service=test") {
		t.Fatalf("expected 'service=test' in output, got: %s", output)
	}
}

func TestPrettyHandlerWithGroup(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil)

	h2 := h.WithGroup("mygroup")
	logger := slog.New(h2)
	logger.Info("grouped", "key", "val")

	output := buf.String()
	if !strings.Contains(output, "mygroup.key=val") {
		t.Fatalf("expected 'mygroup.key=val' in output, got: %s", output)
	}
}

func TestPrettyQuotesStringsWithSpaces(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil)
	logger := slog.New(h)
	logger.Info("test", "msg", "hello world")

	output := buf.String()
	if !strings.Contains(output, `msg="hello world"`) {
		t.Fatalf("expected quoted string with spaces, got: %s", output)
	}
}

func TestAppendString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"simple", "simple"},
		{"has space", `"has space"`},
		{"has\ttab", `"has\ttab"`},
		{`has"quote`, `"has\"quote"`},
		{"a=b", `"a=b"`},
		{"", `""`},
		{"no-special-chars", "no-special-chars"},
	}

	for _, tc := range tests {
		if got := string(appendString(nil, tc.input)); got != tc.expected {
			t.Errorf("appendString(%q): expected %s, got %s", tc.input, tc.expected, got)
		}
	}
}

func TestPrettyByteCounts(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(NewPrettyHandler(&buf, nil))
	logger.Info("prt written", "bytes", 3*1024*1024, "payload_bytes", uint64(2048), "particles", 100)

	output := buf.String()
	for _, want := range []string{`bytes="3.0 MiB"`, `payload_bytes="2.0 KiB"`, "particles=100"} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %s in output, got: %s", want, output)
		}
	}
	if strings.Contains(output, "\033") || strings.Contains(output, "\x1b") || strings.ContainsRune(output, 0x1b) {
		t.Fatalf("expected no color codes for a non-terminal writer, got: %q", output)
	}
}

func TestNopDiscards(t *testing.T) {
	t.Parallel()
	log := Nop().With("session", "prt")
	// Should not panic and must not write anywhere.
	log.Warn("skipped channel", "name", "Density")
}

func TestCollectorCapturesWarnings(t *testing.T) {
	t.Parallel()
	c := NewCollector(slog.LevelInfo)
	log := c.Logger().With("file", "cloud.prt").WithGroup("channel")
	log.Debug("below level")
	log.Info("added", "name", "Position")
	log.Warn("unsupported channel type", "name", "Density")

	entries := c.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Attrs["channel.name"] != "Density" {
		t.Fatalf("grouped attr missing: %v", entries[1].Attrs)
	}
	if entries[1].Attrs["file"] != "cloud.prt" {
		t.Fatalf("handler attr missing: %v", entries[1].Attrs)
	}
	warnings := c.Warnings()
	if len(warnings) != 1 || warnings[0] != "unsupported channel type" {
		t.Fatalf("warnings: %v", warnings)
	}
}

func TestOpenFileWritesRotatingJSON(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "buddy.log")
	log, closer, err := Open(Options{Format: FormatPretty, File: path, MaxSizeMB: 1, Level: slog.LevelInfo})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	log.Info("wrote bgeo", "points", 4)
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"points":4`) {
		t.Fatalf("expected JSON attrs in log file, got: %s", data)
	}
}

