package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"
)

func TestLogWritesJSONFields(t *testing.T) {
	var buf bytes.Buffer
	if err := Setup("debug", "json", &buf); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = Setup("info", "json", os.Stdout) }()

	Warn("batch_failed", map[string]any{"records": 3})
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("not json: %q", buf.String())
	}
	if got["msg"] != "batch_failed" || got["level"] != "warning" || got["records"] != float64(3) {
		t.Fatalf("unexpected entry: %v", got)
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	if err := Setup("error", "text", &buf); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = Setup("info", "json", os.Stdout) }()

	Info("hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at error level: %q", buf.String())
	}
	Error("shown", nil)
	if buf.Len() == 0 {
		t.Fatalf("error should be written")
	}
}

func TestSetupRejectsUnknown(t *testing.T) {
	if err := Setup("loud", "", nil); err == nil {
		t.Fatalf("expected level error")
	}
	if err := Setup("", "xml", nil); err == nil {
		t.Fatalf("expected format error")
	}
}
