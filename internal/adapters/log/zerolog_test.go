package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/lifeline/internal/ports"
)

func TestZerologAdapter_Fields(t *testing.T) {
	var buf bytes.Buffer
	a := NewZerologAdapter(zerolog.New(&buf))

	a.Info("state transition",
		ports.String("from", "booting"),
		ports.Int("episode", 2),
		ports.Bool("initial", true),
		ports.Strings("tags", []string{"a", "b"}),
		ports.Err(errors.New("boom")),
	)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if line["message"] != "state transition" {
		t.Errorf("message = %v", line["message"])
	}
	if line["from"] != "booting" {
		t.Errorf("from = %v", line["from"])
	}
	if line["episode"] != float64(2) {
		t.Errorf("episode = %v", line["episode"])
	}
	if line["error"] != "boom" {
		t.Errorf("error = %v", line["error"])
	}
	if tags, ok := line["tags"].([]any); !ok || len(tags) != 2 {
		t.Errorf("tags = %v", line["tags"])
	}
}

func TestNewConsoleTo_Level(t *testing.T) {
	var buf bytes.Buffer
	a := NewConsoleTo(&buf, "warn")
	a.Info("hidden", ports.Duration("d", time.Second))
	if buf.Len() != 0 {
		t.Errorf("info written at warn level: %q", buf.String())
	}
	a.Warn("shown")
	if !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Errorf("warn not written: %q", buf.String())
	}
}
