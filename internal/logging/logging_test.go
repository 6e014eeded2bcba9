package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewJSONWritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, false, zerolog.InfoLevel)
	log.Info().Str("k", "v").Msg("hello")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("expected a JSON line, got %q: %v", buf.String(), err)
	}
	if got["k"] != "v" || got["message"] != "hello" {
		t.Fatalf("unexpected fields: %v", got)
	}
}

func TestNewPrettyWritesConsoleLines(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, true, zerolog.InfoLevel)
	log.Info().Msg("hello")

	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("expected console output to contain the message, got %q", buf.String())
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, false, zerolog.ErrorLevel)
	log.Info().Msg("should be dropped")
	log.Error().Msg("should appear")

	if strings.Contains(buf.String(), "dropped") {
		t.Fatalf("expected info line to be filtered by level, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected error line to appear, got %q", buf.String())
	}
}

func TestWithProcessAddsFields(t *testing.T) {
	var buf bytes.Buffer
	log := WithProcess(New(&buf, false, zerolog.InfoLevel), 3, 7)
	log.Info().Msg("x")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["process_id"] != float64(3) || got["shard_id"] != float64(7) {
		t.Fatalf("unexpected fields: %v", got)
	}
}

func TestWithWorkerAddsFields(t *testing.T) {
	var buf bytes.Buffer
	log := WithWorker(New(&buf, false, zerolog.InfoLevel), "executor", 2)
	log.Info().Msg("x")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["worker_kind"] != "executor" || got["worker_index"] != float64(2) {
		t.Fatalf("unexpected fields: %v", got)
	}
}
