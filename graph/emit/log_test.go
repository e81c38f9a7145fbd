package emit

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestLogEmitterText(t *testing.T) {
	t.Run("formats event with meta", func(t *testing.T) {
		var buf bytes.Buffer
		emitter := NewLogEmitter(&buf, false)

		emitter.Emit(Event{
			RunID: "req-01",
			Hop:   3,
			Node:  "executor",
			Msg:   "node completed",
			Meta:  map[string]any{"elapsed_ms": 412},
		})

		got := buf.String()
		want := `[node completed] run=req-01 hop=3 node=executor meta={"elapsed_ms":412}` + "\n"
		if got != want {
			t.Errorf("line = %q, want %q", got, want)
		}
	})

	t.Run("omits meta when empty", func(t *testing.T) {
		var buf bytes.Buffer
		emitter := NewLogEmitter(&buf, false)

		emitter.Emit(Event{RunID: "req-02", Hop: 1, Node: "analyzer", Msg: "node started"})

		got := buf.String()
		if strings.Contains(got, "meta=") {
			t.Errorf("line %q should not contain meta", got)
		}
		if !strings.HasPrefix(got, "[node started] run=req-02") {
			t.Errorf("line = %q, want node started prefix", got)
		}
	})

	t.Run("one line per event", func(t *testing.T) {
		var buf bytes.Buffer
		emitter := NewLogEmitter(&buf, false)

		for i := 1; i <= 3; i++ {
			emitter.Emit(Event{RunID: "req-03", Hop: i, Node: "n", Msg: "node started"})
		}

		lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
		if len(lines) != 3 {
			t.Errorf("got %d lines, want 3", len(lines))
		}
	})
}

func TestLogEmitterJSON(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewLogEmitter(&buf, true)

	emitter.Emit(Event{
		RunID: "req-01",
		Hop:   2,
		Node:  "combiner",
		Msg:   "node failed",
		Meta:  map[string]any{"error": "upstream timeout"},
	})

	var decoded struct {
		RunID string         `json:"run_id"`
		Hop   int            `json:"hop"`
		Node  string         `json:"node"`
		Msg   string         `json:"msg"`
		Meta  map[string]any `json:"meta"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}

	if decoded.RunID != "req-01" || decoded.Hop != 2 || decoded.Node != "combiner" {
		t.Errorf("decoded = %+v, want run req-01 hop 2 node combiner", decoded)
	}
	if decoded.Msg != "node failed" {
		t.Errorf("msg = %q, want %q", decoded.Msg, "node failed")
	}
	if decoded.Meta["error"] != "upstream timeout" {
		t.Errorf("meta.error = %v, want upstream timeout", decoded.Meta["error"])
	}

	t.Run("meta omitted when empty", func(t *testing.T) {
		buf.Reset()
		emitter.Emit(Event{RunID: "req-02", Hop: 1, Node: "n", Msg: "node started"})
		if strings.Contains(buf.String(), `"meta"`) {
			t.Errorf("line %q should omit empty meta", buf.String())
		}
	})
}

func TestLogEmitterNilWriter(t *testing.T) {
	emitter := NewLogEmitter(nil, false)
	if emitter.writer != os.Stdout {
		t.Error("nil writer should fall back to stdout")
	}
}
