package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestFromAddsContextIDs(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: "debug", Format: "json"}, &buf)
	ctx := WithDocumentID(WithRequestID(context.Background(), "req_1"), "doc_1")

	From(ctx, base).Info("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if line["request_id"] != "req_1" || line["document_id"] != "doc_1" {
		t.Fatalf("missing context attrs: %+v", line)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Format: "text"}, &buf)
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered at warn level, got %q", buf.String())
	}
	l.Warn("kept")
	if buf.Len() == 0 {
		t.Fatalf("expected warn line")
	}
}
