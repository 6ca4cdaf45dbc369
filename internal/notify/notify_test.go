package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/StudioVBG/TALOK-sub014/pkg/logger"
	"github.com/StudioVBG/TALOK-sub014/pkg/webhooks"
)

func TestWebhookSignsBody(t *testing.T) {
	var got Event
	var verified bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		res, err := webhooks.Verify(r.Header, body, time.Now(), "hook-secret", webhooks.DefaultTolerance)
		if err != nil {
			t.Errorf("Verify: %v", err)
		}
		verified = res.Valid && res.EventType == "document.fully_signed" && strings.HasPrefix(res.EventID, "evt_")
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	w := NewWebhook(ts.URL, "hook-secret", time.Second)
	if err := w.Send(context.Background(), "acct_owner", "document.fully_signed", map[string]any{"document_id": "doc_1"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !verified {
		t.Fatalf("receiver could not verify the signature")
	}
	if got.UserID != "acct_owner" || got.Payload["document_id"] != "doc_1" {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestWebhookReportsFailures(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()
	if err := NewWebhook(ts.URL, "s", time.Second).SendCode(context.Background(), "a@x.com", "123456", time.Now()); err == nil {
		t.Fatalf("expected error on 502")
	}
}

func TestLogNotifierHidesCodes(t *testing.T) {
	var buf bytes.Buffer
	l := Log{Logger: logger.New(logger.Config{Format: "json"}, &buf)}
	if err := l.SendCode(context.Background(), "tenant@x.com", "482913", time.Now()); err != nil {
		t.Fatalf("SendCode: %v", err)
	}
	if strings.Contains(buf.String(), "482913") || strings.Contains(buf.String(), "tenant@x.com") {
		t.Fatalf("log leaked code or address: %s", buf.String())
	}
	buf.Reset()
	l.EchoCodes = true
	_ = l.SendCode(context.Background(), "tenant@x.com", "482913", time.Now())
	if !strings.Contains(buf.String(), "482913") {
		t.Fatalf("expected echoed code: %s", buf.String())
	}
}
