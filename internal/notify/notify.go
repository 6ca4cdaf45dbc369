// Package notify delivers notifications and OTP codes, either to an HMAC
// signed webhook or to the log.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/StudioVBG/TALOK-sub014/internal/domain"
	"github.com/StudioVBG/TALOK-sub014/pkg/webhooks"

	"github.com/google/uuid"
)

// TemplateOTPCode is the template used for challenge codes.
const TemplateOTPCode = "otp.code"

// Event is the JSON body posted to the webhook.
type Event struct {
	EventID    string         `json:"event_id"`
	TemplateID string         `json:"template_id"`
	UserID     string         `json:"user_id"`
	Payload    map[string]any `json:"payload"`
	SentAt     time.Time      `json:"sent_at"`
}

// Webhook posts each notification to URL, signed with Secret in the
// X-Cosign-Signature header. Receivers check deliveries with webhooks.Verify.
type Webhook struct {
	URL    string
	Secret string
	HTTP   *http.Client
	now    func() time.Time
}

func NewWebhook(url, secret string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{
		URL:    strings.TrimSpace(url),
		Secret: secret,
		HTTP:   &http.Client{Timeout: timeout},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (w *Webhook) Send(ctx context.Context, userID, templateID string, payload map[string]any) error {
	ev := Event{
		EventID:    "evt_" + uuid.NewString(),
		TemplateID: templateID,
		UserID:     userID,
		Payload:    payload,
		SentAt:     w.now(),
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhooks.EventIDHeader, ev.EventID)
	req.Header.Set(webhooks.EventTypeHeader, templateID)
	if w.Secret != "" {
		req.Header.Set(webhooks.SignatureHeader, webhooks.Sign(w.Secret, body, ev.SentAt))
	}
	resp, err := w.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", templateID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (w *Webhook) SendCode(ctx context.Context, channel, code string, expiresAt time.Time) error {
	return w.Send(ctx, channel, TemplateOTPCode, map[string]any{
		"channel":    channel,
		"code":       code,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

// Log writes notifications to the logger instead of delivering them. Codes
// are only logged when EchoCodes is set.
type Log struct {
	Logger    *slog.Logger
	EchoCodes bool
}

func (l Log) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l Log) Send(_ context.Context, userID, templateID string, payload map[string]any) error {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	l.logger().Info("notification", "template", templateID, "recipient", maskRecipient(userID), "payload_keys", keys)
	return nil
}

func (l Log) SendCode(_ context.Context, channel, code string, expiresAt time.Time) error {
	attrs := []any{"recipient", domain.MaskEmail(channel), "expires_at", expiresAt}
	if l.EchoCodes {
		attrs = append(attrs, "code", code)
	}
	l.logger().Info("otp code", attrs...)
	return nil
}

func maskRecipient(id string) string {
	if strings.Contains(id, "@") {
		return domain.MaskEmail(id)
	}
	return id
}
