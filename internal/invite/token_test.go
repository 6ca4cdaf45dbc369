package invite

import (
	"strings"
	"testing"
	"time"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func newTestService(t *testing.T, cfg Config, now time.Time) *Service {
	t.Helper()
	if cfg.Secret == nil {
		cfg.Secret = testSecret
	}
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc.WithClock(fixedClock(now))
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestService(t, Config{}, now)

	tok, err := svc.Issue("doc_1", "Tenant@Example.com ")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if strings.ContainsAny(tok, "+/= ") {
		t.Fatalf("expected URL-safe token, got %q", tok)
	}
	inv, ok := svc.WithClock(fixedClock(now.Add(29*24*time.Hour))).Verify(tok, 30)
	if !ok {
		t.Fatalf("expected token to verify before expiry")
	}
	if inv.DocumentID != "doc_1" || inv.Channel != "tenant@example.com" {
		t.Fatalf("unexpected invitation: %+v", inv)
	}
	if inv.Format != FormatSealed {
		t.Fatalf("expected sealed format, got %s", inv.Format)
	}
}

func TestVerifyRejectsAfterMaxAge(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestService(t, Config{}, now)
	tok, _ := svc.Issue("doc_1", "a@x.com")

	if _, ok := svc.WithClock(fixedClock(now.Add(30*24*time.Hour + time.Second))).Verify(tok, 30); ok {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	now := time.Now().UTC()
	svc := newTestService(t, Config{AcceptLegacy: true, LegacyCutoff: now.Add(time.Hour)}, now)
	tok, _ := svc.Issue("doc_1", "a@x.com")
	other, _ := svc.Issue("doc_2", "a@x.com")

	parts := strings.Split(tok, ".")
	otherParts := strings.Split(other, ".")
	forged := parts[0] + "." + otherParts[1] + "." + parts[2]
	if _, ok := svc.Verify(forged, 30); ok {
		t.Fatalf("expected forged payload to be rejected")
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	now := time.Now().UTC()
	issuer := newTestService(t, Config{Secret: []byte("ffffffffffffffffffffffffffffffff")}, now)
	verifier := newTestService(t, Config{}, now)
	tok, _ := issuer.Issue("doc_1", "a@x.com")
	if _, ok := verifier.Verify(tok, 30); ok {
		t.Fatalf("expected token from another secret to be rejected")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := newTestService(t, Config{AcceptLegacy: true, LegacyCutoff: time.Now().Add(time.Hour)}, time.Now().UTC())
	for _, tok := range []string{"", "   ", "not-a-token", "a.b.c", "%%%"} {
		if _, ok := svc.Verify(tok, 30); ok {
			t.Fatalf("expected %q to be rejected", tok)
		}
	}
}

func TestLegacyTokenAcceptedBeforeCutoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	svc := newTestService(t, Config{AcceptLegacy: true, LegacyCutoff: cutoff}, now)

	tok := EncodeLegacy("doc_9", "A@X.com", now.Add(-40*24*time.Hour))
	inv, ok := svc.Verify(tok, 60)
	if !ok {
		t.Fatalf("expected legacy token to verify")
	}
	if inv.Format != FormatLegacy || inv.Channel != "a@x.com" || inv.DocumentID != "doc_9" {
		t.Fatalf("unexpected legacy invitation: %+v", inv)
	}
}

func TestLegacyTokenRejectedWhenDisabledOrAfterCutoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	disabled := newTestService(t, Config{AcceptLegacy: false, LegacyCutoff: cutoff}, now)
	if _, ok := disabled.Verify(EncodeLegacy("doc_9", "a@x.com", now.Add(-40*24*time.Hour)), 60); ok {
		t.Fatalf("expected legacy token rejected when disabled")
	}

	enabled := newTestService(t, Config{AcceptLegacy: true, LegacyCutoff: cutoff}, now)
	if _, ok := enabled.Verify(EncodeLegacy("doc_9", "a@x.com", now.Add(-24*time.Hour)), 60); ok {
		t.Fatalf("expected legacy token minted after cutoff to be rejected")
	}
	if _, ok := enabled.Verify(EncodeLegacy("doc_9", "a@x.com", cutoff.Add(-100*24*time.Hour)), 60); ok {
		t.Fatalf("expected old legacy token to expire")
	}
}

func TestVerifyRejectsFutureIssuedAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestService(t, Config{}, now.Add(time.Hour))
	tok, _ := svc.Issue("doc_1", "a@x.com")
	if _, ok := svc.WithClock(fixedClock(now)).Verify(tok, 30); ok {
		t.Fatalf("expected token from the future to be rejected")
	}
}

func TestNewServiceRequiresLongSecret(t *testing.T) {
	if _, err := NewService(Config{Secret: []byte("short")}); err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
}
