package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/StudioVBG/TALOK-sub014/internal/config"
	"github.com/StudioVBG/TALOK-sub014/internal/signing"
	"github.com/StudioVBG/TALOK-sub014/pkg/logger"
)

const fixtures = `
documents:
  - document_id: doc_1
    title: Bail meublé
    signers:
      - signer_id: sig_t
        role: tenant
        email: tenant@x.com
      - signer_id: sig_o
        role: owner
        email: owner@x.com
`

func memoryConfig(t *testing.T) config.Config {
	t.Helper()
	seedPath := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(seedPath, []byte(fixtures), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	cfg := config.Default()
	cfg.Store.Driver = "memory"
	cfg.Store.SeedFile = seedPath
	cfg.Tokens.Secret = strings.Repeat("k", 32)
	cfg.OTP.Pepper = "pepper"
	cfg.OTP.ExposeCodes = true
	cfg.HTTP.AdminToken = "admin"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

func TestMemoryRuntimeSignsBothParties(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(t), logger.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	var last signing.Outcome
	for _, email := range []string{"tenant@x.com", "owner@x.com"} {
		tok, err := a.Tokens.Issue("doc_1", email)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		ch, err := a.Signing.RequestOTP(ctx, tok)
		if err != nil {
			t.Fatalf("RequestOTP(%s): %v", email, err)
		}
		last, err = a.Signing.Sign(ctx, signing.SignRequest{Token: tok, Code: ch.DevCode})
		if err != nil {
			t.Fatalf("Sign(%s): %v", email, err)
		}
	}
	if last.Status != "fully_signed" || !last.StatusChanged {
		t.Fatalf("expected fully_signed after both parties, got %+v", last)
	}

	if tr, failed, err := a.Signing.Reconcile(ctx, "doc_1", "test"); err != nil || tr.Changed || len(failed) != 0 {
		t.Fatalf("expected nothing to reconcile, got %+v %v %v", tr, failed, err)
	}

	rep, err := a.Backfill.Run(ctx, 10)
	if err != nil || rep.Scanned != 0 {
		t.Fatalf("expected nothing to backfill, got %+v %v", rep, err)
	}
	if _, err := a.PurgeChallenges(ctx, time.Hour); err != nil {
		t.Fatalf("PurgeChallenges: %v", err)
	}
}

func TestHandlerServesHealth(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(t), logger.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestUnknownDriverFails(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Objects.Driver = "ftp"
	if _, err := New(context.Background(), cfg, logger.Discard()); err == nil {
		t.Fatalf("expected error for unknown object store driver")
	}
}
