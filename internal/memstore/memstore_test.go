package memstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/StudioVBG/TALOK-sub014/internal/domain"
	"github.com/StudioVBG/TALOK-sub014/internal/seed"
)

const seedYAML = `
documents:
  - document_id: doc_1
    kind: lease
    title: Bail 12 rue des Lilas
    status: awaiting_signatures
    owner_account_id: acc_owner
    signers:
      - signer_id: sig_t
        role: tenant
        email: Tenant@X.com
        display_name: Tina Tenant
      - signer_id: sig_o
        role: owner
        email: owner@x.com
        identity_id: acc_owner
accounts:
  owner-alt@x.com: acc_owner
`

func seeded(t *testing.T) *Store {
	t.Helper()
	fx, err := seed.Parse([]byte(seedYAML))
	if err != nil {
		t.Fatalf("seed.Parse: %v", err)
	}
	s := New()
	s.Load(fx)
	return s
}

func TestLoadFixtures(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	doc, err := s.GetDocument(ctx, "doc_1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Status != domain.StatusAwaitingSignatures || doc.OwnerAccountID != "acc_owner" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	recs, _ := s.ListSigners(ctx, "doc_1")
	if len(recs) != 2 || recs[0].SignerID != "sig_t" || recs[0].Email != "tenant@x.com" {
		t.Fatalf("unexpected signers: %+v", recs)
	}
	if id, ok, _ := s.AccountIDByEmail(ctx, "OWNER-ALT@x.com"); !ok || id != "acc_owner" {
		t.Fatalf("expected account lookup to be case-insensitive")
	}
}

func TestMarkSignedIsConditional(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	out := domain.SignedOutcome{SignedAt: time.Now()}

	var wins, conflicts int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.MarkSigned(ctx, "sig_t", out, &domain.SignatureProof{ProofID: "prf_x"})
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case errors.Is(err, domain.ErrStateConflict):
				atomic.AddInt32(&conflicts, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 || conflicts != 7 {
		t.Fatalf("expected 1 win and 7 conflicts, got %d/%d", wins, conflicts)
	}
}

func TestTransitionStatusConditional(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	ok, err := s.TransitionStatus(ctx, "doc_1", domain.StatusDraft, domain.StatusAwaitingSignatures)
	if err != nil || ok {
		t.Fatalf("expected stale precondition to fail, ok=%v err=%v", ok, err)
	}
	ok, err = s.TransitionStatus(ctx, "doc_1", domain.StatusAwaitingSignatures, domain.StatusPartiallySigned)
	if err != nil || !ok {
		t.Fatalf("expected transition, ok=%v err=%v", ok, err)
	}
	if _, err := s.TransitionStatus(ctx, "missing", domain.StatusDraft, domain.StatusAwaitingSignatures); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestAttachProofOnlyOnce(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	if err := s.MarkSigned(ctx, "sig_t", domain.SignedOutcome{SignedAt: time.Now()}, nil); err != nil {
		t.Fatalf("MarkSigned: %v", err)
	}
	missing, _ := s.ListSignedWithoutProof(ctx, 10)
	if len(missing) != 1 {
		t.Fatalf("expected one record without proof, got %d", len(missing))
	}
	if ok, _ := s.AttachProof(ctx, "sig_t", domain.SignatureProof{ProofID: "prf_1"}); !ok {
		t.Fatalf("expected first attach to succeed")
	}
	if ok, _ := s.AttachProof(ctx, "sig_t", domain.SignatureProof{ProofID: "prf_2"}); ok {
		t.Fatalf("expected second attach to be refused")
	}
	if ok, _ := s.AttachProof(ctx, "sig_o", domain.SignatureProof{ProofID: "prf_3"}); ok {
		t.Fatalf("expected attach on pending record to be refused")
	}
}
