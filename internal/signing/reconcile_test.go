package signing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/StudioVBG/TALOK-sub014/internal/domain"
	"github.com/StudioVBG/TALOK-sub014/internal/lifecycle"
	"github.com/StudioVBG/TALOK-sub014/internal/memstore"
)

// cancelOnCommit cancels the request context as soon as the signature is
// written, as a client hanging up would.
type cancelOnCommit struct {
	*memstore.Store
	cancel context.CancelFunc
}

func (c cancelOnCommit) MarkSigned(ctx context.Context, signerID string, outcome domain.SignedOutcome, p *domain.SignatureProof) error {
	err := c.Store.MarkSigned(ctx, signerID, outcome, p)
	c.cancel()
	return err
}

// ctxStore fails reads once the caller's context is done.
type ctxStore struct{ *memstore.Store }

func (c ctxStore) GetDocument(ctx context.Context, documentID string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}
	return c.Store.GetDocument(ctx, documentID)
}

func (c ctxStore) ListSigners(ctx context.Context, documentID string) ([]domain.SignerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Store.ListSigners(ctx, documentID)
}

func TestStatusAdvancesWhenClientDisconnectsAfterCommit(t *testing.T) {
	f := newFixture(t, nil, tenantAndOwner()...)
	if _, err := f.sign(t, "tenant@x.com", ""); err != nil {
		t.Fatalf("tenant Sign: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	deps := f.svc.deps
	deps.Signers = cancelOnCommit{Store: f.store, cancel: cancel}
	deps.Lifecycle = lifecycle.NewAggregator(ctxStore{f.store}, ctxStore{f.store}, nil)
	svc, err := New(deps, f.svc.cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tok := f.token(t, "owner@x.com")
	if _, err := svc.RequestOTP(context.Background(), tok); err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}
	out, err := svc.Sign(ctx, SignRequest{Token: tok, Code: f.sender.last("owner@x.com")})
	if err != nil {
		t.Fatalf("owner Sign: %v", err)
	}
	if ctx.Err() == nil {
		t.Fatalf("expected the request context to be canceled")
	}
	if out.Status != domain.StatusFullySigned || !out.StatusChanged || len(out.Degraded) != 0 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	doc, _ := f.store.GetDocument(context.Background(), "doc_1")
	if doc.Status != domain.StatusFullySigned {
		t.Fatalf("expected fully_signed, got %s", doc.Status)
	}
	if n := f.notes.count(TemplateFullySigned); n != 1 {
		t.Fatalf("expected one fully signed notification, got %d", n)
	}
}

func TestReconcileRepairsStuckDocument(t *testing.T) {
	signedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	recs := tenantAndOwner()
	for i := range recs {
		recs[i].State = domain.SignerSigned
		recs[i].SignedAt = &signedAt
	}
	f := newFixture(t, nil, recs...)

	tr, failed, err := f.svc.Reconcile(context.Background(), "doc_1", "req_reconcile")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !tr.Changed || tr.To != domain.StatusFullySigned || len(failed) != 0 {
		t.Fatalf("unexpected transition %+v failed=%v", tr, failed)
	}
	if n := f.notes.count(TemplateFullySigned); n != 1 {
		t.Fatalf("expected one fully signed notification, got %d", n)
	}
	for _, id := range []string{"sig_t", "sig_o"} {
		if _, ok := f.objects.get(SignedCopyPath("doc_1", id)); !ok {
			t.Fatalf("missing signed copy for %s", id)
		}
	}

	tr, _, err = f.svc.Reconcile(context.Background(), "doc_1", "req_reconcile")
	if err != nil || tr.Changed {
		t.Fatalf("expected a settled document, got %+v %v", tr, err)
	}
	if n := f.notes.count(TemplateFullySigned); n != 1 {
		t.Fatalf("second reconcile notified again")
	}
}

func TestReconcileUnknownDocument(t *testing.T) {
	f := newFixture(t, nil, tenantAndOwner()...)
	if _, _, err := f.svc.Reconcile(context.Background(), "doc_missing", ""); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}
