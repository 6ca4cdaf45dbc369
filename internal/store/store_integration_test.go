package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/StudioVBG/TALOK-sub014/internal/domain"
	"github.com/StudioVBG/TALOK-sub014/internal/otp"
	"github.com/StudioVBG/TALOK-sub014/internal/seed"
	"github.com/StudioVBG/TALOK-sub014/pkg/db"

	"github.com/google/uuid"
)

func liveStore(t *testing.T) (*Store, string) {
	t.Helper()
	if os.Getenv("COSIGN_INTEGRATION") != "1" {
		t.Skip("set COSIGN_INTEGRATION=1 and DATABASE_URL to run against Postgres")
	}
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is not set")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, db.PoolConfig{DSN: dsn, MaxConns: 8})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	st := New(pool)
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	docID := "doc_" + uuid.NewString()
	if err := st.Import(ctx, seed.Fixtures{
		Documents: []domain.Document{{DocumentID: docID, Kind: domain.KindLease, Status: domain.StatusAwaitingSignatures}},
		Signers: []domain.SignerRecord{
			{SignerID: docID + "_t", DocumentID: docID, Role: domain.RoleTenant, Email: "Tenant@X.com"},
			{SignerID: docID + "_o", DocumentID: docID, Role: domain.RoleOwner, Email: "owner@x.com"},
		},
	}); err != nil {
		t.Fatalf("Import: %v", err)
	}
	return st, docID
}

func TestLiveMarkSignedSingleWinner(t *testing.T) {
	st, docID := liveStore(t)
	ctx := context.Background()
	signerID := docID + "_t"

	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := &domain.SignatureProof{ProofID: "prf_" + uuid.NewString(), DocumentID: docID, SignerID: signerID, ContentHash: "sha256:x", CreatedAt: time.Now()}
			errs <- st.MarkSigned(ctx, signerID, domain.SignedOutcome{SignedAt: time.Now()}, p)
		}()
	}
	wg.Wait()
	close(errs)
	wins := 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrStateConflict):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected one winner, got %d", wins)
	}
	rec, err := st.GetSigner(ctx, signerID)
	if err != nil || rec.IsPending() || rec.ProofID == nil {
		t.Fatalf("unexpected record %+v err=%v", rec, err)
	}
	if _, err := st.GetProof(ctx, *rec.ProofID); err != nil {
		t.Fatalf("GetProof: %v", err)
	}
}

func TestLiveTransitionStatusConditional(t *testing.T) {
	st, docID := liveStore(t)
	ctx := context.Background()
	ok, err := st.TransitionStatus(ctx, docID, domain.StatusAwaitingSignatures, domain.StatusPartiallySigned)
	if err != nil || !ok {
		t.Fatalf("first transition: ok=%v err=%v", ok, err)
	}
	ok, err = st.TransitionStatus(ctx, docID, domain.StatusAwaitingSignatures, domain.StatusFullySigned)
	if err != nil || ok {
		t.Fatalf("stale transition must lose: ok=%v err=%v", ok, err)
	}
}

func TestLiveOTPAttempt(t *testing.T) {
	st, docID := liveStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	if err := st.Put(ctx, otp.Challenge{DocumentID: docID, Channel: "tenant@x.com", CodeHash: "good", IssuedAt: now, ExpiresAt: now.Add(time.Minute), RemainingAttempts: 2}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if out, _ := st.Attempt(ctx, docID, "tenant@x.com", "bad", now); out != otp.AttemptMismatch {
		t.Fatalf("expected mismatch, got %v", out)
	}
	if out, _ := st.Attempt(ctx, docID, "tenant@x.com", "good", now); out != otp.AttemptConsumed {
		t.Fatalf("expected consumed, got %v", out)
	}
	if out, _ := st.Attempt(ctx, docID, "tenant@x.com", "good", now); out != otp.AttemptAlreadyConsumed {
		t.Fatalf("expected single use reported as reuse, got %v", out)
	}
	if out, _ := st.Attempt(ctx, docID, "tenant@x.com", "bad", now); out != otp.AttemptNoChallenge {
		t.Fatalf("expected dead challenge for a wrong code, got %v", out)
	}
}
