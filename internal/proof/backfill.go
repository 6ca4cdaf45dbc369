package proof

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/StudioVBG/TALOK-sub014/internal/domain"
	"github.com/StudioVBG/TALOK-sub014/pkg/logger"
)

// Backfiller attaches proofs to signed records whose proof generation failed
// at signing time.
type Backfiller struct {
	gen       *Generator
	signers   domain.SignerRepository
	documents domain.DocumentRepository
	log       *slog.Logger
}

func NewBackfiller(gen *Generator, signers domain.SignerRepository, documents domain.DocumentRepository, log *slog.Logger) *Backfiller {
	return &Backfiller{gen: gen, signers: signers, documents: documents, log: log}
}

type BackfillReport struct {
	Scanned  int
	Attached int
	Skipped  int
	Failed   int
}

func (b *Backfiller) Run(ctx context.Context, limit int) (BackfillReport, error) {
	var rep BackfillReport
	recs, err := b.signers.ListSignedWithoutProof(ctx, limit)
	if err != nil {
		return rep, fmt.Errorf("list signed records without proof: %w", err)
	}
	for _, rec := range recs {
		rep.Scanned++
		l := logger.From(logger.WithDocumentID(ctx, rec.DocumentID), b.log).With("signer_id", rec.SignerID)
		doc, err := b.documents.GetDocument(ctx, rec.DocumentID)
		if err != nil {
			rep.Failed++
			l.Warn("proof backfill: load document", "error", err)
			continue
		}
		capture := Capture{Type: domain.CaptureOTPOnly, ClientIP: rec.ClientIP, UserAgent: rec.UserAgent,
			Extra: map[string]string{"backfilled": "true"}}
		if rec.ArtifactRef != nil && *rec.ArtifactRef != "" {
			capture.Type = domain.CaptureDraw
			capture.ImagePath = strings.TrimSpace(*rec.ArtifactRef)
		}
		p, err := b.gen.Generate(doc, rec, capture)
		if err != nil {
			rep.Failed++
			l.Warn("proof backfill: generate", "error", err)
			continue
		}
		attached, err := b.signers.AttachProof(ctx, rec.SignerID, p)
		if err != nil {
			rep.Failed++
			l.Warn("proof backfill: attach", "error", err)
			continue
		}
		if !attached {
			rep.Skipped++
			continue
		}
		rep.Attached++
		l.Info("proof backfilled", "proof_id", p.ProofID)
	}
	return rep, nil
}
