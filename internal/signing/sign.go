package signing

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/StudioVBG/TALOK-sub014/internal/domain"
	"github.com/StudioVBG/TALOK-sub014/internal/lifecycle"
	"github.com/StudioVBG/TALOK-sub014/internal/proof"
	"github.com/StudioVBG/TALOK-sub014/internal/signers"
)

type SignRequest struct {
	Token string
	Code  string
	// SignatureImage is an optional data URL (data:image/png;base64,...).
	SignatureImage string
	ClientIP       string
	UserAgent      string
	CorrelationID  string
}

type Outcome struct {
	DocumentID    string                `json:"document_id"`
	SignerID      string                `json:"signer_id"`
	Role          domain.Role           `json:"role"`
	SignedAt      time.Time             `json:"signed_at"`
	ProofID       *string               `json:"proof_id,omitempty"`
	ArtifactRef   *string               `json:"artifact_ref,omitempty"`
	Status        domain.DocumentStatus `json:"document_status"`
	StatusChanged bool                  `json:"status_changed"`
	// Degraded lists the best-effort steps that failed; the signature stands.
	Degraded []string `json:"degraded,omitempty"`
}

type image struct {
	contentType string
	ext         string
	data        []byte
}

// Sign completes one signer slot. The conditional MarkSigned write is the
// only step whose failure fails the request; everything after it is logged
// and reported in Outcome.Degraded.
func (s *Service) Sign(ctx context.Context, req SignRequest) (Outcome, error) {
	inv, doc, err := s.invitation(ctx, req.Token)
	if err != nil {
		return Outcome{}, err
	}
	l := s.log(ctx, doc.DocumentID)

	// Reject a bad payload before it can burn the one-time code.
	img, err := decodeImage(req.SignatureImage, s.cfg.MaxImageBytes)
	if err != nil {
		return Outcome{}, err
	}

	res, err := s.deps.OTP.Verify(ctx, doc.DocumentID, inv.Channel, req.Code)
	if err != nil {
		return Outcome{}, err
	}
	if res.Reused {
		return Outcome{}, domain.ErrAlreadySigned
	}
	if !res.Valid {
		// A replay of a completed request is reported as already signed,
		// not as a bad code.
		if rec, err := s.deps.Directory.Resolve(ctx, doc.DocumentID, inv.Channel); err == nil && !rec.IsPending() {
			return Outcome{}, domain.ErrAlreadySigned
		}
		return Outcome{}, domain.ErrOTPMismatchOrExpired
	}

	rec, err := s.deps.Directory.Resolve(ctx, doc.DocumentID, inv.Channel)
	if err != nil {
		return Outcome{}, err
	}
	if err := signers.EnsurePending(rec); err != nil {
		return Outcome{}, err
	}
	l = l.With("signer_id", rec.SignerID)

	var degraded []string
	capture := proof.Capture{Type: domain.CaptureOTPOnly, ClientIP: req.ClientIP, UserAgent: req.UserAgent}
	var artifactRef *string
	if img != nil {
		capture.Type = domain.CaptureDraw
		// Each attempt writes its own object so a losing request cannot
		// replace the image referenced by the winning one.
		path := fmt.Sprintf("signatures/%s/%s/%s.%s", doc.DocumentID, rec.SignerID, newEntryID(s.now()), img.ext)
		if err := s.putObject(ctx, path, img.data, img.contentType); err != nil {
			l.Warn("signature image not stored", "error", err)
			degraded = append(degraded, "artifact")
		} else {
			artifactRef = &path
			capture.ImagePath = path
		}
	}

	var prf *domain.SignatureProof
	if s.deps.Proofs == nil {
		degraded = append(degraded, "proof")
	} else if p, err := s.deps.Proofs.Generate(doc, rec, capture); err != nil {
		l.Warn("proof generation failed; left for backfill", "error", fmt.Errorf("%w: %v", domain.ErrTransientStorage, err))
		degraded = append(degraded, "proof")
	} else {
		prf = &p
	}

	signedAt := s.now()
	err = s.deps.Signers.MarkSigned(ctx, rec.SignerID, domain.SignedOutcome{
		SignedAt:    signedAt,
		ArtifactRef: artifactRef,
		ClientIP:    req.ClientIP,
		UserAgent:   req.UserAgent,
	}, prf)
	if err != nil {
		if domain.IsAlreadySigned(err) {
			return Outcome{}, domain.ErrAlreadySigned
		}
		return Outcome{}, fmt.Errorf("mark signed: %w", err)
	}
	l.Info("signer signed", "role", rec.Role, "proof", prf != nil)

	out := Outcome{
		DocumentID:  doc.DocumentID,
		SignerID:    rec.SignerID,
		Role:        rec.Role,
		SignedAt:    signedAt,
		ArtifactRef: artifactRef,
		Status:      doc.Status,
	}
	if prf != nil {
		id := prf.ProofID
		out.ProofID = &id
	}

	// The signature is committed; a client disconnect must not leave the
	// document status behind it.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.TaskTimeout)
	tr, err := s.deps.Lifecycle.Recompute(rctx, doc.DocumentID)
	cancel()
	if err != nil {
		l.Error("status recompute failed", "error", err)
		degraded = append(degraded, "lifecycle")
	} else {
		out.Status = tr.To
		out.StatusChanged = tr.Changed
	}

	rec.State = domain.SignerSigned
	rec.SignedAt = &signedAt
	rec.ArtifactRef = artifactRef
	rec.ProofID = out.ProofID
	degraded = append(degraded, s.runTasks(ctx, s.postCommitTasks(doc, rec, tr, req.CorrelationID))...)
	out.Degraded = degraded
	return out, nil
}

func (s *Service) putObject(ctx context.Context, path string, data []byte, contentType string) error {
	if s.deps.Objects == nil {
		return errors.New("no object store configured")
	}
	tctx, cancel := context.WithTimeout(ctx, s.cfg.TaskTimeout)
	defer cancel()
	if err := s.deps.Objects.Put(tctx, path, data, contentType); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransientStorage, err)
	}
	return nil
}

var imageTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
}

// decodeImage parses a base64 data URL. An empty input means an OTP-only
// signature.
func decodeImage(raw string, maxBytes int) (*image, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if !strings.HasPrefix(strings.ToLower(raw), "data:") {
		return nil, domain.ErrInvalidArtifact
	}
	header, payload, ok := strings.Cut(raw[len("data:"):], ",")
	if !ok {
		return nil, domain.ErrInvalidArtifact
	}
	mediaType, enc, ok := strings.Cut(strings.ToLower(header), ";")
	if !ok || enc != "base64" {
		return nil, domain.ErrInvalidArtifact
	}
	ext, ok := imageTypes[mediaType]
	if !ok {
		return nil, domain.ErrInvalidArtifact
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > maxBytes+3 {
		return nil, domain.ErrInvalidArtifact
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, domain.ErrInvalidArtifact
		}
	}
	if len(data) == 0 || len(data) > maxBytes {
		return nil, domain.ErrInvalidArtifact
	}
	return &image{contentType: mediaType, ext: ext, data: data}, nil
}

// recomputed is the zero Transition used when the lifecycle step failed.
func recomputed(tr lifecycle.Transition) bool { return tr.DocumentID != "" }
