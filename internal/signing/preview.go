package signing

import (
	"context"
	"time"

	"github.com/StudioVBG/TALOK-sub014/internal/domain"
	"github.com/StudioVBG/TALOK-sub014/internal/signers"
)

type SignerSummary struct {
	SignerID    string      `json:"signer_id"`
	Role        domain.Role `json:"role"`
	DisplayName string      `json:"display_name"`
	Email       string      `json:"email"`
	Signed      bool        `json:"signed"`
}

type Preview struct {
	DocumentID string                `json:"document_id"`
	Kind       domain.DocumentKind   `json:"kind"`
	Title      string                `json:"title"`
	Status     domain.DocumentStatus `json:"status"`
	Signer     SignerSummary         `json:"signer"`
	// CoSigners carries masked addresses only.
	CoSigners  []SignerSummary `json:"co_signers"`
	ContentURL string          `json:"content_url,omitempty"`
}

// Preview resolves the invitee and summarises the document. An invitee who
// already signed still gets a preview with Signer.Signed set.
func (s *Service) Preview(ctx context.Context, token string) (Preview, error) {
	inv, doc, err := s.invitation(ctx, token)
	if err != nil {
		return Preview{}, err
	}
	rec, err := s.deps.Directory.Resolve(ctx, doc.DocumentID, inv.Channel)
	if err != nil {
		return Preview{}, err
	}
	all, err := s.deps.Signers.ListSigners(ctx, doc.DocumentID)
	if err != nil {
		return Preview{}, err
	}

	p := Preview{
		DocumentID: doc.DocumentID,
		Kind:       doc.Kind,
		Title:      doc.Title,
		Status:     doc.Status,
		Signer: SignerSummary{
			SignerID:    rec.SignerID,
			Role:        rec.Role,
			DisplayName: rec.DisplayName,
			Email:       rec.Email,
			Signed:      !rec.IsPending(),
		},
		CoSigners: []SignerSummary{},
	}
	for _, other := range all {
		if other.SignerID == rec.SignerID {
			continue
		}
		p.CoSigners = append(p.CoSigners, SignerSummary{
			Role:        other.Role,
			DisplayName: other.DisplayName,
			Email:       domain.MaskEmail(other.Email),
			Signed:      !other.IsPending(),
		})
	}

	if s.deps.Objects != nil && doc.ContentRef != "" {
		tctx, cancel := context.WithTimeout(ctx, s.cfg.TaskTimeout)
		url, err := s.deps.Objects.SignedURL(tctx, doc.ContentRef, s.cfg.SignedURLTTL)
		cancel()
		if err != nil {
			s.log(ctx, doc.DocumentID).Warn("content url unavailable", "error", err)
		} else {
			p.ContentURL = url
		}
	}
	return p, nil
}

type Challenge struct {
	Channel   string    `json:"channel"`
	ExpiresAt time.Time `json:"expires_at"`
	DevCode   string    `json:"dev_code,omitempty"`
}

// RequestOTP issues a fresh code to the invited channel. Only a pending
// signer of the document may request one.
func (s *Service) RequestOTP(ctx context.Context, token string) (Challenge, error) {
	inv, doc, err := s.invitation(ctx, token)
	if err != nil {
		return Challenge{}, err
	}
	rec, err := s.deps.Directory.Resolve(ctx, doc.DocumentID, inv.Channel)
	if err != nil {
		return Challenge{}, err
	}
	if err := signers.EnsurePending(rec); err != nil {
		return Challenge{}, err
	}
	code, expiresAt, err := s.deps.OTP.Issue(ctx, doc.DocumentID, inv.Channel)
	if err != nil {
		return Challenge{}, err
	}
	s.log(ctx, doc.DocumentID).Info("otp issued", "signer_id", rec.SignerID, "channel", domain.MaskEmail(inv.Channel))
	ch := Challenge{Channel: domain.MaskEmail(inv.Channel), ExpiresAt: expiresAt}
	if s.cfg.ExposeOTP {
		ch.DevCode = code
	}
	return ch, nil
}
