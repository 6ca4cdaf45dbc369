package signing

import (
	"context"
	"fmt"

	"github.com/StudioVBG/TALOK-sub014/internal/domain"
)

type IssuedInvitation struct {
	SignerID string      `json:"signer_id"`
	Role     domain.Role `json:"role"`
	Email    string      `json:"email"`
	Token    string      `json:"token"`
	Link     string      `json:"link"`
	Notified bool        `json:"notified"`
}

// Invite mints one link per pending signer, sends it, and opens the document
// for signatures. Signers who already signed are skipped.
func (s *Service) Invite(ctx context.Context, documentID, actorID string) ([]IssuedInvitation, error) {
	doc, err := s.deps.Documents.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status.Terminal() {
		return nil, fmt.Errorf("document %s is %s: %w", documentID, doc.Status, domain.ErrStateConflict)
	}
	all, err := s.deps.Signers.ListSigners(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list signers: %w", err)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("document %s has no signers: %w", documentID, domain.ErrSignerNotFound)
	}

	l := s.log(ctx, documentID)
	out := []IssuedInvitation{}
	for _, rec := range all {
		if !rec.IsPending() {
			continue
		}
		token, err := s.deps.Tokens.Issue(documentID, rec.Email)
		if err != nil {
			return nil, fmt.Errorf("issue token: %w", err)
		}
		inv := IssuedInvitation{
			SignerID: rec.SignerID,
			Role:     rec.Role,
			Email:    rec.Email,
			Token:    token,
			Link:     s.cfg.LinkBaseURL + "/invite/" + token,
		}
		tctx, cancel := context.WithTimeout(ctx, s.cfg.TaskTimeout)
		err = s.notify(tctx, recipientFor(rec), TemplateInvitation, map[string]any{
			"document_id": documentID,
			"title":       doc.Title,
			"role":        string(rec.Role),
			"email":       rec.Email,
			"link":        inv.Link,
		})
		cancel()
		if err != nil {
			l.Warn("invitation not delivered", "signer_id", rec.SignerID, "error", err)
		} else {
			inv.Notified = s.deps.Notifier != nil
		}
		out = append(out, inv)
	}

	if doc.Status == domain.StatusDraft {
		ok, err := s.deps.Documents.TransitionStatus(ctx, documentID, domain.StatusDraft, domain.StatusAwaitingSignatures)
		if err != nil {
			return nil, fmt.Errorf("open document: %w", err)
		}
		if ok {
			now := s.now()
			before := string(domain.StatusDraft)
			if err := s.appendAudit(ctx, domain.AuditEntry{
				EntryID:     newEntryID(now),
				ActorID:     actorID,
				Action:      ActionInvitationsSent,
				ResourceID:  documentID,
				BeforeState: &before,
				AfterState:  string(domain.StatusAwaitingSignatures),
				Timestamp:   now,
			}); err != nil {
				l.Warn("audit append failed", "error", err)
			}
		}
	}
	l.Info("invitations issued", "count", len(out), "actor_id", actorID)
	return out, nil
}

// recipientFor addresses a notification to the linked account when there is
// one, and to the invited email otherwise.
func recipientFor(rec domain.SignerRecord) string {
	if rec.IdentityID != nil && *rec.IdentityID != "" {
		return *rec.IdentityID
	}
	return rec.Email
}
