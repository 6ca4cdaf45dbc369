package signing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/StudioVBG/TALOK-sub014/internal/domain"
	"github.com/StudioVBG/TALOK-sub014/internal/lifecycle"
	"github.com/StudioVBG/TALOK-sub014/pkg/evidencehash"
	"github.com/StudioVBG/TALOK-sub014/pkg/logger"
)

const (
	TemplateSignatureReceived   = "signature.received"
	TemplateAwaitingCounterSign = "document.awaiting_counter_signature"
	TemplatePartiallySigned     = "document.partially_signed"
	TemplateFullySigned         = "document.fully_signed"
	TemplateInvitation          = "signature.invitation"
	ActionSignerSigned          = "signer.signed"
	ActionDocumentStatusChanged = "document.status_changed"
	ActionSignedCopiesGenerated = "document.signed_copies_generated"
	ActionInvitationsSent       = "document.invitations_sent"
	manifestVersion             = "signed-copy-v1"
)

// task is one post-commit side effect. Its failure is logged and reported
// but never undoes the signature that triggered it.
type task struct {
	name string
	run  func(ctx context.Context) error
}

// runTasks executes tasks in order, each under its own timeout and detached
// from the caller's cancellation. It returns the names of failed tasks.
func (s *Service) runTasks(ctx context.Context, tasks []task) []string {
	base := context.WithoutCancel(ctx)
	var failed []string
	for _, t := range tasks {
		tctx, cancel := context.WithTimeout(base, s.cfg.TaskTimeout)
		err := t.run(tctx)
		cancel()
		if err != nil {
			logger.From(ctx, s.deps.Log).Warn("post-commit task failed", "task", t.name, "error", err)
			failed = append(failed, t.name)
		}
	}
	return failed
}

func (s *Service) postCommitTasks(doc domain.Document, rec domain.SignerRecord, tr lifecycle.Transition, correlationID string) []task {
	now := s.now()
	pending := string(domain.SignerPending)
	tasks := []task{{
		name: "audit.signer",
		run: func(ctx context.Context) error {
			return s.appendAudit(ctx, domain.AuditEntry{
				EntryID:       newEntryID(now),
				ActorID:       actorFor(rec),
				Action:        ActionSignerSigned,
				ResourceID:    rec.SignerID,
				BeforeState:   &pending,
				AfterState:    string(domain.SignerSigned),
				Timestamp:     now,
				CorrelationID: correlationID,
			})
		},
	}}

	status := doc.Status
	if recomputed(tr) {
		status = tr.To
	}
	if doc.OwnerAccountID != "" && rec.Role != domain.RoleOwner {
		tasks = append(tasks, task{
			name: "notify.owner",
			run: func(ctx context.Context) error {
				return s.notify(ctx, doc.OwnerAccountID, TemplateSignatureReceived, map[string]any{
					"document_id": doc.DocumentID,
					"title":       doc.Title,
					"signer_role": string(rec.Role),
					"signer_name": rec.DisplayName,
					"status":      string(status),
				})
			},
		})
	}

	if !tr.Changed {
		return tasks
	}
	return append(tasks, s.lifecycleTasks(doc, tr, actorFor(rec), correlationID, now)...)
}

// lifecycleTasks are the side effects of a status transition: the audit
// entry, the owner notification and, on completion, the signed copies.
func (s *Service) lifecycleTasks(doc domain.Document, tr lifecycle.Transition, actor, correlationID string, now time.Time) []task {
	from := string(tr.From)
	tasks := []task{{
		name: "audit.status",
		run: func(ctx context.Context) error {
			return s.appendAudit(ctx, domain.AuditEntry{
				EntryID:       newEntryID(now),
				ActorID:       actor,
				Action:        ActionDocumentStatusChanged,
				ResourceID:    doc.DocumentID,
				BeforeState:   &from,
				AfterState:    string(tr.To),
				Timestamp:     now,
				CorrelationID: correlationID,
			})
		},
	}}

	if template := lifecycleTemplate(tr.To); template != "" && doc.OwnerAccountID != "" {
		tasks = append(tasks, task{
			name: "notify.lifecycle",
			run: func(ctx context.Context) error {
				return s.notify(ctx, doc.OwnerAccountID, template, map[string]any{
					"document_id": doc.DocumentID,
					"title":       doc.Title,
					"from":        from,
					"status":      string(tr.To),
				})
			},
		})
	}

	if tr.To == domain.StatusFullySigned {
		tasks = append(tasks, task{
			name: "signed_copies",
			run: func(ctx context.Context) error {
				return s.writeSignedCopies(ctx, doc, tr.Signers, correlationID, now)
			},
		})
	}
	return tasks
}

func lifecycleTemplate(to domain.DocumentStatus) string {
	switch to {
	case domain.StatusFullySigned:
		return TemplateFullySigned
	case domain.StatusAwaitingCounterSignature:
		return TemplateAwaitingCounterSign
	case domain.StatusPartiallySigned:
		return TemplatePartiallySigned
	}
	return ""
}

func actorFor(rec domain.SignerRecord) string {
	if rec.IdentityID != nil && *rec.IdentityID != "" {
		return *rec.IdentityID
	}
	return "signer:" + rec.SignerID
}

func (s *Service) appendAudit(ctx context.Context, e domain.AuditEntry) error {
	if s.deps.Audit == nil {
		return nil
	}
	return s.deps.Audit.Append(ctx, e)
}

func (s *Service) notify(ctx context.Context, userID, template string, payload map[string]any) error {
	if s.deps.Notifier == nil {
		return nil
	}
	return s.deps.Notifier.Send(ctx, userID, template, payload)
}

// SignedCopy is the per-signer manifest written once a document completes.
type SignedCopy struct {
	DocumentID   string      `json:"document_id"`
	Title        string      `json:"title"`
	ContentRef   string      `json:"content_ref"`
	ContentHash  string      `json:"content_hash"`
	SignerID     string      `json:"signer_id"`
	Role         domain.Role `json:"role"`
	Signatures   []CopyEntry `json:"signatures"`
	ManifestHash string      `json:"manifest_hash"`
	GeneratedAt  time.Time   `json:"generated_at"`
}

type CopyEntry struct {
	SignerID string      `json:"signer_id"`
	Role     domain.Role `json:"role"`
	SignedAt *time.Time  `json:"signed_at,omitempty"`
	ProofID  string      `json:"proof_id,omitempty"`
}

// SignedCopyPath is where the manifest for one signer is stored.
func SignedCopyPath(documentID, signerID string) string {
	return fmt.Sprintf("signed/%s/%s.json", documentID, signerID)
}

func (s *Service) writeSignedCopies(ctx context.Context, doc domain.Document, signersSet []domain.SignerRecord, correlationID string, now time.Time) error {
	if s.deps.Objects == nil {
		return nil
	}
	contentHash := evidencehash.Prefixed(evidencehash.HashStringSHA256Hex(doc.ContentRef))
	entries := make([]evidencehash.ManifestEntry, 0, len(signersSet))
	copies := make([]CopyEntry, 0, len(signersSet))
	for _, r := range signersSet {
		proofID := ""
		if r.ProofID != nil {
			proofID = *r.ProofID
		}
		var signedAt string
		if r.SignedAt != nil {
			signedAt = r.SignedAt.UTC().Format(time.RFC3339Nano)
		}
		entries = append(entries, evidencehash.ManifestEntry{
			SignerID: r.SignerID,
			ProofID:  proofID,
			Hash:     evidencehash.HashStringSHA256Hex(string(r.Role) + "\n" + signedAt),
		})
		copies = append(copies, CopyEntry{SignerID: r.SignerID, Role: r.Role, SignedAt: r.SignedAt, ProofID: proofID})
	}
	manifestHash := evidencehash.Prefixed(evidencehash.ComputeManifestHash(manifestVersion, doc.DocumentID, contentHash, entries))

	for _, r := range signersSet {
		body, err := json.Marshal(SignedCopy{
			DocumentID:   doc.DocumentID,
			Title:        doc.Title,
			ContentRef:   doc.ContentRef,
			ContentHash:  contentHash,
			SignerID:     r.SignerID,
			Role:         r.Role,
			Signatures:   copies,
			ManifestHash: manifestHash,
			GeneratedAt:  now,
		})
		if err != nil {
			return err
		}
		if err := s.deps.Objects.Put(ctx, SignedCopyPath(doc.DocumentID, r.SignerID), body, "application/json"); err != nil {
			return fmt.Errorf("%w: signed copy for %s: %v", domain.ErrTransientStorage, r.SignerID, err)
		}
	}
	return s.appendAudit(ctx, domain.AuditEntry{
		EntryID:       newEntryID(now),
		ActorID:       "system",
		Action:        ActionSignedCopiesGenerated,
		ResourceID:    doc.DocumentID,
		AfterState:    manifestHash,
		Timestamp:     now,
		CorrelationID: correlationID,
	})
}
