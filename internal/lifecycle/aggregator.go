// Package lifecycle derives a document's status from its full signer set
// and applies the result with a conditional, forward-only write.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/StudioVBG/TALOK-sub014/internal/domain"
)

// Policy decides whether a fully signed signer set completes the document.
// It is supplied by the business rules for the document kind.
type Policy interface {
	Complete(doc domain.Document, signers []domain.SignerRecord) bool
}

// RolesPolicy requires at least MinRoles distinct roles among the signers.
type RolesPolicy struct {
	MinRoles int
}

func (p RolesPolicy) Complete(_ domain.Document, signers []domain.SignerRecord) bool {
	min := p.MinRoles
	if min <= 0 {
		min = 2
	}
	roles := map[domain.Role]struct{}{}
	for _, s := range signers {
		roles[s.Role] = struct{}{}
	}
	return len(roles) >= min
}

// Compute returns the status implied by signers, or current when no rule applies.
func Compute(doc domain.Document, signers []domain.SignerRecord, policy Policy) domain.DocumentStatus {
	if len(signers) == 0 {
		return doc.Status
	}
	var signed, nonOwner, nonOwnerSigned, ownerPending int
	for _, s := range signers {
		isSigned := !s.IsPending()
		if isSigned {
			signed++
		}
		if s.Role == domain.RoleOwner {
			if !isSigned {
				ownerPending++
			}
			continue
		}
		nonOwner++
		if isSigned {
			nonOwnerSigned++
		}
	}

	switch {
	case signed == len(signers) && policy.Complete(doc, signers):
		return domain.StatusFullySigned
	case nonOwner > 0 && nonOwnerSigned == nonOwner && ownerPending > 0:
		return domain.StatusAwaitingCounterSignature
	case signed > 0:
		return domain.StatusPartiallySigned
	default:
		return doc.Status
	}
}

// Transition reports the outcome of a recomputation. Changed is true for
// exactly one caller per actual status change.
type Transition struct {
	DocumentID string
	From       domain.DocumentStatus
	To         domain.DocumentStatus
	Changed    bool
	Signers    []domain.SignerRecord
}

type Aggregator struct {
	documents   domain.DocumentRepository
	signers     domain.SignerRepository
	policy      Policy
	maxAttempts int
}

func NewAggregator(documents domain.DocumentRepository, signers domain.SignerRepository, policy Policy) *Aggregator {
	if policy == nil {
		policy = RolesPolicy{MinRoles: 2}
	}
	return &Aggregator{documents: documents, signers: signers, policy: policy, maxAttempts: 5}
}

// Recompute re-reads the document and every signer record, then moves the
// status forward if the signer set implies a later state. A lost
// conditional write is retried against fresh reads; a regression is never
// written.
func (a *Aggregator) Recompute(ctx context.Context, documentID string) (Transition, error) {
	var last Transition
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		doc, err := a.documents.GetDocument(ctx, documentID)
		if err != nil {
			return Transition{}, fmt.Errorf("load document: %w", err)
		}
		signers, err := a.signers.ListSigners(ctx, documentID)
		if err != nil {
			return Transition{}, fmt.Errorf("list signers: %w", err)
		}
		target := Compute(doc, signers, a.policy)
		last = Transition{DocumentID: documentID, From: doc.Status, To: doc.Status, Signers: signers}
		if target.Rank() <= doc.Status.Rank() {
			return last, nil
		}
		ok, err := a.documents.TransitionStatus(ctx, documentID, doc.Status, target)
		if err != nil {
			return Transition{}, fmt.Errorf("transition %s -> %s: %w", doc.Status, target, err)
		}
		if ok {
			last.To = target
			last.Changed = true
			return last, nil
		}
	}
	return last, fmt.Errorf("recompute %s: %w", documentID, domain.ErrStateConflict)
}
