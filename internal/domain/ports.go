package domain

import (
	"context"
	"time"
)

type DocumentRepository interface {
	GetDocument(ctx context.Context, documentID string) (Document, error)
	// TransitionStatus moves the document from -> to only if its current
	// status is still from. It reports false, nil when the precondition failed.
	TransitionStatus(ctx context.Context, documentID string, from, to DocumentStatus) (bool, error)
}

type SignerRepository interface {
	ListSigners(ctx context.Context, documentID string) ([]SignerRecord, error)
	GetSigner(ctx context.Context, signerID string) (SignerRecord, error)
	// MarkSigned flips a pending record to signed and stores proof, if any, in
	// the same write. It returns ErrStateConflict when the record is no
	// longer pending; nothing is persisted in that case.
	MarkSigned(ctx context.Context, signerID string, outcome SignedOutcome, proof *SignatureProof) error
	// ListSignedWithoutProof feeds proof backfill.
	ListSignedWithoutProof(ctx context.Context, limit int) ([]SignerRecord, error)
	// AttachProof sets the proof of a signed record whose proof is still empty.
	AttachProof(ctx context.Context, signerID string, proof SignatureProof) (bool, error)
}

type ProofRepository interface {
	GetProof(ctx context.Context, proofID string) (SignatureProof, error)
}

type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
}

type ObjectStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

type Notifier interface {
	Send(ctx context.Context, userID, templateID string, payload map[string]any) error
}
