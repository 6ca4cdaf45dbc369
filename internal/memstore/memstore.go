// Package memstore is an in-process implementation of every repository port.
// It backs the "memory" store driver and the package tests; conditional
// writes are serialized by a single mutex.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/StudioVBG/TALOK-sub014/internal/domain"
	"github.com/StudioVBG/TALOK-sub014/internal/idempotency"
)

type Store struct {
	mu          sync.Mutex
	documents   map[string]domain.Document
	signers     map[string]domain.SignerRecord
	order       map[string][]string
	proofs      map[string]domain.SignatureProof
	audit       []domain.AuditEntry
	accounts    map[string]string
	idempotency map[string]idempotency.Record
	now         func() time.Time
}

func New() *Store {
	return &Store{
		documents:   map[string]domain.Document{},
		signers:     map[string]domain.SignerRecord{},
		order:       map[string][]string{},
		proofs:      map[string]domain.SignatureProof{},
		accounts:    map[string]string{},
		idempotency: map[string]idempotency.Record{},
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) PutDocument(doc domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.Status == "" {
		doc.Status = domain.StatusDraft
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now()
	}
	doc.UpdatedAt = doc.CreatedAt
	s.documents[doc.DocumentID] = doc
}

func (s *Store) PutSigner(rec domain.SignerRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Email = domain.NormalizeChannel(rec.Email)
	if rec.State == "" {
		rec.State = domain.SignerPending
	}
	if _, exists := s.signers[rec.SignerID]; !exists {
		s.order[rec.DocumentID] = append(s.order[rec.DocumentID], rec.SignerID)
	}
	s.signers[rec.SignerID] = rec
}

func (s *Store) LinkAccount(email, accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[domain.NormalizeChannel(email)] = accountID
}

func (s *Store) GetDocument(_ context.Context, documentID string) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[documentID]
	if !ok {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	return doc, nil
}

func (s *Store) TransitionStatus(_ context.Context, documentID string, from, to domain.DocumentStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[documentID]
	if !ok {
		return false, domain.ErrDocumentNotFound
	}
	if doc.Status != from {
		return false, nil
	}
	doc.Status = to
	doc.UpdatedAt = s.now()
	s.documents[documentID] = doc
	return true, nil
}

func (s *Store) ListSigners(_ context.Context, documentID string) ([]domain.SignerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.order[documentID]
	out := make([]domain.SignerRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.signers[id])
	}
	return out, nil
}

func (s *Store) GetSigner(_ context.Context, signerID string) (domain.SignerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.signers[signerID]
	if !ok {
		return domain.SignerRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *Store) MarkSigned(_ context.Context, signerID string, outcome domain.SignedOutcome, proof *domain.SignatureProof) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.signers[signerID]
	if !ok {
		return domain.ErrNotFound
	}
	if !rec.IsPending() {
		return domain.ErrStateConflict
	}
	signedAt := outcome.SignedAt.UTC()
	rec.State = domain.SignerSigned
	rec.SignedAt = &signedAt
	rec.ArtifactRef = outcome.ArtifactRef
	rec.ClientIP = outcome.ClientIP
	rec.UserAgent = outcome.UserAgent
	if proof != nil {
		id := proof.ProofID
		rec.ProofID = &id
		s.proofs[id] = *proof
	}
	s.signers[signerID] = rec
	return nil
}

func (s *Store) ListSignedWithoutProof(_ context.Context, limit int) ([]domain.SignerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SignerRecord
	for _, rec := range s.signers {
		if rec.State == domain.SignerSigned && rec.ProofID == nil {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SignerID < out[j].SignerID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) AttachProof(_ context.Context, signerID string, proof domain.SignatureProof) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.signers[signerID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if rec.State != domain.SignerSigned || rec.ProofID != nil {
		return false, nil
	}
	id := proof.ProofID
	rec.ProofID = &id
	s.proofs[id] = proof
	s.signers[signerID] = rec
	return true, nil
}

func (s *Store) GetProof(_ context.Context, proofID string) (domain.SignatureProof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proofs[proofID]
	if !ok {
		return domain.SignatureProof{}, domain.ErrNotFound
	}
	return p, nil
}

// Proofs returns every stored proof, for assertions.
func (s *Store) Proofs() []domain.SignatureProof {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SignatureProof, 0, len(s.proofs))
	for _, p := range s.proofs {
		out = append(out, p)
	}
	return out
}

func (s *Store) Append(_ context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
	return nil
}

func (s *Store) AuditEntries() []domain.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditEntry(nil), s.audit...)
}

func (s *Store) AccountIDByEmail(_ context.Context, email string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.accounts[domain.NormalizeChannel(email)]
	return id, ok, nil
}

func idemKey(scopeID, actorID, key, endpoint string) string {
	return scopeID + "\x00" + actorID + "\x00" + key + "\x00" + endpoint
}

func (s *Store) GetIdempotencyRecord(_ context.Context, scopeID, actorID, key, endpoint string) (*idempotency.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.idempotency[idemKey(scopeID, actorID, key, endpoint)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *Store) SaveIdempotencyRecord(_ context.Context, scopeID, actorID, key, endpoint string, rec idempotency.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := idemKey(scopeID, actorID, key, endpoint)
	if _, exists := s.idempotency[k]; exists {
		return nil
	}
	s.idempotency[k] = rec
	return nil
}

var (
	_ domain.DocumentRepository = (*Store)(nil)
	_ domain.SignerRepository   = (*Store)(nil)
	_ domain.ProofRepository    = (*Store)(nil)
	_ domain.AuditLog           = (*Store)(nil)
	_ idempotency.Store         = (*Store)(nil)
)
