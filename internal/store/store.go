// Package store is the Postgres implementation of the repository ports, the
// OTP challenge store, the audit log and the idempotency store.
package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/StudioVBG/TALOK-sub014/internal/domain"
	"github.com/StudioVBG/TALOK-sub014/internal/idempotency"
	"github.com/StudioVBG/TALOK-sub014/internal/otp"
	"github.com/StudioVBG/TALOK-sub014/internal/seed"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/0001_cosign.sql
var schemaSQL string

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// Migrate applies the schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, schemaSQL)
	return err
}

const signerColumns = `signer_id,document_id,role,email,display_name,identity_id,state,signed_at,artifact_ref,proof_id,client_ip,user_agent`

func scanSigner(row pgx.Row) (domain.SignerRecord, error) {
	var rec domain.SignerRecord
	var role, state string
	err := row.Scan(&rec.SignerID, &rec.DocumentID, &role, &rec.Email, &rec.DisplayName, &rec.IdentityID,
		&state, &rec.SignedAt, &rec.ArtifactRef, &rec.ProofID, &rec.ClientIP, &rec.UserAgent)
	if err != nil {
		return domain.SignerRecord{}, err
	}
	rec.Role = domain.Role(role)
	rec.State = domain.SignerState(state)
	return rec, nil
}

func (s *Store) GetDocument(ctx context.Context, documentID string) (domain.Document, error) {
	var doc domain.Document
	var kind, status string
	err := s.DB.QueryRow(ctx, `
SELECT document_id,kind,title,status,content_ref,owner_account_id,created_at,updated_at
FROM cosign_documents
WHERE document_id=$1
`, documentID).Scan(&doc.DocumentID, &kind, &doc.Title, &status, &doc.ContentRef, &doc.OwnerAccountID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Document{}, domain.ErrDocumentNotFound
		}
		return domain.Document{}, err
	}
	doc.Kind = domain.DocumentKind(kind)
	doc.Status = domain.DocumentStatus(status)
	return doc, nil
}

func (s *Store) TransitionStatus(ctx context.Context, documentID string, from, to domain.DocumentStatus) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
UPDATE cosign_documents
SET status=$3, updated_at=now()
WHERE document_id=$1 AND status=$2
`, documentID, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListSigners(ctx context.Context, documentID string) ([]domain.SignerRecord, error) {
	rows, err := s.DB.Query(ctx, `
SELECT `+signerColumns+`
FROM cosign_signers
WHERE document_id=$1
ORDER BY created_at ASC, signer_id ASC
`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.SignerRecord{}
	for rows.Next() {
		rec, err := scanSigner(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) GetSigner(ctx context.Context, signerID string) (domain.SignerRecord, error) {
	rec, err := scanSigner(s.DB.QueryRow(ctx, `SELECT `+signerColumns+` FROM cosign_signers WHERE signer_id=$1`, signerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SignerRecord{}, domain.ErrNotFound
	}
	return rec, err
}

// insertProof reports false when the signer already owns a proof.
func insertProof(ctx context.Context, tx pgx.Tx, p domain.SignatureProof) (bool, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return false, err
	}
	tag, err := tx.Exec(ctx, `
INSERT INTO cosign_proofs(proof_id,document_id,signer_id,content_hash,proof,created_at)
VALUES($1,$2,$3,$4,$5::jsonb,$6)
ON CONFLICT (signer_id) DO NOTHING
`, p.ProofID, p.DocumentID, p.SignerID, p.ContentHash, string(body), p.CreatedAt.UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkSigned is the serialization point for a signer slot: the update only
// matches a row that is still pending on both columns.
func (s *Store) MarkSigned(ctx context.Context, signerID string, outcome domain.SignedOutcome, proof *domain.SignatureProof) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var proofID *string
	if proof != nil {
		inserted, err := insertProof(ctx, tx, *proof)
		if err != nil {
			return fmt.Errorf("insert proof: %w", err)
		}
		if !inserted {
			return domain.ErrStateConflict
		}
		id := proof.ProofID
		proofID = &id
	}
	tag, err := tx.Exec(ctx, `
UPDATE cosign_signers
SET state='signed', signed_at=$2, artifact_ref=$3, proof_id=$4, client_ip=$5, user_agent=$6
WHERE signer_id=$1 AND state='pending' AND signed_at IS NULL
`, signerID, outcome.SignedAt.UTC(), outcome.ArtifactRef, proofID, outcome.ClientIP, outcome.UserAgent)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM cosign_signers WHERE signer_id=$1)`, signerID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrStateConflict
	}
	return tx.Commit(ctx)
}

func (s *Store) ListSignedWithoutProof(ctx context.Context, limit int) ([]domain.SignerRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.Query(ctx, `
SELECT `+signerColumns+`
FROM cosign_signers
WHERE state='signed' AND proof_id IS NULL
ORDER BY signer_id ASC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.SignerRecord
	for rows.Next() {
		rec, err := scanSigner(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) AttachProof(ctx context.Context, signerID string, proof domain.SignatureProof) (bool, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)
	inserted, err := insertProof(ctx, tx, proof)
	if err != nil {
		return false, fmt.Errorf("insert proof: %w", err)
	}
	if !inserted {
		return false, nil
	}
	tag, err := tx.Exec(ctx, `
UPDATE cosign_signers SET proof_id=$2
WHERE signer_id=$1 AND state='signed' AND proof_id IS NULL
`, signerID, proof.ProofID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	return true, tx.Commit(ctx)
}

func (s *Store) GetProof(ctx context.Context, proofID string) (domain.SignatureProof, error) {
	var body []byte
	err := s.DB.QueryRow(ctx, `SELECT proof FROM cosign_proofs WHERE proof_id=$1`, proofID).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SignatureProof{}, domain.ErrNotFound
		}
		return domain.SignatureProof{}, err
	}
	var p domain.SignatureProof
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.SignatureProof{}, fmt.Errorf("decode proof %s: %w", proofID, err)
	}
	return p, nil
}

func (s *Store) Append(ctx context.Context, e domain.AuditEntry) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO cosign_audit_entries(entry_id,actor_id,action,resource_id,before_state,after_state,ts,correlation_id)
VALUES($1,$2,$3,$4,$5,$6,$7,$8)
`, e.EntryID, e.ActorID, e.Action, e.ResourceID, e.BeforeState, e.AfterState, e.Timestamp.UTC(), e.CorrelationID)
	return err
}

func (s *Store) AccountIDByEmail(ctx context.Context, email string) (string, bool, error) {
	var id string
	err := s.DB.QueryRow(ctx, `SELECT account_id FROM cosign_accounts WHERE email=lower($1)`, domain.NormalizeChannel(email)).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return id, true, nil
}

func (s *Store) GetIdempotencyRecord(ctx context.Context, scopeID, actorID, key, endpoint string) (*idempotency.Record, error) {
	var rec idempotency.Record
	err := s.DB.QueryRow(ctx, `
SELECT response_status,response_body
FROM cosign_idempotency_records
WHERE scope_id=$1 AND actor_id=$2 AND idempotency_key=$3 AND endpoint=$4
`, scopeID, actorID, key, endpoint).Scan(&rec.ResponseStatus, &rec.ResponseBody)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (s *Store) SaveIdempotencyRecord(ctx context.Context, scopeID, actorID, key, endpoint string, rec idempotency.Record) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO cosign_idempotency_records(scope_id,actor_id,idempotency_key,endpoint,response_status,response_body)
VALUES($1,$2,$3,$4,$5,$6::jsonb)
ON CONFLICT (scope_id,actor_id,idempotency_key,endpoint) DO NOTHING
`, scopeID, actorID, key, endpoint, rec.ResponseStatus, string(rec.ResponseBody))
	return err
}

// Import upserts fixtures. Existing signer outcomes are never overwritten.
func (s *Store) Import(ctx context.Context, fx seed.Fixtures) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	for _, d := range fx.Documents {
		if _, err := tx.Exec(ctx, `
INSERT INTO cosign_documents(document_id,kind,title,status,content_ref,owner_account_id)
VALUES($1,$2,$3,$4,$5,$6)
ON CONFLICT (document_id) DO UPDATE SET kind=EXCLUDED.kind,title=EXCLUDED.title,content_ref=EXCLUDED.content_ref,owner_account_id=EXCLUDED.owner_account_id,updated_at=now()
`, d.DocumentID, string(d.Kind), d.Title, string(d.Status), d.ContentRef, d.OwnerAccountID); err != nil {
			return fmt.Errorf("document %s: %w", d.DocumentID, err)
		}
	}
	for _, r := range fx.Signers {
		if _, err := tx.Exec(ctx, `
INSERT INTO cosign_signers(signer_id,document_id,role,email,display_name,identity_id)
VALUES($1,$2,$3,lower($4),$5,$6)
ON CONFLICT (signer_id) DO UPDATE SET display_name=EXCLUDED.display_name,identity_id=EXCLUDED.identity_id
`, r.SignerID, r.DocumentID, string(r.Role), r.Email, r.DisplayName, r.IdentityID); err != nil {
			return fmt.Errorf("signer %s: %w", r.SignerID, err)
		}
	}
	for email, id := range fx.Accounts {
		if _, err := tx.Exec(ctx, `
INSERT INTO cosign_accounts(account_id,email) VALUES($1,lower($2))
ON CONFLICT (email) DO UPDATE SET account_id=EXCLUDED.account_id
`, id, email); err != nil {
			return fmt.Errorf("account %s: %w", email, err)
		}
	}
	return tx.Commit(ctx)
}

var (
	_ domain.DocumentRepository = (*Store)(nil)
	_ domain.SignerRepository   = (*Store)(nil)
	_ domain.ProofRepository    = (*Store)(nil)
	_ domain.AuditLog           = (*Store)(nil)
	_ idempotency.Store         = (*Store)(nil)
	_ otp.ChallengeStore        = (*Store)(nil)
)
