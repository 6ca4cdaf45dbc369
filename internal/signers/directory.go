// Package signers maps a verified (document, channel) pair to exactly one
// signer record of that document.
package signers

import (
	"context"
	"fmt"

	"github.com/StudioVBG/TALOK-sub014/internal/domain"
)

// IdentityLookup finds the account registered under an email, if any.
type IdentityLookup interface {
	AccountIDByEmail(ctx context.Context, email string) (accountID string, found bool, err error)
}

type Directory struct {
	signers    domain.SignerRepository
	identities IdentityLookup
}

func NewDirectory(signers domain.SignerRepository, identities IdentityLookup) *Directory {
	return &Directory{signers: signers, identities: identities}
}

// Resolve matches on the invited email first, then on the identity linked to
// that email's account. It never falls back to picking a record by role.
func (d *Directory) Resolve(ctx context.Context, documentID, channel string) (domain.SignerRecord, error) {
	channel = domain.NormalizeChannel(channel)
	if channel == "" {
		return domain.SignerRecord{}, domain.ErrSignerNotFound
	}
	records, err := d.signers.ListSigners(ctx, documentID)
	if err != nil {
		return domain.SignerRecord{}, fmt.Errorf("list signers: %w", err)
	}

	var match *domain.SignerRecord
	for i := range records {
		if domain.NormalizeChannel(records[i].Email) != channel {
			continue
		}
		if match != nil {
			// Two slots for one address is ambiguous; refuse rather than guess.
			return domain.SignerRecord{}, domain.ErrSignerNotFound
		}
		match = &records[i]
	}
	if match != nil {
		return *match, nil
	}

	if d.identities == nil {
		return domain.SignerRecord{}, domain.ErrSignerNotFound
	}
	accountID, found, err := d.identities.AccountIDByEmail(ctx, channel)
	if err != nil {
		return domain.SignerRecord{}, fmt.Errorf("lookup identity: %w", err)
	}
	if !found || accountID == "" {
		return domain.SignerRecord{}, domain.ErrSignerNotFound
	}
	for i := range records {
		if records[i].IdentityID == nil || *records[i].IdentityID != accountID {
			continue
		}
		if match != nil {
			return domain.SignerRecord{}, domain.ErrSignerNotFound
		}
		match = &records[i]
	}
	if match == nil {
		return domain.SignerRecord{}, domain.ErrSignerNotFound
	}
	return *match, nil
}

// EnsurePending re-checks a resolved record before any mutation.
func EnsurePending(rec domain.SignerRecord) error {
	if !rec.IsPending() {
		return domain.ErrAlreadySigned
	}
	return nil
}
