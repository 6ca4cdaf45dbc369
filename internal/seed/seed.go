// Package seed parses the YAML fixture format used to preload documents,
// signers and linked accounts into a store.
package seed

import (
	"fmt"
	"os"
	"strings"

	"github.com/StudioVBG/TALOK-sub014/internal/domain"

	"gopkg.in/yaml.v3"
)

type file struct {
	Documents []struct {
		DocumentID     string `yaml:"document_id"`
		Kind           string `yaml:"kind"`
		Title          string `yaml:"title"`
		Status         string `yaml:"status"`
		ContentRef     string `yaml:"content_ref"`
		OwnerAccountID string `yaml:"owner_account_id"`
		Signers        []struct {
			SignerID    string `yaml:"signer_id"`
			Role        string `yaml:"role"`
			Email       string `yaml:"email"`
			DisplayName string `yaml:"display_name"`
			IdentityID  string `yaml:"identity_id"`
		} `yaml:"signers"`
	} `yaml:"documents"`
	Accounts map[string]string `yaml:"accounts"`
}

type Fixtures struct {
	Documents []domain.Document
	Signers   []domain.SignerRecord
	// Accounts maps an email to its account id.
	Accounts map[string]string
}

func ReadFile(path string) (Fixtures, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Fixtures{}, err
	}
	return Parse(b)
}

func Parse(b []byte) (Fixtures, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return Fixtures{}, fmt.Errorf("parse seed: %w", err)
	}
	fx := Fixtures{Accounts: map[string]string{}}
	for _, d := range f.Documents {
		if strings.TrimSpace(d.DocumentID) == "" {
			return Fixtures{}, fmt.Errorf("document without document_id")
		}
		status := domain.DocumentStatus(d.Status)
		if status == "" {
			status = domain.StatusDraft
		}
		if !status.Valid() {
			return Fixtures{}, fmt.Errorf("document %s: unknown status %q", d.DocumentID, d.Status)
		}
		kind := domain.DocumentKind(d.Kind)
		if kind == "" {
			kind = domain.KindLease
		}
		fx.Documents = append(fx.Documents, domain.Document{
			DocumentID:     d.DocumentID,
			Kind:           kind,
			Title:          d.Title,
			Status:         status,
			ContentRef:     d.ContentRef,
			OwnerAccountID: d.OwnerAccountID,
		})
		for _, sg := range d.Signers {
			role := domain.Role(sg.Role)
			if !role.Valid() {
				return Fixtures{}, fmt.Errorf("signer %s: unknown role %q", sg.SignerID, sg.Role)
			}
			rec := domain.SignerRecord{
				SignerID:    sg.SignerID,
				DocumentID:  d.DocumentID,
				Role:        role,
				Email:       domain.NormalizeChannel(sg.Email),
				DisplayName: sg.DisplayName,
				State:       domain.SignerPending,
			}
			if sg.IdentityID != "" {
				id := sg.IdentityID
				rec.IdentityID = &id
			}
			fx.Signers = append(fx.Signers, rec)
		}
	}
	for email, id := range f.Accounts {
		fx.Accounts[domain.NormalizeChannel(email)] = id
	}
	return fx, nil
}
