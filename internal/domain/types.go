// Package domain holds the co-signing entities, the lifecycle enum, the error
// taxonomy and the repository ports implemented by the stores.
package domain

import (
	"strings"
	"time"

	"github.com/StudioVBG/TALOK-sub014/pkg/signature"
)

type DocumentKind string

const (
	KindLease           DocumentKind = "lease"
	KindInventoryReport DocumentKind = "inventory_report"
)

type DocumentStatus string

const (
	StatusDraft                    DocumentStatus = "draft"
	StatusAwaitingSignatures       DocumentStatus = "awaiting_signatures"
	StatusPartiallySigned          DocumentStatus = "partially_signed"
	StatusAwaitingCounterSignature DocumentStatus = "awaiting_counter_signature"
	StatusFullySigned              DocumentStatus = "fully_signed"
)

var statusRank = map[DocumentStatus]int{
	StatusDraft:                    0,
	StatusAwaitingSignatures:       1,
	StatusPartiallySigned:          2,
	StatusAwaitingCounterSignature: 3,
	StatusFullySigned:              4,
}

// Rank orders statuses along the lifecycle; unknown statuses rank -1.
func (s DocumentStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

func (s DocumentStatus) Valid() bool { return s.Rank() >= 0 }

func (s DocumentStatus) Terminal() bool { return s == StatusFullySigned }

type Role string

const (
	RoleTenant    Role = "tenant"
	RoleCoTenant  Role = "co_tenant"
	RoleGuarantor Role = "guarantor"
	RoleOwner     Role = "owner"
)

func (r Role) Valid() bool {
	switch r {
	case RoleTenant, RoleCoTenant, RoleGuarantor, RoleOwner:
		return true
	}
	return false
}

type SignerState string

const (
	SignerPending SignerState = "pending"
	SignerSigned  SignerState = "signed"
)

type CaptureType string

const (
	CaptureDraw    CaptureType = "draw"
	CaptureOTPOnly CaptureType = "otp_only"
)

type Document struct {
	DocumentID     string         `json:"document_id"`
	Kind           DocumentKind   `json:"kind"`
	Title          string         `json:"title"`
	Status         DocumentStatus `json:"status"`
	ContentRef     string         `json:"content_ref"`
	OwnerAccountID string         `json:"owner_account_id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

type SignerRecord struct {
	SignerID    string      `json:"signer_id"`
	DocumentID  string      `json:"document_id"`
	Role        Role        `json:"role"`
	Email       string      `json:"email"`
	DisplayName string      `json:"display_name"`
	IdentityID  *string     `json:"identity_id,omitempty"`
	State       SignerState `json:"state"`
	SignedAt    *time.Time  `json:"signed_at,omitempty"`
	ArtifactRef *string     `json:"artifact_ref,omitempty"`
	ProofID     *string     `json:"proof_id,omitempty"`
	ClientIP    string      `json:"client_ip,omitempty"`
	UserAgent   string      `json:"user_agent,omitempty"`
}

// IsPending requires both the state flag and the timestamp to agree, so a
// partial write on either column never reopens a signed slot.
func (s SignerRecord) IsPending() bool {
	return s.State == SignerPending && s.SignedAt == nil
}

type SignatureProof struct {
	ProofID           string               `json:"proof_id"`
	DocumentID        string               `json:"document_id"`
	SignerID          string               `json:"signer_id"`
	ContentHash       string               `json:"content_hash"`
	SignerName        string               `json:"signer_name"`
	SignerChannel     string               `json:"signer_channel"`
	Role              Role                 `json:"role"`
	IdentityMethod    string               `json:"identity_method"`
	CaptureType       CaptureType          `json:"capture_type"`
	ChannelMetadata   map[string]string    `json:"channel_metadata"`
	SignatureImageRef string               `json:"signature_image_ref,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	Envelope          signature.EnvelopeV1 `json:"envelope"`
}

// SignedOutcome is what MarkSigned writes onto a pending signer record.
type SignedOutcome struct {
	SignedAt    time.Time
	ArtifactRef *string
	ClientIP    string
	UserAgent   string
}

type AuditEntry struct {
	EntryID       string    `json:"entry_id"`
	ActorID       string    `json:"actor_id"`
	Action        string    `json:"action"`
	ResourceID    string    `json:"resource_id"`
	BeforeState   *string   `json:"before_state,omitempty"`
	AfterState    string    `json:"after_state"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
}

// NormalizeChannel lower-cases and trims a contact channel.
func NormalizeChannel(channel string) string {
	return strings.ToLower(strings.TrimSpace(channel))
}

// MaskEmail keeps the first two characters of the local part.
func MaskEmail(email string) string {
	e := NormalizeChannel(email)
	parts := strings.Split(e, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "***"
	}
	local := parts[0]
	domain := parts[1]
	if len(local) <= 2 {
		return local[:1] + "***@" + domain
	}
	return local[:2] + "***@" + domain
}
