// Package proof builds the tamper-evident record of a signing event and
// backfills it for signer records that completed without one.
package proof

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/StudioVBG/TALOK-sub014/internal/domain"
	"github.com/StudioVBG/TALOK-sub014/pkg/evidencehash"
	"github.com/StudioVBG/TALOK-sub014/pkg/signature"

	"github.com/google/uuid"
)

const envelopeContext = "signature-proof-v1"

const redactedBinary = "[REDACTED_BINARY]"

// Capture describes how the signature was given and from where.
type Capture struct {
	Type      domain.CaptureType
	ImagePath string // object-store path; empty when nothing was stored
	ClientIP  string
	UserAgent string
	Extra     map[string]string
}

// Content is the canonical payload hashed and signed for every proof. It
// anchors the signing event, not the rendered document bytes.
type Content struct {
	DocumentID       string `json:"document_id"`
	Channel          string `json:"channel"`
	Role             string `json:"role"`
	IdentityVerified bool   `json:"identity_verified"`
	IdentityMethod   string `json:"identity_method"`
}

type Generator struct {
	signer         *signature.Signer
	identityMethod string
	now            func() time.Time
}

func NewGenerator(signer *signature.Signer, identityMethod string) (*Generator, error) {
	if signer == nil {
		return nil, errors.New("proof signer is required")
	}
	if strings.TrimSpace(identityMethod) == "" {
		identityMethod = "otp_email"
	}
	return &Generator{signer: signer, identityMethod: identityMethod, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (g *Generator) WithClock(now func() time.Time) *Generator {
	cp := *g
	cp.now = now
	return &cp
}

func (g *Generator) PublicKey() ed25519.PublicKey { return g.signer.PublicKey() }

func (g *Generator) contentFor(signer domain.SignerRecord) Content {
	return Content{
		DocumentID:       signer.DocumentID,
		Channel:          domain.NormalizeChannel(signer.Email),
		Role:             string(signer.Role),
		IdentityVerified: true,
		IdentityMethod:   g.identityMethod,
	}
}

func (g *Generator) Generate(doc domain.Document, signer domain.SignerRecord, capture Capture) (domain.SignatureProof, error) {
	if doc.DocumentID == "" || doc.DocumentID != signer.DocumentID {
		return domain.SignatureProof{}, fmt.Errorf("signer %s does not belong to document %s", signer.SignerID, doc.DocumentID)
	}
	content := g.contentFor(signer)
	hashHex, _, err := evidencehash.CanonicalSHA256(content)
	if err != nil {
		return domain.SignatureProof{}, fmt.Errorf("hash proof content: %w", err)
	}
	createdAt := g.now()
	env, err := g.signer.SignV1(content, createdAt, envelopeContext)
	if err != nil {
		return domain.SignatureProof{}, fmt.Errorf("sign proof content: %w", err)
	}

	captureType := capture.Type
	if captureType == "" {
		captureType = domain.CaptureOTPOnly
	}
	var imageRef string
	if captureType == domain.CaptureDraw && capture.ImagePath != "" {
		imageRef = StoredRef(capture.ImagePath)
	}

	meta := map[string]string{}
	for k, v := range capture.Extra {
		meta[k] = v
	}
	if capture.ClientIP != "" {
		meta["ip"] = capture.ClientIP
	}
	if capture.UserAgent != "" {
		meta["user_agent"] = capture.UserAgent
	}

	return domain.SignatureProof{
		ProofID:           "prf_" + uuid.NewString(),
		DocumentID:        doc.DocumentID,
		SignerID:          signer.SignerID,
		ContentHash:       evidencehash.Prefixed(hashHex),
		SignerName:        signer.DisplayName,
		SignerChannel:     content.Channel,
		Role:              signer.Role,
		IdentityMethod:    g.identityMethod,
		CaptureType:       captureType,
		ChannelMetadata:   SanitizeMetadata(meta),
		SignatureImageRef: imageRef,
		CreatedAt:         createdAt,
		Envelope:          env,
	}, nil
}

// Verify re-derives the content of p and checks its envelope against key.
func Verify(p domain.SignatureProof, key ed25519.PublicKey) error {
	content := Content{
		DocumentID:       p.DocumentID,
		Channel:          p.SignerChannel,
		Role:             string(p.Role),
		IdentityVerified: true,
		IdentityMethod:   p.IdentityMethod,
	}
	hashHex, _, err := evidencehash.CanonicalSHA256(content)
	if err != nil {
		return err
	}
	if evidencehash.Prefixed(hashHex) != p.ContentHash {
		return signature.ErrPayloadHashMismatch
	}
	_, err = signature.VerifyEnvelopeV1(content, p.Envelope, key)
	return err
}

// StoredRef is the placeholder embedded instead of image bytes.
func StoredRef(path string) string {
	return "[STORED:" + path + "]"
}

var base64Run = regexp.MustCompile(`[A-Za-z0-9+/=_-]{256,}`)

// LooksLikeInlineBinary flags data URLs and long base64 runs.
func LooksLikeInlineBinary(v string) bool {
	s := strings.TrimSpace(v)
	if strings.HasPrefix(strings.ToLower(s), "data:") && strings.Contains(s, ";base64,") {
		return true
	}
	return base64Run.MatchString(s)
}

// SanitizeMetadata replaces inline binary values so they never reach
// structured storage.
func SanitizeMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if LooksLikeInlineBinary(v) {
			out[k] = redactedBinary
			continue
		}
		out[k] = v
	}
	return out
}
