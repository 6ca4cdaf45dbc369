package signature

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/StudioVBG/TALOK-sub014/pkg/evidencehash"
)

type Signer struct {
	key   ed25519.PrivateKey
	keyID string
}

func NewSigner(key ed25519.PrivateKey, keyID string) (*Signer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: ed25519 private key length", ErrInvalidEncoding)
	}
	return &Signer{key: key, keyID: keyID}, nil
}

// NewSignerFromSeed builds a signer from a std-base64 32-byte seed.
func NewSignerFromSeed(seedB64, keyID string) (*Signer, error) {
	seed, err := base64.StdEncoding.DecodeString(seedB64)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: ed25519 seed", ErrInvalidEncoding)
	}
	return NewSigner(ed25519.NewKeyFromSeed(seed), keyID)
}

func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

func (s *Signer) KeyID() string { return s.keyID }

// SignV1 hashes payload and signs the raw 32-byte digest.
func (s *Signer) SignV1(payload any, issuedAt time.Time, context string) (EnvelopeV1, error) {
	hashHex, _, err := evidencehash.CanonicalSHA256(payload)
	if err != nil {
		return EnvelopeV1{}, err
	}
	hashBytes, err := decodeLowerHex32(hashHex)
	if err != nil {
		return EnvelopeV1{}, err
	}
	sig := ed25519.Sign(s.key, hashBytes)
	return EnvelopeV1{
		Version:     VersionV1,
		Algorithm:   AlgorithmEd25519,
		PublicKey:   base64.StdEncoding.EncodeToString(s.PublicKey()),
		Signature:   base64.StdEncoding.EncodeToString(sig),
		PayloadHash: hashHex,
		IssuedAt:    issuedAt.UTC().Format(time.RFC3339Nano),
		KeyID:       s.keyID,
		Context:     context,
	}, nil
}
