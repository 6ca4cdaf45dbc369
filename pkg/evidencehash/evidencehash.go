package evidencehash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// CanonicalSHA256 hashes the json.Marshal bytes of v. Struct field order and
// sorted map keys make the encoding stable for a given Go value.
func CanonicalSHA256(v any) (hexHash string, bytes []byte, err error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), b, nil
}

// Prefixed returns the hash in the "sha256:<hex>" form stored alongside evidence.
func Prefixed(hexHash string) string {
	return "sha256:" + hexHash
}

type ManifestEntry struct {
	SignerID string
	ProofID  string
	Hash     string
}

// ComputeManifestHash folds a signed-copy manifest into one hash:
// version, document id and content hash on their own lines, then one
// "signer:proof:hash" line per entry in the given order.
func ComputeManifestHash(version, documentID, contentHash string, entries []ManifestEntry) string {
	var b strings.Builder
	b.WriteString(version)
	b.WriteString("\n")
	b.WriteString(documentID)
	b.WriteString("\n")
	b.WriteString(contentHash)
	b.WriteString("\n")
	for _, e := range entries {
		b.WriteString(e.SignerID)
		b.WriteString(":")
		b.WriteString(e.ProofID)
		b.WriteString(":")
		b.WriteString(e.Hash)
		b.WriteString("\n")
	}
	return HashStringSHA256Hex(b.String())
}

func HashStringSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
