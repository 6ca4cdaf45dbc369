package signature

const (
	VersionV1        = "sig-v1"
	AlgorithmEd25519 = "ed25519"
)

// EnvelopeV1 carries an ed25519 signature over the sha256 of a payload's
// canonical JSON. Keys and signatures are std base64, the hash is lower hex.
type EnvelopeV1 struct {
	Version     string `json:"version"`
	Algorithm   string `json:"algorithm"`
	PublicKey   string `json:"public_key"`
	Signature   string `json:"signature"`
	PayloadHash string `json:"payload_hash"`
	IssuedAt    string `json:"issued_at"`
	KeyID       string `json:"key_id,omitempty"`
	Context     string `json:"context,omitempty"`
}

type Envelope = EnvelopeV1
