package evidencehash

import "testing"

func TestCanonicalSHA256StableAcrossMapOrder(t *testing.T) {
	a, _, err := CanonicalSHA256(map[string]any{"b": "two", "a": 1})
	if err != nil {
		t.Fatalf("hash a: %v", err)
	}
	b, _, err := CanonicalSHA256(map[string]any{"a": 1, "b": "two"})
	if err != nil {
		t.Fatalf("hash b: %v", err)
	}
	if a != b {
		t.Fatalf("expected identical hashes, got %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestComputeManifestHashOrderSensitive(t *testing.T) {
	e1 := ManifestEntry{SignerID: "sig_1", ProofID: "prf_1", Hash: "aa"}
	e2 := ManifestEntry{SignerID: "sig_2", ProofID: "prf_2", Hash: "bb"}
	h1 := ComputeManifestHash("signed-copy-v1", "doc_1", "cc", []ManifestEntry{e1, e2})
	h2 := ComputeManifestHash("signed-copy-v1", "doc_1", "cc", []ManifestEntry{e2, e1})
	if h1 == h2 {
		t.Fatalf("expected entry order to change the manifest hash")
	}
	if h1 != ComputeManifestHash("signed-copy-v1", "doc_1", "cc", []ManifestEntry{e1, e2}) {
		t.Fatalf("expected deterministic manifest hash")
	}
}

func TestPrefixed(t *testing.T) {
	if got := Prefixed("abc"); got != "sha256:abc" {
		t.Fatalf("unexpected prefixed hash %q", got)
	}
}
