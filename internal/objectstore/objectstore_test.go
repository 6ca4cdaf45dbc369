package objectstore

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestObjectKey(t *testing.T) {
	cases := map[[2]string]string{
		{"", "signatures/doc/s.png"}:        "signatures/doc/s.png",
		{"cosign", "/signatures/doc/s.png"}: "cosign/signatures/doc/s.png",
		{"/cosign/", "signed/doc.json"}:     "cosign/signed/doc.json",
	}
	for in, want := range cases {
		if got := objectKey(in[0], in[1]); got != want {
			t.Fatalf("objectKey(%q, %q) = %q, want %q", in[0], in[1], got, want)
		}
	}
}

func TestOpenDrivers(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "ftp"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(context.Background(), Config{Driver: "minio"}); err == nil {
		t.Fatalf("expected missing endpoint error")
	}
	st, err := Open(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if _, ok := st.(*Memory); !ok {
		t.Fatalf("expected memory driver by default, got %T", st)
	}
}

func TestMemoryPutAndSign(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if _, err := m.SignedURL(ctx, "missing.png", time.Minute); err == nil {
		t.Fatalf("expected error for missing object")
	}
	if err := m.Put(ctx, "signatures/doc_1/s.png", []byte{1, 2, 3}, "image/png"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, ct, ok := m.Get("signatures/doc_1/s.png")
	if !ok || len(data) != 3 || ct != "image/png" {
		t.Fatalf("unexpected object %v %q %v", data, ct, ok)
	}
	u, err := m.SignedURL(ctx, "signatures/doc_1/s.png", time.Minute)
	if err != nil || !strings.HasPrefix(u, "memory:///signatures/doc_1/s.png?expires=") {
		t.Fatalf("unexpected url %q err=%v", u, err)
	}
}

func TestMinioPresignIsOffline(t *testing.T) {
	m, err := NewMinio(context.Background(), Config{Endpoint: "localhost:9000", Bucket: "cosign", AccessKey: "minio", SecretKey: "minio123", Region: "us-east-1"})
	if err != nil {
		t.Fatalf("NewMinio: %v", err)
	}
	u, err := m.SignedURL(context.Background(), "documents/doc_1.pdf", 15*time.Minute)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if !strings.Contains(u, "/cosign/documents/doc_1.pdf") || !strings.Contains(u, "X-Amz-Signature=") {
		t.Fatalf("unexpected presigned url %q", u)
	}
}

func TestS3PresignIsOffline(t *testing.T) {
	s, err := NewS3(context.Background(), Config{Bucket: "cosign", Region: "eu-west-3", AccessKey: "AKIDEXAMPLE", SecretKey: "secret", Endpoint: "http://localhost:4566", Prefix: "prod"})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	u, err := s.SignedURL(context.Background(), "signed/doc_1/sig_t.json", 10*time.Minute)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if !strings.HasPrefix(u, "http://localhost:4566/cosign/prod/signed/doc_1/sig_t.json") || !strings.Contains(u, "X-Amz-Expires=600") {
		t.Fatalf("unexpected presigned url %q", u)
	}
}
