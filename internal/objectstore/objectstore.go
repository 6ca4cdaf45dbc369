// Package objectstore provides the ObjectStore drivers: MinIO, Amazon S3 and
// an in-process store for development.
package objectstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/StudioVBG/TALOK-sub014/internal/domain"
)

type Config struct {
	Driver    string `yaml:"driver"` // minio, s3, memory
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`

	// Prefix is prepended to every object path.
	Prefix       string `yaml:"prefix"`
	// EnsureBucket creates the bucket at start-up when missing.
	EnsureBucket bool   `yaml:"ensure_bucket"`
}

func Open(ctx context.Context, cfg Config) (domain.ObjectStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemory(), nil
	case "minio":
		return NewMinio(ctx, cfg)
	case "s3":
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown object store driver %q", cfg.Driver)
	}
}

func objectKey(prefix, path string) string {
	path = strings.TrimLeft(path, "/")
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return path
	}
	return prefix + "/" + path
}
