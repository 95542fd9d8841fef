// Package storage keeps copies of generated confirmations in an
// S3-compatible bucket (Cloudflare R2 in production).
package storage

import (
	"context"
	"io"
)

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)
	PublicURL(key string) string
}
