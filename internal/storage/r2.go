package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicBaseURL   string
}

// Enabled reports whether every field is set.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" &&
		c.BucketName != "" && c.PublicBaseURL != ""
}

type R2Uploader struct {
	client        *s3.Client
	bucketName    string
	publicBaseURL string
}

var _ FileUploader = (*R2Uploader)(nil)

func NewR2Uploader(ctx context.Context, cfg R2Config) (*R2Uploader, error) {
	if !cfg.Enabled() {
		return nil, errors.New("invalid R2 configuration: all fields are required")
	}
	if _, err := url.Parse(cfg.PublicBaseURL); err != nil {
		return nil, fmt.Errorf("invalid R2 public base url: %w", err)
	}

	sdkCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS SDK config for R2: %w", err)
	}
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	return &R2Uploader{
		client:        client,
		bucketName:    cfg.BucketName,
		publicBaseURL: cfg.PublicBaseURL,
	}, nil
}

func (u *R2Uploader) Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error) {
	out, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucketName),
		Key:         aws.String(key),
		Body:        reader,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("upload object to R2 (key: %s): %w", key, err)
	}
	etag := ""
	if out.ETag != nil {
		// S3-compatible APIs quote the ETag.
		etag = strings.Trim(*out.ETag, "\"")
	}
	return &UploadResult{Key: key, Location: u.PublicURL(key), ETag: etag}, nil
}

func (u *R2Uploader) PublicURL(key string) string {
	return publicURL(u.publicBaseURL, key)
}

func publicURL(base, key string) string {
	if base == "" || key == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	if !strings.HasSuffix(b.Path, "/") {
		b.Path += "/"
	}
	ref := &url.URL{Path: strings.TrimPrefix(key, "/")}
	return b.ResolveReference(ref).String()
}
