package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

type Config struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string
	UsePathStyle  bool
	Prefix        string
}

// Uploader pushes export artifacts to S3-compatible object storage and hands
// back their public URL.
type Uploader struct {
	cfg    Config
	client *s3.Client
}

func NewUploader(cfg Config) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 region is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials are required")
	}
	if cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("s3 public base url is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "exports"
	}

	options := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		options.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	return &Uploader{
		cfg:    cfg,
		client: s3.New(options),
	}, nil
}

func (u *Uploader) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no data to upload")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := u.generateKey(contentType)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	return u.publicURL(key), nil
}

func (u *Uploader) generateKey(contentType string) string {
	name := fmt.Sprintf("%s-%s%s",
		time.Now().UTC().Format("20060102-150405"),
		uuid.NewString(),
		extensionFor(contentType),
	)
	return path.Join(u.cfg.Prefix, name)
}

func (u *Uploader) publicURL(key string) string {
	base := strings.TrimRight(u.cfg.PublicBaseURL, "/")
	return base + "/" + key
}

func extensionFor(contentType string) string {
	switch contentType {
	case "text/csv":
		return ".csv"
	case "application/json":
		return ".json"
	case "text/plain":
		return ".txt"
	default:
		return ""
	}
}
