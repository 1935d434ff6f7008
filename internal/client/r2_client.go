package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/episodecast/api/internal/config"
	"github.com/google/uuid"
)

// ObjectPutter is the subset of the S3 API used for uploads
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// UploadResult describes a stored object
type UploadResult struct {
	SecureURL string `json:"secure_url"`
	Key       string `json:"key"`
}

// R2Client stores objects in Cloudflare R2
type R2Client struct {
	s3Client   ObjectPutter
	bucketName string
	publicURL  string
	newKey     func() string
}

// NewR2Client creates a new R2 storage client
func NewR2Client(cfg *config.R2Config) (*R2Client, error) {
	if cfg.AccountID == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("R2 configuration incomplete")
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	return NewR2ClientWith(s3Client, cfg.BucketName, cfg.PublicURL), nil
}

// NewR2ClientWith builds a client around an existing S3 API implementation
func NewR2ClientWith(api ObjectPutter, bucketName, publicURL string) *R2Client {
	return &R2Client{
		s3Client:   api,
		bucketName: bucketName,
		publicURL:  strings.TrimRight(publicURL, "/"),
		newKey:     func() string { return uuid.New().String() },
	}
}

// Upload uploads a file to R2 and returns the public URL
func (c *R2Client) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}

	_, err := c.s3Client.PutObject(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}

	return c.GetPublicURL(key), nil
}

// UploadFile stores data under dir with a generated name and the given extension
func (c *R2Client) UploadFile(ctx context.Context, dir string, data []byte, ext, mimeType string) (*UploadResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("refusing to upload empty file")
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	key := path.Join(dir, c.newKey()+ext)
	url, err := c.Upload(ctx, key, bytes.NewReader(data), mimeType)
	if err != nil {
		return nil, err
	}
	return &UploadResult{SecureURL: url, Key: key}, nil
}

// GetPublicURL returns the public CDN URL for a key
func (c *R2Client) GetPublicURL(key string) string {
	if c.publicURL != "" {
		return fmt.Sprintf("%s/%s", c.publicURL, key)
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com/%s", c.bucketName, key)
}

// IsConfigured returns true if the client has valid configuration
func (c *R2Client) IsConfigured() bool {
	return c.s3Client != nil && c.bucketName != ""
}
