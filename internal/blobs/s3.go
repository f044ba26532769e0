package blobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectAPI is the subset of the S3 client used by S3Store.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config configures an S3-compatible store.
type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string
	Namespace     string
	PublicBaseURL string
}

// S3Store writes blobs into an S3-compatible bucket.
type S3Store struct {
	client    ObjectAPI
	bucket    string
	namespace string
	baseURL   string
}

// NewS3Store loads the default AWS configuration. If Endpoint is non-empty,
// path-style addressing is enabled (for MinIO and similar).
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("blobs: s3 bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		if cfg.Endpoint != "" {
			baseURL = joinURL(cfg.Endpoint, cfg.Bucket)
		} else {
			baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, region)
		}
	}

	return newS3StoreWithClient(s3.NewFromConfig(awsCfg, s3opts...), cfg.Bucket, cfg.Namespace, baseURL), nil
}

func newS3StoreWithClient(client ObjectAPI, bucket, namespace, baseURL string) *S3Store {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &S3Store{
		client:    client,
		bucket:    bucket,
		namespace: namespace,
		baseURL:   baseURL,
	}
}

// Upload puts the blob under namespace/<random key>.
func (s *S3Store) Upload(ctx context.Context, data []byte, suggestedName, contentType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyBlob
	}
	key, err := NewKey(suggestedName)
	if err != nil {
		return "", err
	}
	objectKey := s.namespace + "/" + key
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}
	return joinURL(s.baseURL, objectKey), nil
}

// Delete removes a blob previously returned by Upload.
func (s *S3Store) Delete(ctx context.Context, publicURL string) error {
	prefix := strings.TrimRight(s.baseURL, "/") + "/"
	if !strings.HasPrefix(publicURL, prefix+s.namespace+"/") {
		return ErrForeignURL
	}
	objectKey := strings.TrimPrefix(publicURL, prefix)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}); err != nil {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}
