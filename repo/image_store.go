package repo

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// ImageStore mirrors generated images into an S3-compatible bucket, grouped by
// prompt: <md5(prompt)>/<uuid>.webp next to a meta.json naming the prompt.
type ImageStore struct {
	s3      *s3.Client
	presign *s3.PresignClient
	bucket  string
	region  string
	expiry  time.Duration
}

type StoreOptions struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	URLExpiry time.Duration
	PathStyle bool
}

type imageMeta struct {
	Prompt string `json:"prompt"`
}

// NewImageStore creates an S3 client for the configured bucket.
func NewImageStore(ctx context.Context, opts StoreOptions) (*ImageStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")),
		config.WithRegion(opts.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})

	expiry := opts.URLExpiry
	if expiry == 0 {
		expiry = 24 * time.Hour
	}
	return &ImageStore{
		s3:      client,
		presign: s3.NewPresignClient(client),
		bucket:  opts.Bucket,
		region:  opts.Region,
		expiry:  expiry,
	}, nil
}

// EnsureBucket creates the bucket unless it already exists.
func (s *ImageStore) EnsureBucket(ctx context.Context) error {
	_, err := s.s3.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}

	input := &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	}
	// us-east-1 rejects an explicit location constraint.
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	_, err = s.s3.CreateBucket(ctx, input)
	if err != nil && !isBucketAlreadyOwned(err) {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Put uploads img under the prompt's directory and returns a presigned download
// URL for it.
func (s *ImageStore) Put(ctx context.Context, prompt string, img Image) (string, error) {
	dir := PromptKey(prompt)
	key := path.Join(dir, uuid.NewString()+".webp")

	contentType := img.ContentType
	if contentType == "" {
		contentType = "image/webp"
	}
	if err := s.putObject(ctx, key, img.Data, contentType); err != nil {
		return "", err
	}

	meta, err := json.Marshal(imageMeta{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("failed to encode image metadata: %w", err)
	}
	if err := s.putObject(ctx, path.Join(dir, "meta.json"), meta, "application/json"); err != nil {
		return "", err
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}

func (s *ImageStore) putObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s in bucket %s: %w", key, s.bucket, err)
	}
	return nil
}

// PromptKey is the directory all images of one prompt are stored under.
func PromptKey(prompt string) string {
	sum := md5.Sum([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

func isBucketAlreadyOwned(err error) bool {
	if err == nil {
		return false
	}
	var owned *types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		return true
	}
	// S3-compatible services do not always return the typed errors.
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "BucketAlreadyOwnedByYou"
	}
	return false
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchBucket"
	}
	return false
}
