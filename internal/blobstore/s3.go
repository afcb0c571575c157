package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/chatwire/sh-msg-platform/internal/log"
)

// DefaultURLExpiry is the validity window used for signed urls when the
// caller does not provide one
const DefaultURLExpiry = 3600 * time.Second

const deleteBatchSize = 1000

// Config holds the connection settings of the S3 compatible object store
type Config struct {
	Endpoint  string // empty for AWS, a url for MinIO style deployments
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

// S3 is a ports.BlobStore over any S3 compatible object storage
type S3 struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
}

// NewS3 builds a blob store against cfg
func NewS3(ctx context.Context, cfg Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("blob store bucket is not specified")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("loading blob store config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
	}, nil
}

// Upload stores the object under "<sessionID>/<objectName>", overwriting any
// previous content, and returns the object path
func (s *S3) Upload(ctx context.Context, sessionID, objectName string, data []byte, contentType string) (string, error) {
	key := objectKey(sessionID, objectName)
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	return key, nil
}

// PresignedURL issues a fresh signed read url valid for ttl
func (s *S3) PresignedURL(ctx context.Context, sessionID, objectName string, ttl time.Duration) (string, error) {
	key := objectKey(sessionID, objectName)
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ExpiryFor(ttl)))
	if err != nil {
		return "", fmt.Errorf("presigning %s: %w", key, err)
	}
	return req.URL, nil
}

// Download returns the raw object bytes
func (s *S3) Download(ctx context.Context, sessionID, objectName string) ([]byte, error) {
	key := objectKey(sessionID, objectName)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", key, err)
	}
	defer func() {
		if err := out.Body.Close(); err != nil {
			log.Warn(ctx, "closing blob body", "key", key, "err", err)
		}
	}()
	return io.ReadAll(out.Body)
}

// Delete removes one object
func (s *S3) Delete(ctx context.Context, sessionID, objectName string) error {
	key := objectKey(sessionID, objectName)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// DeleteAll removes every object under the session's prefix
func (s *S3) DeleteAll(ctx context.Context, sessionID string) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(sessionID + "/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("listing objects of session %s: %w", sessionID, err)
		}
		ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}
		for start := 0; start < len(ids); start += deleteBatchSize {
			end := start + deleteBatchSize
			if end > len(ids) {
				end = len(ids)
			}
			if _, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(s.bucket),
				Delete: &types.Delete{
					Objects: ids[start:end],
					Quiet:   aws.Bool(true),
				},
			}); err != nil {
				return fmt.Errorf("bulk deleting objects of session %s: %w", sessionID, err)
			}
		}
	}
	return nil
}

// ExpiryFor normalizes a caller supplied ttl, falling back to the default
// validity window for non positive values
func ExpiryFor(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultURLExpiry
	}
	return ttl
}

func objectKey(sessionID, objectName string) string {
	return sessionID + "/" + objectName
}
