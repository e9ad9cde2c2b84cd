package blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/careledger/careledger/internal/config"
)

// S3Store keeps version content in S3. Keys are write-once: a version's
// content is uploaded exactly once and never rewritten, which makes the
// put retry below safe.
type S3Store struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	bucket     string
	keyPrefix  string
	putTimeout time.Duration
	log        *zap.Logger
}

func NewS3Store(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &S3Store{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucket:     cfg.Bucket,
		keyPrefix:  strings.Trim(cfg.KeyPrefix, "/"),
		putTimeout: cfg.PutTimeout,
		log:        log,
	}, nil
}

func (s *S3Store) objectKey(key string) string {
	if s.keyPrefix == "" {
		return key
	}
	return s.keyPrefix + "/" + key
}

// Put uploads content under key. A transient failure is retried once;
// the write is idempotent because keys are never reused.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		putCtx, cancel := context.WithTimeout(ctx, s.putTimeout)
		_, err := s.client.PutObject(putCtx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(s.objectKey(key)),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		})
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		s.log.Warn("blob put failed",
			zap.String("key", key),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return fmt.Errorf("putting object %s: %w", key, lastErr)
}

// TemporaryReadURL issues a presigned GET valid for ttl.
func (s *S3Store) TemporaryReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presigning object %s: %w", key, err)
	}
	return req.URL, nil
}
