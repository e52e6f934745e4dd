package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"reelsaver/server/internal/metrics"
)

const backendS3 = "s3"

// S3Config holds the settings of an S3-compatible bucket.
type S3Config struct {
	Endpoint      string // empty for AWS, otherwise e.g. https://<project>.supabase.co/storage/v1/s3
	Region        string
	Bucket        string
	AccessKeyID   string
	SecretKey     string
	UsePathStyle  bool
	PublicBaseURL string
}

// S3Store uploads reels to an S3-compatible bucket.
type S3Store struct {
	bucket   string
	baseURL  string
	client   *s3.Client
	uploader *manager.Uploader
	log      zerolog.Logger
}

// NewS3Store creates an S3 client with static credentials.
func NewS3Store(ctx context.Context, cfg S3Config, log zerolog.Logger) (*S3Store, error) {
	logger := log.With().Str("component", "s3-storage").Logger()

	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("s3 bucket is not configured")
	}
	if strings.TrimSpace(cfg.AccessKeyID) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("s3 credentials are not configured")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	logger.Info().
		Str("bucket", bucket).
		Str("endpoint", cfg.Endpoint).
		Msg("s3 storage initialized")

	return &S3Store{
		bucket:   bucket,
		baseURL:  strings.TrimRight(cfg.PublicBaseURL, "/"),
		client:   client,
		uploader: manager.NewUploader(client),
		log:      logger,
	}, nil
}

// Upload streams the file at localPath to key and returns its public URL.
func (s *S3Store) Upload(ctx context.Context, key, localPath, contentType string) (publicURL string, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordObjectStoreOperation(backendS3, "upload", err, time.Since(start).Seconds())
	}()

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", localPath, err)
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	metrics.RecordUploadBytes(backendS3, info.Size())
	s.log.Debug().Str("key", key).Int64("bytes", info.Size()).Msg("Uploaded object")
	return PublicURL(s.baseURL, key), nil
}

// Delete removes key from the bucket. Deleting a missing key succeeds.
func (s *S3Store) Delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordObjectStoreOperation(backendS3, "delete", err, time.Since(start).Seconds())
	}()

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// KeyFromURL recovers the object key of a URL returned by Upload.
func (s *S3Store) KeyFromURL(publicURL string) string {
	return KeyFromURL(s.baseURL, publicURL)
}

// Health performs a HeadBucket request.
func (s *S3Store) Health(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}
