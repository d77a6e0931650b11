package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/ruteri/bucket-provisioning-backend/interfaces"
)

// S3Materializer materializes bucket instances in Amazon S3 or a compatible
// service. S3 has no directories, so an instance is materialized as its
// descriptor object under <prefix>/<root_path>/.
type S3Materializer struct {
	client     *s3.S3
	bucketName string
	prefix     string
	log        *slog.Logger
}

// NewS3Materializer creates a new S3 materializer.
// Without accessKey and secretKey the default AWS credential chain is used.
func NewS3Materializer(bucketName, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Materializer, error) {
	cfg := aws.Config{
		Region: aws.String(region),
	}

	if endpoint != "" {
		// S3-compatible services rarely support virtual-hosted buckets
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}

	if accessKey != "" && secretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	} else {
		log.Warn("No S3 credentials provided, falling back to the default credential chain")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Materializer{
		client:     s3.New(sess),
		bucketName: bucketName,
		prefix:     strings.Trim(prefix, "/"),
		log:        log,
	}, nil
}

// Materialize writes the descriptor object of inst. Objects are overwritten
// in place, so repeating the call is harmless.
func (m *S3Materializer) Materialize(ctx context.Context, inst *interfaces.BucketInstance) error {
	start := time.Now()
	key := m.objectKey(inst.RootPath)

	data, err := encodeDescriptor(inst)
	if err != nil {
		return fmt.Errorf("failed to encode descriptor: %w", err)
	}

	_, err = m.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		m.log.Error("Failed to put descriptor object",
			slog.String("bucket", m.bucketName),
			slog.String("key", key),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return fmt.Errorf("failed to upload object to S3: %w", err)
	}

	m.log.Debug("Materialized bucket in S3",
		slog.String("bucket", m.bucketName),
		slog.String("key", key),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Available checks if the S3 bucket is accessible by attempting to head it.
func (m *S3Materializer) Available(ctx context.Context) bool {
	start := time.Now()

	_, err := m.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(m.bucketName),
	})
	if err != nil {
		m.log.Warn("S3 materializer unavailable",
			slog.String("bucket", m.bucketName),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return false
	}
	return true
}

// Name returns a unique identifier for this materializer.
func (m *S3Materializer) Name() string {
	return fmt.Sprintf("s3-%s", m.bucketName)
}

func (m *S3Materializer) objectKey(rootPath string) string {
	return path.Join(m.prefix, relativeLocation(rootPath), DescriptorName)
}
