// Package archive exports windows of the security log to S3 as JSON lines
// for downstream dashboards.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/folioguard/internal/server/config"
	"github.com/dmitrijs2005/folioguard/internal/server/models"
)

const keyPrefix = "security-events"

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// loadDefaultAWSConfig is a seam for tests.
var loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

// NewS3Client builds a client from the server config. Static credentials
// and a custom endpoint (MinIO) are used when configured; otherwise the
// default AWS credential chain applies.
func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}
	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
			o.UsePathStyle = true
		}
	}), nil
}

type Exporter struct {
	client objectPutter
	bucket string
}

func NewExporter(client objectPutter, bucket string) *Exporter {
	return &Exporter{client: client, bucket: bucket}
}

// Key names the object holding events of [from, to).
func Key(from, to time.Time) string {
	from, to = from.UTC(), to.UTC()
	return fmt.Sprintf("%s/%s/%s-%s.jsonl", keyPrefix, from.Format("2006/01/02"),
		from.Format("20060102T150405Z"), to.Format("20060102T150405Z"))
}

// Export uploads events as one JSON object per line and returns the object
// key. Nothing is written for an empty window.
func (e *Exporter) Export(ctx context.Context, from, to time.Time, events []models.SecurityEvent) (string, error) {
	if len(events) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			return "", fmt.Errorf("encode event: %w", err)
		}
	}

	key := Key(from, to)
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}
