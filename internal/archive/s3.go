// Package archive keeps copies of delivered files in S3.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/iconidentify/igrabba/internal/config"
)

// ObjectPutter is the part of the S3 client the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver uploads files under a date-partitioned prefix.
type S3Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// New builds an archiver with the default AWS credential chain.
func New(ctx context.Context, cfg config.ArchiveConfig, logger *slog.Logger) (*S3Archiver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, cfg.Bucket, cfg.Prefix, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client ObjectPutter, bucket, prefix string, logger *slog.Logger) *S3Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
		now:    time.Now,
	}
}

// Bucket returns the target bucket name.
func (a *S3Archiver) Bucket() string {
	return a.bucket
}

// Archive uploads the file at p.
func (a *S3Archiver) Archive(ctx context.Context, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}

	key := a.key(filepath.Base(p))
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(p)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	a.logger.Info("file archived", "location", fmt.Sprintf("s3://%s/%s", a.bucket, key))
	return nil
}

func (a *S3Archiver) key(name string) string {
	day := a.now().UTC().Format("2006/01/02")
	if a.prefix == "" {
		return path.Join(day, name)
	}
	return path.Join(a.prefix, day, name)
}
