package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLExpiry time.Duration
}

// Mirror copies finished output files to a MinIO bucket and hands out
// presigned download links. The local file stays authoritative.
type Mirror struct {
	client *minio.Client
	bucket string
	expiry time.Duration
	logger *slog.Logger
}

func NewMirror(cfg MinioConfig, logger *slog.Logger) (*Mirror, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = 7 * 24 * time.Hour
	}

	return &Mirror{
		client: client,
		bucket: cfg.Bucket,
		expiry: expiry,
		logger: logger.With("component", "artifact_mirror"),
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (m *Mirror) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// Upload stores the file under results/<job_id>/ and returns a presigned GET
// URL for it.
func (m *Mirror) Upload(ctx context.Context, jobID, path string) (string, error) {
	objectName := ObjectName(jobID, path)

	info, err := m.client.FPutObject(ctx, m.bucket, objectName, path, minio.PutObjectOptions{
		ContentType: ContentType(path),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	url, err := m.client.PresignedGetObject(ctx, m.bucket, objectName, m.expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	m.logger.Info("artifact mirrored", "job_id", jobID, "object", objectName, "size", info.Size)
	return url.String(), nil
}

func ObjectName(jobID, path string) string {
	return fmt.Sprintf("results/%s/%s", jobID, filepath.Base(path))
}

// ContentType maps the supported output extensions to their MIME type.
func ContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv"
	}
	return "application/octet-stream"
}
