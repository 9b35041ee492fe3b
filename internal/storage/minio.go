package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/rs/zerolog"

	"github.com/steph-grigors/ai-job-matcher/internal/config"
)

// MinIO stores uploaded resume PDFs. Objects are retained for the
// configured number of days and then expired by a bucket lifecycle rule.
type MinIO struct {
	client *minio.Client
	cfg    *config.MinIOConfig
	logger zerolog.Logger
}

// NewMinIO connects and ensures the resume bucket exists with its
// retention lifecycle.
func NewMinIO(cfg *config.MinIOConfig, logger zerolog.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("minio config cannot be nil")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	m := &MinIO{client: client, cfg: cfg, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.ensureBucket(ctx, cfg.ResumeBucket); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *MinIO) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: m.cfg.Location}); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		m.logger.Info().Str("bucket", bucket).Msg("bucket created")
	}

	if m.cfg.RetentionDays > 0 {
		lc := lifecycle.NewConfiguration()
		lc.Rules = []lifecycle.Rule{
			{
				ID:     "expire-resumes",
				Status: "Enabled",
				Expiration: lifecycle.Expiration{
					Days: lifecycle.ExpirationDays(m.cfg.RetentionDays),
				},
			},
		}
		if err := m.client.SetBucketLifecycle(ctx, bucket, lc); err != nil {
			// Lifecycle is best effort; some deployments disable it.
			m.logger.Warn().Err(err).Str("bucket", bucket).Msg("set bucket lifecycle failed")
		}
	}
	return nil
}

// UploadResume stores a resume PDF and returns its object URI.
func (m *MinIO) UploadResume(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/pdf"
	}
	_, err := m.client.PutObject(ctx, m.cfg.ResumeBucket, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("upload resume %s: %w", objectName, err)
	}

	uri := fmt.Sprintf("minio://%s/%s", m.cfg.ResumeBucket, objectName)
	m.logger.Debug().Str("uri", uri).Int("bytes", len(data)).Msg("resume uploaded")
	return uri, nil
}

// GetResume reads a stored resume back.
func (m *MinIO) GetResume(ctx context.Context, objectName string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.cfg.ResumeBucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get resume %s: %w", objectName, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read resume %s: %w", objectName, err)
	}
	return data, nil
}

// DeleteResume removes a stored resume.
func (m *MinIO) DeleteResume(ctx context.Context, objectName string) error {
	return m.client.RemoveObject(ctx, m.cfg.ResumeBucket, objectName, minio.RemoveObjectOptions{})
}
