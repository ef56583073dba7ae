package media

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Uploader stores a local file and returns a URL it can be fetched from.
type Uploader interface {
	Upload(ctx context.Context, path, object, contentType string) (string, error)
}

// MinIOConfig locates the bucket media outputs are written to.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	// PublicBaseURL, when set, is joined with the object name to form the
	// returned URL. Otherwise a presigned GET URL is returned.
	PublicBaseURL string        `yaml:"public_base_url"`
	PresignExpiry time.Duration `yaml:"presign_expiry"`
}

// MinIO implements Uploader on an S3-compatible store.
type MinIO struct {
	client *minio.Client
	cfg    MinIOConfig

	mu          sync.Mutex
	bucketReady bool
}

func NewMinIO(cfg MinIOConfig) (*MinIO, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("media: minio endpoint is required")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "flow-media"
	}
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = 24 * time.Hour
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("media: minio client: %w", err)
	}
	return &MinIO{client: client, cfg: cfg}, nil
}

func (m *MinIO) Upload(ctx context.Context, path, object, contentType string) (string, error) {
	if err := m.ensureBucket(ctx); err != nil {
		return "", err
	}
	if _, err := m.client.FPutObject(ctx, m.cfg.Bucket, object, path, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return "", fmt.Errorf("media: upload %s: %w", object, err)
	}
	if m.cfg.PublicBaseURL != "" {
		return publicURL(m.cfg.PublicBaseURL, object), nil
	}
	u, err := m.client.PresignedGetObject(ctx, m.cfg.Bucket, object, m.cfg.PresignExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("media: presign %s: %w", object, err)
	}
	return u.String(), nil
}

func (m *MinIO) ensureBucket(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bucketReady {
		return nil
	}
	exists, err := m.client.BucketExists(ctx, m.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("media: check bucket: %w", err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.cfg.Bucket, minio.MakeBucketOptions{Region: m.cfg.Region}); err != nil {
			return fmt.Errorf("media: create bucket: %w", err)
		}
	}
	m.bucketReady = true
	return nil
}

func publicURL(base, object string) string {
	segs := strings.Split(object, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segs, "/")
}
