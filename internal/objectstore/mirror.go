// Package objectstore mirrors verified archive copies to an S3-compatible
// bucket.
package objectstore

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/fentz26/artifactory-cleaner/internal/models"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Config defines the archive mirror. The mirror is disabled when Endpoint is
// empty.
type Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	// Prefix is prepended to every object key.
	Prefix string `yaml:"prefix"`
}

// Enabled reports whether a mirror is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// Validate checks a configured mirror. A disabled mirror is always valid.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("archive_mirror.endpoint must be host[:port] without a scheme, got %q", c.Endpoint)
	}
	if c.Bucket == "" {
		return fmt.Errorf("archive_mirror.bucket is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("archive_mirror.access_key and archive_mirror.secret_key are required")
	}
	return nil
}

// objectAPI is the part of *minio.Client the mirror uses.
type objectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Mirror uploads archived artifacts to a bucket.
type Mirror struct {
	client objectAPI
	cfg    Config
	logger *zap.Logger
}

// New connects a mirror for cfg.
func New(cfg Config, logger *zap.Logger) (*Mirror, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("archive mirror is not configured")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return newMirror(client, cfg, logger), nil
}

func newMirror(client objectAPI, cfg Config, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "archive_mirror"), zap.String("bucket", cfg.Bucket)),
	}
}

// EnsureBucket creates the bucket if it does not exist.
func (m *Mirror) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.cfg.Bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.cfg.Bucket, minio.MakeBucketOptions{Region: m.cfg.Region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", m.cfg.Bucket, err)
	}
	m.logger.Info("created bucket")
	return nil
}

// ObjectKey returns the key an artifact is stored under: the prefix, the
// repository key and the path inside the repository.
func (m *Mirror) ObjectKey(a *models.Artifact) string {
	parts := []string{strings.Trim(m.cfg.Prefix, "/"), a.Repo, a.RelativePath()}
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return path.Clean(strings.Join(kept, "/"))
}

// Upload copies the archived file at localPath to the bucket and returns
// its object key.
func (m *Mirror) Upload(ctx context.Context, a *models.Artifact, localPath string) (string, error) {
	key := m.ObjectKey(a)
	contentType := a.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	meta := map[string]string{"source-uri": a.URI}
	if a.Checksums.SHA1 != "" {
		meta["sha1"] = a.Checksums.SHA1
	}
	if a.Checksums.SHA256 != "" {
		meta["sha256"] = a.Checksums.SHA256
	}

	info, err := m.client.FPutObject(ctx, m.cfg.Bucket, key, localPath, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: meta,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s to %s/%s: %w", a, m.cfg.Bucket, key, err)
	}
	if info.Size != a.Size {
		return "", fmt.Errorf("upload %s: stored %d bytes, expected %d", a, info.Size, a.Size)
	}
	m.logger.Debug("artifact mirrored", zap.String("key", key), zap.Int64("size", info.Size))
	return key, nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
