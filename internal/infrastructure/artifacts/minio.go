package artifacts

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/ports"
)

var _ ports.ArtifactStore = (*MinioStore)(nil)

// MinioConfig describes an S3-compatible bucket holding results.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

// Validate checks that the config can build a client.
func (c MinioConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.AccessKey) == "" || strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("access and secret keys are required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	return nil
}

// MinioStore uploads artifacts from scratch space into a bucket under
// <prefix>/<fragment>/<filename>.
type MinioStore struct {
	client     *minio.Client
	cfg        MinioConfig
	scratchDir string
}

// NewMinioStore builds a client for cfg. No request is made until first use.
func NewMinioStore(cfg MinioConfig, scratchDir string) (*MinioStore, error) {
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
	return &MinioStore{client: client, cfg: cfg, scratchDir: scratchDir}, nil
}

// EnsureBucket creates the bucket when it does not exist.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.cfg.Bucket, err)
	}
	if exists {
		return nil
	}
	return s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region})
}

// Relocate uploads one file of fragment. A missing scratch file is reported
// without contacting the server.
func (s *MinioStore) Relocate(ctx context.Context, fragment, filename string) error {
	src := filepath.Join(s.scratchDir, filepath.FromSlash(fragment), filename)
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("relocate %s: %w", filename, err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.FPutObject(ctx, s.cfg.Bucket, s.objectKey(fragment, filename), src,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("upload %s: %w", filename, err)
	}
	return nil
}

// Location is the s3:// URL of the fragment's results.
func (s *MinioStore) Location(fragment string) string {
	return "s3://" + s.cfg.Bucket + "/" + s.objectKey(fragment, "")
}

// Remove deletes every object of fragment and its scratch directory.
func (s *MinioStore) Remove(ctx context.Context, fragment string) error {
	prefix := s.objectKey(fragment, "") + "/"
	objects := s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	for rerr := range s.client.RemoveObjects(ctx, s.cfg.Bucket, objects, minio.RemoveObjectsOptions{}) {
		if rerr.Err != nil {
			return fmt.Errorf("remove %s: %w", rerr.ObjectName, rerr.Err)
		}
	}
	if err := os.RemoveAll(filepath.Join(s.scratchDir, filepath.FromSlash(fragment))); err != nil {
		return fmt.Errorf("remove scratch: %w", err)
	}
	return nil
}

func (s *MinioStore) objectKey(fragment, filename string) string {
	return path.Join(strings.Trim(s.cfg.Prefix, "/"), fragment, filename)
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
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
