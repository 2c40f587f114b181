// Package storage publishes generated media to an S3-compatible object
// store and hands back public links.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/config"
)

// Uploader stores files in buckets that are created on first use with a
// public read policy.
type Uploader struct {
	client    *minio.Client
	region    string
	publicURL string

	mu    sync.Mutex
	ready map[string]bool

	logger *slog.Logger
}

// New connects to the object store described by cfg.
func New(cfg config.StorageConfig, logger *slog.Logger) (*Uploader, error) {
	if logger == nil {
		logger = slog.Default()
	}

	endpoint, secure, err := parseEndpoint(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	public := cfg.PublicURL
	if public == "" {
		public = cfg.URL
	}

	return &Uploader{
		client:    client,
		region:    cfg.Region,
		publicURL: strings.TrimRight(public, "/"),
		ready:     make(map[string]bool),
		logger:    logger.With("component", "storage"),
	}, nil
}

// Upload stores localPath in bucket under a random name with the same
// extension and returns the object's public URL.
func (u *Uploader) Upload(ctx context.Context, bucket, localPath string) (string, error) {
	if err := u.ensureBucket(ctx, bucket); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(localPath))
	object := uuid.NewString() + ext

	opts := minio.PutObjectOptions{ContentType: mime.TypeByExtension(ext)}
	if opts.ContentType == "" {
		opts.ContentType = "application/octet-stream"
	}

	info, err := u.client.FPutObject(ctx, bucket, object, localPath, opts)
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", filepath.Base(localPath), err)
	}

	u.logger.Debug("object uploaded", "bucket", bucket, "object", object, "size", info.Size)
	return ObjectURL(u.publicURL, bucket, object), nil
}

func (u *Uploader) ensureBucket(ctx context.Context, bucket string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.ready[bucket] {
		return nil
	}

	exists, err := u.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := u.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: u.region}); err != nil {
			return fmt.Errorf("creating bucket %s: %w", bucket, err)
		}
		u.logger.Info("bucket created", "bucket", bucket)
	}

	policy, err := DownloadPolicy(bucket)
	if err != nil {
		return err
	}
	if err := u.client.SetBucketPolicy(ctx, bucket, policy); err != nil {
		return fmt.Errorf("setting policy on %s: %w", bucket, err)
	}

	u.ready[bucket] = true
	return nil
}

type policyStatement struct {
	Effect    string              `json:"Effect"`
	Principal map[string][]string `json:"Principal"`
	Action    []string            `json:"Action"`
	Resource  []string            `json:"Resource"`
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

// DownloadPolicy returns a bucket policy allowing anonymous reads of every
// object in bucket.
func DownloadPolicy(bucket string) (string, error) {
	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{{
			Effect:    "Allow",
			Principal: map[string][]string{"AWS": {"*"}},
			Action:    []string{"s3:GetObject"},
			Resource:  []string{"arn:aws:s3:::" + bucket + "/*"},
		}},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding bucket policy: %w", err)
	}
	return string(b), nil
}

// ObjectURL joins the public base, bucket and object name.
func ObjectURL(base, bucket, object string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(bucket) + "/" + url.PathEscape(object)
}

// parseEndpoint accepts "host:port" or a URL and returns the host part and
// whether TLS should be used. A bare host defaults to TLS.
func parseEndpoint(raw string) (string, bool, error) {
	if raw == "" {
		return "", false, fmt.Errorf("storage url is empty")
	}
	if !strings.Contains(raw, "://") {
		return strings.TrimRight(raw, "/"), true, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parsing storage url: %w", err)
	}
	switch u.Scheme {
	case "https":
		return u.Host, true, nil
	case "http":
		return u.Host, false, nil
	default:
		return "", false, fmt.Errorf("unsupported storage url scheme %q", u.Scheme)
	}
}
