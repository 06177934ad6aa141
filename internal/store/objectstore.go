package store

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ebooklister/ebooklister/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

// ObjectArchive mirrors fetched PDFs to an S3-compatible bucket.
type ObjectArchive struct {
	client *minio.Client
	cfg    config.ArchiveConfig

	bucketMu    sync.Mutex
	bucketReady bool
}

// NewObjectArchive creates the minio client. It does not contact the endpoint.
func NewObjectArchive(cfg config.ArchiveConfig) (*ObjectArchive, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object archive: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object archive: bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey), ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("object archive: create client: %w", err)
	}
	return &ObjectArchive{client: client, cfg: cfg}, nil
}

// Put uploads the file at localPath and returns its object key.
func (a *ObjectArchive) Put(ctx context.Context, localPath string) (string, error) {
	if err := a.ensureBucket(ctx); err != nil {
		return "", err
	}
	key := a.objectKey(filepath.Base(localPath))
	info, err := a.client.FPutObject(ctx, a.cfg.Bucket, key, localPath, minio.PutObjectOptions{
		ContentType: "application/pdf",
	})
	if err != nil {
		return "", fmt.Errorf("object archive: put %s: %w", key, err)
	}
	log.Debugf("object archive: stored %s (%d bytes)", key, info.Size)
	return key, nil
}

// Remove deletes an archived file by its local name. Missing objects are not an error.
func (a *ObjectArchive) Remove(ctx context.Context, name string) error {
	key := a.objectKey(name)
	if err := a.client.RemoveObject(ctx, a.cfg.Bucket, key, minio.RemoveObjectOptions{}); err != nil && !isObjectNotFound(err) {
		return fmt.Errorf("object archive: delete %s: %w", key, err)
	}
	return nil
}

func (a *ObjectArchive) ensureBucket(ctx context.Context) error {
	a.bucketMu.Lock()
	defer a.bucketMu.Unlock()
	if a.bucketReady {
		return nil
	}
	exists, err := a.client.BucketExists(ctx, a.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("object archive: check bucket: %w", err)
	}
	if !exists {
		if err = a.client.MakeBucket(ctx, a.cfg.Bucket, minio.MakeBucketOptions{Region: a.cfg.Region}); err != nil {
			return fmt.Errorf("object archive: create bucket: %w", err)
		}
	}
	a.bucketReady = true
	return nil
}

func (a *ObjectArchive) objectKey(name string) string {
	name = strings.TrimLeft(filepath.ToSlash(name), "/")
	if a.cfg.Prefix == "" {
		return name
	}
	return path.Join(a.cfg.Prefix, name)
}

func isObjectNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound {
		return true
	}
	switch resp.Code {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return true
	}
	return false
}
