// Package gcs publishes artifacts to Google Cloud Storage. A container is an
// object prefix marked by an empty placeholder object; every object is
// written with a public-read ACL.
package gcs

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/edgar-exhibit-archiver/internal/hash/sha256"
	archivestorage "github.com/JakeFAU/edgar-exhibit-archiver/internal/storage"
)

const (
	defaultPublicBaseURL = "https://storage.googleapis.com"
	publicReadACL        = "publicRead"
)

// Config captures the parameters required to publish to GCS.
type Config struct {
	Bucket        string
	Parent        string
	PublicBaseURL string
}

// BlobStore writes artifacts to a configured GCS bucket.
type BlobStore struct {
	client  *storage.Client
	bucket  string
	parent  string
	baseURL string
	ids     archivestorage.IDGenerator
	hasher  *sha256.Hasher
	logger  *zap.Logger
}

var _ archivestorage.Store = (*BlobStore)(nil)

// New creates a GCS-backed store.
func New(client *storage.Client, cfg Config, ids archivestorage.IDGenerator, logger *zap.Logger) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimRight(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = defaultPublicBaseURL
	}
	return &BlobStore{
		client:  client,
		bucket:  cfg.Bucket,
		parent:  strings.Trim(cfg.Parent, "/"),
		baseURL: baseURL,
		ids:     ids,
		hasher:  sha256.New(),
		logger:  logger,
	}, nil
}

// CreateContainer writes the placeholder object of a new, uniquely named
// prefix and returns its public link.
func (s *BlobStore) CreateContainer(ctx context.Context, name string) (archivestorage.Container, error) {
	unique, err := archivestorage.UniqueName(s.ids, name)
	if err != nil {
		return archivestorage.Container{}, err
	}
	prefix := archivestorage.SafeSegment(unique)
	if s.parent != "" {
		prefix = path.Join(s.parent, prefix)
	}
	prefix += "/"

	if err := s.put(ctx, prefix, "", nil, strings.NewReader("")); err != nil {
		return archivestorage.Container{}, fmt.Errorf("create container %q: %w", unique, err)
	}
	return archivestorage.Container{
		ID:   prefix,
		Name: unique,
		Link: s.publicURL(prefix),
	}, nil
}

// Upload copies localPath into the container and returns the object's link.
func (s *BlobStore) Upload(ctx context.Context, container archivestorage.Container, localPath string) (string, error) {
	if container.ID == "" {
		return "", fmt.Errorf("container is required")
	}
	digest, err := s.hasher.HashFile(localPath)
	if err != nil {
		return "", err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	object := container.ID + filepath.Base(localPath)
	meta := map[string]string{"sha256": digest}
	if err := s.put(ctx, object, archivestorage.ContentTypePDF, meta, f); err != nil {
		return "", err
	}
	s.logger.Debug("uploaded artifact",
		zap.String("bucket", s.bucket),
		zap.String("object", object),
		zap.String("sha256", digest),
	)
	return s.publicURL(object), nil
}

func (s *BlobStore) put(ctx context.Context, object, contentType string, meta map[string]string, r io.Reader) error {
	writer := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	writer.PredefinedACL = publicReadACL
	if contentType != "" {
		writer.ContentType = contentType
	}
	if len(meta) > 0 {
		writer.Metadata = meta
	}
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

func (s *BlobStore) publicURL(object string) string {
	segments := strings.Split(object, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/%s/%s", s.baseURL, s.bucket, strings.Join(segments, "/"))
}
