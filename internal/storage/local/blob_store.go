// Package local publishes artifacts to a directory tree on the local
// filesystem. It stands in for cloud storage on offline runs.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/edgar-exhibit-archiver/internal/storage"
)

// Config captures the parameters for the local filesystem store.
type Config struct {
	// BaseDir is the root directory holding one subdirectory per container.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
	Parent  string `mapstructure:"parent" yaml:"parent"`
}

// BlobStore writes artifacts to the local filesystem.
type BlobStore struct {
	baseDir string
	ids     storage.IDGenerator
}

var _ storage.Store = (*BlobStore)(nil)

// New creates a new local filesystem-backed store.
func New(cfg Config, ids storage.IDGenerator) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	baseDir, err := filepath.Abs(filepath.Join(cfg.BaseDir, storage.SafeSegment(cfg.Parent)))
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}

	info, err := os.Stat(baseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(baseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &BlobStore{
		baseDir: baseDir,
		ids:     ids,
	}, nil
}

// CreateContainer makes a uniquely named directory and returns its file:// link.
func (s *BlobStore) CreateContainer(_ context.Context, name string) (storage.Container, error) {
	unique, err := storage.UniqueName(s.ids, name)
	if err != nil {
		return storage.Container{}, err
	}
	dir, err := s.within(storage.SafeSegment(unique))
	if err != nil {
		return storage.Container{}, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return storage.Container{}, fmt.Errorf("failed to create container directory: %w", err)
	}
	return storage.Container{
		ID:   dir,
		Name: unique,
		Link: "file://" + dir,
	}, nil
}

// Upload copies localPath into the container directory.
func (s *BlobStore) Upload(_ context.Context, container storage.Container, localPath string) (string, error) {
	if container.ID == "" {
		return "", fmt.Errorf("container is required")
	}
	target := filepath.Clean(filepath.Join(container.ID, filepath.Base(localPath)))
	if !s.contains(target) {
		return "", fmt.Errorf("path traversal detected")
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	return "file://" + target, nil
}

// within resolves rel under baseDir and rejects paths escaping it.
func (s *BlobStore) within(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", fmt.Errorf("path is required")
	}
	full := filepath.Clean(filepath.Join(s.baseDir, rel))
	if !s.contains(full) {
		return "", fmt.Errorf("path traversal detected")
	}
	return full, nil
}

func (s *BlobStore) contains(path string) bool {
	return strings.HasPrefix(path, filepath.Clean(s.baseDir)+string(filepath.Separator))
}
