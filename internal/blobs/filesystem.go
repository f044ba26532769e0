package blobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// FileSystemConfig configures a directory-backed store.
type FileSystemConfig struct {
	Directory     string
	Namespace     string
	PublicBaseURL string
	Logger        *zap.Logger
}

// FileSystemStore writes blobs beneath Directory/Namespace and serves them from
// PublicBaseURL/Namespace.
type FileSystemStore struct {
	directory string
	namespace string
	baseURL   string
	logger    *zap.Logger
}

// NewFileSystemStore creates the namespace directory if needed.
func NewFileSystemStore(cfg FileSystemConfig) (*FileSystemStore, error) {
	directory := strings.TrimSpace(cfg.Directory)
	if directory == "" {
		return nil, errors.New("blobs: directory is required")
	}
	namespace := strings.TrimSpace(cfg.Namespace)
	if namespace == "" {
		namespace = DefaultNamespace
	}
	baseURL := strings.TrimSpace(cfg.PublicBaseURL)
	if baseURL == "" {
		baseURL = "/blobs"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Join(directory, namespace), 0o755); err != nil {
		return nil, fmt.Errorf("blobs: create namespace directory: %w", err)
	}
	return &FileSystemStore{
		directory: directory,
		namespace: namespace,
		baseURL:   baseURL,
		logger:    logger,
	}, nil
}

// Directory returns the root directory served under the public base URL.
func (s *FileSystemStore) Directory() string {
	return s.directory
}

// Upload writes the blob under a fresh key.
func (s *FileSystemStore) Upload(ctx context.Context, data []byte, suggestedName, _ string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyBlob
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := NewKey(suggestedName)
	if err != nil {
		return "", err
	}
	target := filepath.Join(s.directory, s.namespace, key)
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("blobs: write %s: %w", key, err)
	}
	s.logger.Debug("blob stored", zap.String("key", key), zap.Int("bytes", len(data)))
	return joinURL(s.baseURL, s.namespace, key), nil
}

// Delete removes a blob previously returned by Upload.
func (s *FileSystemStore) Delete(_ context.Context, publicURL string) error {
	prefix := joinURL(s.baseURL, s.namespace) + "/"
	if !strings.HasPrefix(publicURL, prefix) {
		return ErrForeignURL
	}
	key := strings.TrimPrefix(publicURL, prefix)
	if key == "" || strings.ContainsAny(key, "/\\") {
		return ErrForeignURL
	}
	if err := os.Remove(filepath.Join(s.directory, s.namespace, key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blobs: remove %s: %w", key, err)
	}
	return nil
}
