// Package blobs provides the content-addressed half of the remote store: uploaded
// images land under a randomized key and are exposed through a public URL.
package blobs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// DefaultNamespace is the bucket/directory that holds gallery images.
const DefaultNamespace = "project-images"

// keyAlphabet defines the character set used for randomized object keys.
const keyAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

const keyLength = 21

var (
	// ErrEmptyBlob indicates an upload without content.
	ErrEmptyBlob = errors.New("blobs: empty upload")
	// ErrForeignURL indicates a public URL that was not issued by the store.
	ErrForeignURL = errors.New("blobs: url not owned by store")
)

// Store uploads bytes and returns a public URL for them.
type Store interface {
	Upload(ctx context.Context, data []byte, suggestedName, contentType string) (string, error)
}

// Deleter is implemented by stores that can remove a previously uploaded blob.
type Deleter interface {
	Delete(ctx context.Context, publicURL string) error
}

// NewKey derives a randomized object key that keeps the extension of the suggested name.
func NewKey(suggestedName string) (string, error) {
	id, err := nanoid.Generate(keyAlphabet, keyLength)
	if err != nil {
		return "", fmt.Errorf("blobs: generate key: %w", err)
	}
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(suggestedName, "\\", "/"))))
	if len(ext) > 10 || strings.ContainsAny(ext, " ?#%") {
		ext = ""
	}
	return id + ext, nil
}

func joinURL(base string, segments ...string) string {
	trimmed := strings.TrimRight(base, "/")
	return trimmed + "/" + path.Join(segments...)
}
