package blobs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestNewKeyKeepsExtension(t *testing.T) {
	first, err := NewKey("Screenshot 2025.PNG")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := NewKey("Screenshot 2025.PNG")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(first, ".png") {
		t.Fatalf("expected lowercased extension, got %q", first)
	}
	if first == second {
		t.Fatalf("expected randomized keys, got %q twice", first)
	}
	if len(first) != keyLength+len(".png") {
		t.Fatalf("unexpected key length %d", len(first))
	}
}

func TestNewKeyDropsSuspiciousExtension(t *testing.T) {
	key, err := NewKey("image.png?x=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(key, ".") {
		t.Fatalf("expected extension to be dropped, got %q", key)
	}
}

func TestFileSystemStoreUploadAndDelete(t *testing.T) {
	directory := t.TempDir()
	store, err := NewFileSystemStore(FileSystemConfig{Directory: directory, PublicBaseURL: "/blobs"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	publicURL, err := store.Upload(context.Background(), []byte("png-bytes"), "a.png", "image/png")
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if !strings.HasPrefix(publicURL, "/blobs/project-images/") {
		t.Fatalf("unexpected public url %q", publicURL)
	}

	key := strings.TrimPrefix(publicURL, "/blobs/project-images/")
	stored, err := os.ReadFile(filepath.Join(directory, DefaultNamespace, key))
	if err != nil {
		t.Fatalf("expected blob on disk: %v", err)
	}
	if string(stored) != "png-bytes" {
		t.Fatalf("unexpected blob content %q", stored)
	}

	if err := store.Delete(context.Background(), publicURL); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(directory, DefaultNamespace, key)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected blob to be removed, stat err %v", err)
	}
}

func TestFileSystemStoreRejectsEmptyAndForeign(t *testing.T) {
	store, err := NewFileSystemStore(FileSystemConfig{Directory: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if _, err := store.Upload(context.Background(), nil, "a.png", ""); !errors.Is(err, ErrEmptyBlob) {
		t.Fatalf("expected empty blob error, got %v", err)
	}
	if err := store.Delete(context.Background(), "https://elsewhere.example/x.png"); !errors.Is(err, ErrForeignURL) {
		t.Fatalf("expected foreign url error, got %v", err)
	}
	if err := store.Delete(context.Background(), "/blobs/project-images/../secret"); !errors.Is(err, ErrForeignURL) {
		t.Fatalf("expected traversal to be rejected, got %v", err)
	}
}

type recordingObjectAPI struct {
	putKeys     []string
	putBodies   []string
	putTypes    []string
	deletedKeys []string
	putErr      error
}

func (r *recordingObjectAPI) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if r.putErr != nil {
		return nil, r.putErr
	}
	body, _ := io.ReadAll(params.Body)
	r.putKeys = append(r.putKeys, *params.Key)
	r.putBodies = append(r.putBodies, string(body))
	contentType := ""
	if params.ContentType != nil {
		contentType = *params.ContentType
	}
	r.putTypes = append(r.putTypes, contentType)
	return &s3.PutObjectOutput{}, nil
}

func (r *recordingObjectAPI) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	r.deletedKeys = append(r.deletedKeys, *params.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3StoreUploadsUnderNamespace(t *testing.T) {
	client := &recordingObjectAPI{}
	store := newS3StoreWithClient(client, "club-bucket", "", "https://cdn.example.com")

	publicURL, err := store.Upload(context.Background(), []byte("jpeg"), "photo.jpg", "image/jpeg")
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if len(client.putKeys) != 1 || !strings.HasPrefix(client.putKeys[0], "project-images/") {
		t.Fatalf("unexpected object keys %v", client.putKeys)
	}
	if client.putBodies[0] != "jpeg" || client.putTypes[0] != "image/jpeg" {
		t.Fatalf("unexpected object payload %v %v", client.putBodies, client.putTypes)
	}
	if publicURL != "https://cdn.example.com/"+client.putKeys[0] {
		t.Fatalf("unexpected public url %q", publicURL)
	}

	if err := store.Delete(context.Background(), publicURL); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if len(client.deletedKeys) != 1 || client.deletedKeys[0] != client.putKeys[0] {
		t.Fatalf("unexpected deleted keys %v", client.deletedKeys)
	}
}

func TestS3StoreWrapsPutFailure(t *testing.T) {
	putErr := errors.New("access denied")
	store := newS3StoreWithClient(&recordingObjectAPI{putErr: putErr}, "club-bucket", "", "https://cdn.example.com")
	_, err := store.Upload(context.Background(), []byte("jpeg"), "photo.jpg", "image/jpeg")
	if !errors.Is(err, putErr) {
		t.Fatalf("expected wrapped put error, got %v", err)
	}
}
