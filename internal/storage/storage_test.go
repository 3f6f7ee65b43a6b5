package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestFSPutGet(t *testing.T) {
	t.Parallel()

	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}
	ctx := context.Background()

	if err := fs.Put(ctx, "estimates/2026/e-1.pdf", "application/pdf", []byte("%PDF-1.3")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := fs.Get(ctx, "/estimates/2026/e-1.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, []byte("%PDF-1.3")) {
		t.Fatalf("unexpected body %q", got)
	}

	if _, err := fs.Get(ctx, "estimates/missing.pdf"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFSRejectsEscapingKeys(t *testing.T) {
	t.Parallel()

	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}
	for _, key := range []string{"", "../outside.pdf", "a/../../b"} {
		if err := fs.Put(context.Background(), key, "", nil); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestNewS3RequiresBucket(t *testing.T) {
	t.Parallel()

	if _, err := NewS3(context.Background(), S3Config{}); err == nil {
		t.Fatalf("expected error without bucket")
	}
}
