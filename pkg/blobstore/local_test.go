package blobstore

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStoreSaveOpenDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("NewLocalStore returned error: %v", err)
	}

	ref, err := s.Save(ctx, "doc.pdf", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if ref != "doc.pdf" {
		t.Fatalf("expected reference to be the name, got %q", ref)
	}

	if _, err := s.Save(ctx, "doc.pdf", strings.NewReader("again")); err == nil {
		t.Fatal("expected second save with the same name to fail")
	}

	rc, err := s.Open(ctx, ref)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "%PDF-1.4" {
		t.Fatalf("unexpected content %q", body)
	}

	if err := s.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := s.Delete(ctx, ref); err != nil {
		t.Fatalf("second Delete should be a no-op, got %v", err)
	}
	if _, err := s.Open(ctx, ref); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalStoreRejectsPathNames(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore returned error: %v", err)
	}
	for _, name := range []string{"", "../escape.pdf", "nested/file.pdf", ".hidden"} {
		if _, err := s.Save(context.Background(), name, strings.NewReader("x")); err == nil {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
	if _, err := s.Open(context.Background(), "../etc/passwd"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for traversal, got %v", err)
	}
}
