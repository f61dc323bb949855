package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStorePublish(t *testing.T) {
	base := filepath.Join(t.TempDir(), "output")
	store, err := NewFileStore(base)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ref, err := store.Publish(context.Background(), "logos/logo_1.png", "image/png", []byte("png"))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ref != "/output/logos/logo_1.png" {
		t.Fatalf("unexpected reference %q", ref)
	}
	data, err := os.ReadFile(filepath.Join(base, "logos", "logo_1.png"))
	if err != nil || string(data) != "png" {
		t.Fatalf("asset not written: %v %q", err, data)
	}
}

func TestSanitizeKey(t *testing.T) {
	cases := map[string]string{
		"logo.png":          "logo.png",
		"/abs/logo.png":     "abs/logo.png",
		`dir\logo.png`:      "dir/logo.png",
		"./a/../b/logo.png": "b/logo.png",
	}
	for in, want := range cases {
		got, err := sanitizeKey(in)
		if err != nil || got != want {
			t.Fatalf("sanitizeKey(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "  ", "../escape", "a/../../escape", "."} {
		if _, err := sanitizeKey(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestFileStoreHonoursCancelledContext(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Publish(ctx, "x.png", "image/png", nil); err == nil {
		t.Fatalf("expected cancelled context error")
	}
}
