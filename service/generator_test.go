package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"adgen-jobs/pkg/genai"
	"adgen-jobs/pkg/objectstore"
)

type stubMedia struct {
	image      *genai.Media
	video      *genai.Media
	err        error
	lastPrompt string
}

func (s *stubMedia) GenerateImage(_ context.Context, prompt string) (*genai.Media, error) {
	s.lastPrompt = prompt
	return s.image, s.err
}

func (s *stubMedia) GenerateVideo(_ context.Context, prompt string) (*genai.Media, error) {
	s.lastPrompt = prompt
	return s.video, s.err
}

func TestGeminiBackendPublishesAssets(t *testing.T) {
	base := filepath.Join(t.TempDir(), "assets")
	store, err := objectstore.NewFileStore(base)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	media := &stubMedia{
		image: &genai.Media{MimeType: "image/png", Data: []byte("png")},
		video: &genai.Media{MimeType: "video/mp4", Data: []byte("mp4")},
	}
	backend := &geminiBackend{client: media, assets: store}

	logo, err := backend.GenerateLogo(context.Background(), "tea house")
	if err != nil {
		t.Fatalf("logo: %v", err)
	}
	if !strings.HasPrefix(logo, "/assets/logo_") || !strings.HasSuffix(logo, ".png") {
		t.Fatalf("unexpected logo reference %q", logo)
	}
	if !strings.Contains(media.lastPrompt, "tea house") {
		t.Fatalf("prompt not forwarded: %q", media.lastPrompt)
	}
	if data, err := os.ReadFile(filepath.Join(base, strings.TrimPrefix(logo, "/assets/"))); err != nil || string(data) != "png" {
		t.Fatalf("logo not stored: %v", err)
	}

	video, err := backend.GenerateVideo(context.Background(), "tea house", logo)
	if err != nil {
		t.Fatalf("video: %v", err)
	}
	if !strings.HasPrefix(video, "/assets/video_") || !strings.HasSuffix(video, ".mp4") {
		t.Fatalf("unexpected video reference %q", video)
	}
	if !strings.Contains(media.lastPrompt, logo) {
		t.Fatalf("logo hint missing from video prompt: %q", media.lastPrompt)
	}
}

func TestGeminiBackendPropagatesClientError(t *testing.T) {
	store, _ := objectstore.NewFileStore(t.TempDir())
	backend := &geminiBackend{client: &stubMedia{err: genai.ErrNoMedia}, assets: store}
	if _, err := backend.GenerateLogo(context.Background(), "x"); !errors.Is(err, genai.ErrNoMedia) {
		t.Fatalf("expected ErrNoMedia, got %v", err)
	}
}

func TestExtensionFor(t *testing.T) {
	if got := extensionFor("", ".png"); got != ".png" {
		t.Fatalf("expected fallback, got %q", got)
	}
	if got := extensionFor("application/x-unknown-thing", ".mp4"); got != ".mp4" {
		t.Fatalf("expected fallback for unknown type, got %q", got)
	}
}

func TestSyntheticBackend(t *testing.T) {
	backend := NewSyntheticBackend(0)
	ctx := context.Background()

	a, err := backend.GenerateLogo(ctx, "pizza")
	if err != nil {
		t.Fatalf("logo: %v", err)
	}
	b, _ := backend.GenerateLogo(ctx, "pizza")
	if a != b || !strings.HasPrefix(a, "synthetic://logo/") {
		t.Fatalf("expected deterministic logo reference, got %q and %q", a, b)
	}
	if _, err := backend.GenerateLogo(ctx, "pizza #fail-logo"); !errors.Is(err, ErrSyntheticFailure) {
		t.Fatalf("expected forced logo failure, got %v", err)
	}
	if _, err := backend.GenerateVideo(ctx, "pizza #fail-video", a); !errors.Is(err, ErrSyntheticFailure) {
		t.Fatalf("expected forced video failure, got %v", err)
	}

	slow := NewSyntheticBackend(time.Hour)
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := slow.GenerateVideo(cctx, "pizza", ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
