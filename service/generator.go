package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"adgen-jobs/pkg/genai"
	"adgen-jobs/pkg/objectstore"
)

// LogoGenerator and VideoGenerator are blocking calls to an external
// generation service. They return an asset reference.
type LogoGenerator interface {
	GenerateLogo(ctx context.Context, prompt string) (string, error)
}

type VideoGenerator interface {
	// GenerateVideo may ignore logoHint.
	GenerateVideo(ctx context.Context, prompt, logoHint string) (string, error)
}

type Generator interface {
	LogoGenerator
	VideoGenerator
}

type mediaClient interface {
	GenerateImage(ctx context.Context, prompt string) (*genai.Media, error)
	GenerateVideo(ctx context.Context, prompt string) (*genai.Media, error)
}

type geminiBackend struct {
	client mediaClient
	assets objectstore.Publisher
}

// NewGeminiBackend generates media with client and publishes it to assets.
func NewGeminiBackend(client *genai.Client, assets objectstore.Publisher) Generator {
	return &geminiBackend{client: client, assets: assets}
}

func (g *geminiBackend) GenerateLogo(ctx context.Context, prompt string) (string, error) {
	media, err := g.client.GenerateImage(ctx, logoPrompt(prompt))
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("logo_%s%s", shortID(), extensionFor(media.MimeType, ".png"))
	url, err := g.assets.Publish(ctx, key, media.MimeType, media.Data)
	if err != nil {
		return "", fmt.Errorf("publish logo: %w", err)
	}
	zerolog.Ctx(ctx).Debug().Str("asset", url).Int("bytes", len(media.Data)).Msg("logo published")
	return url, nil
}

func (g *geminiBackend) GenerateVideo(ctx context.Context, prompt, logoHint string) (string, error) {
	media, err := g.client.GenerateVideo(ctx, videoPrompt(prompt, logoHint))
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("video_%s%s", shortID(), extensionFor(media.MimeType, ".mp4"))
	url, err := g.assets.Publish(ctx, key, media.MimeType, media.Data)
	if err != nil {
		return "", fmt.Errorf("publish video: %w", err)
	}
	zerolog.Ctx(ctx).Debug().Str("asset", url).Int("bytes", len(media.Data)).Msg("video published")
	return url, nil
}

func logoPrompt(prompt string) string {
	return fmt.Sprintf("Create a logo for %s. Make it minimalist, professional, suitable for brand identity. "+
		"Use a clean vector style with transparent background if possible.", prompt)
}

func videoPrompt(prompt, logoHint string) string {
	p := fmt.Sprintf("Create an animated advertisement for social media marketing campaign for the given prompt: '%s'. "+
		"Make it engaging, professional, suitable for platforms like Instagram Reels or TikTok. Keep it around 4 seconds.", prompt)
	if logoHint != "" {
		p += fmt.Sprintf(" Feature the brand logo available at %s.", logoHint)
	}
	return p
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func extensionFor(mimeType, fallback string) string {
	exts, err := mime.ExtensionsByType(mimeType)
	if err != nil || len(exts) == 0 {
		return fallback
	}
	for _, ext := range exts {
		if ext == fallback {
			return ext
		}
	}
	return exts[0]
}

var ErrSyntheticFailure = errors.New("synthetic backend failure")

// syntheticBackend returns deterministic asset references after Delay. It
// keeps the pipeline usable without generation credentials.
type syntheticBackend struct {
	delay    time.Duration
	failWord string
}

func NewSyntheticBackend(delay time.Duration) Generator {
	return &syntheticBackend{delay: delay, failWord: "#fail"}
}

func (s *syntheticBackend) GenerateLogo(ctx context.Context, prompt string) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	if strings.Contains(prompt, s.failWord+"-logo") {
		return "", ErrSyntheticFailure
	}
	return "synthetic://logo/" + digest(prompt) + ".png", nil
}

func (s *syntheticBackend) GenerateVideo(ctx context.Context, prompt, _ string) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	if strings.Contains(prompt, s.failWord+"-video") {
		return "", ErrSyntheticFailure
	}
	return "synthetic://video/" + digest(prompt) + ".mp4", nil
}

func (s *syntheticBackend) wait(ctx context.Context) error {
	if s.delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func digest(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:6])
}
