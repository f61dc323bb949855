package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey       string
	BaseURL      string
	ImageModel   string
	VideoModel   string
	PollInterval time.Duration
	VideoTimeout time.Duration
	HTTPClient   *http.Client
}

// Client calls the Gemini REST API for logo images and, through long-running
// operations, for advertisement videos.
type Client struct {
	apiKey       string
	baseURL      string
	imageModel   string
	videoModel   string
	pollInterval time.Duration
	videoTimeout time.Duration
	httpClient   *http.Client
}

// Media is raw generated content.
type Media struct {
	MimeType string
	Data     []byte
}

var (
	ErrMissingAPIKey = errors.New("genai: api key is required")
	ErrNoMedia       = errors.New("genai: no media in response")
	errPending       = errors.New("genai: operation still running")
)

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("genai: api error %d: %s", e.StatusCode, e.Message)
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateContentRequest struct {
	Contents []content `json:"contents"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason,omitempty"`
	} `json:"candidates"`
}

type predictRequest struct {
	Instances []videoInstance `json:"instances"`
}

type videoInstance struct {
	Prompt string `json:"prompt"`
}

type operation struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	imageModel := opts.ImageModel
	if imageModel == "" {
		imageModel = "gemini-2.5-flash-image"
	}
	videoModel := opts.VideoModel
	if videoModel == "" {
		videoModel = "veo-3.1-generate-preview"
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 10 * time.Second
	}
	timeout := opts.VideoTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Client{
		apiKey:       apiKey,
		baseURL:      baseURL,
		imageModel:   imageModel,
		videoModel:   videoModel,
		pollInterval: poll,
		videoTimeout: timeout,
		httpClient:   client,
	}, nil
}

// GenerateImage asks the image model for a single image and returns the
// first inline image part.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (*Media, error) {
	req := generateContentRequest{Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}}}
	var resp generateContentResponse
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.imageModel)
	if err := c.doJSON(ctx, http.MethodPost, url, req, &resp); err != nil {
		return nil, err
	}
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("genai: decode image: %w", err)
			}
			return &Media{MimeType: p.InlineData.MimeType, Data: data}, nil
		}
	}
	return nil, ErrNoMedia
}

// GenerateVideo starts a long-running video operation, polls it until done
// and downloads the first generated sample.
func (c *Client) GenerateVideo(ctx context.Context, prompt string) (*Media, error) {
	logger := zerolog.Ctx(ctx)

	var op operation
	url := fmt.Sprintf("%s/models/%s:predictLongRunning", c.baseURL, c.videoModel)
	if err := c.doJSON(ctx, http.MethodPost, url, predictRequest{Instances: []videoInstance{{Prompt: prompt}}}, &op); err != nil {
		return nil, err
	}
	if op.Name == "" {
		return nil, errors.New("genai: operation name missing")
	}
	logger.Info().Str("operation", op.Name).Msg("video generation started")

	started := time.Now()
	poll := func() (*operation, error) {
		var cur operation
		if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("%s/%s", c.baseURL, op.Name), nil, &cur); err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if !cur.Done {
			logger.Debug().Dur("elapsed", time.Since(started)).Msg("waiting for video generation")
			return nil, errPending
		}
		return &cur, nil
	}
	done, err := backoff.Retry(ctx, poll,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.pollInterval)),
		backoff.WithMaxElapsedTime(c.videoTimeout),
	)
	if err != nil {
		if errors.Is(err, errPending) {
			return nil, fmt.Errorf("genai: video generation timed out after %s", c.videoTimeout)
		}
		return nil, err
	}
	if done.Error != nil {
		return nil, &APIError{StatusCode: done.Error.Code, Message: done.Error.Message}
	}
	if done.Response == nil || len(done.Response.GenerateVideoResponse.GeneratedSamples) == 0 {
		return nil, ErrNoMedia
	}
	uri := done.Response.GenerateVideoResponse.GeneratedSamples[0].Video.URI
	if uri == "" {
		return nil, ErrNoMedia
	}
	return c.download(ctx, uri)
}

func (c *Client) download(ctx context.Context, uri string) (*Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("genai: download video: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, decodeError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("genai: read video: %w", err)
	}
	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || strings.HasPrefix(mimeType, "application/octet-stream") {
		mimeType = "video/mp4"
	}
	return &Media{MimeType: mimeType, Data: data}, nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("genai: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("genai: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("genai: decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var e errorResponse
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &e); err == nil && e.Error.Message != "" {
		msg = e.Error.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
