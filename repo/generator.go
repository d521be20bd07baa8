package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"PromptBot/retry"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	BackendDiffusion = "diffusion"
	BackendDalle     = "dalle"
)

var ErrNoImages = errors.New("backend returned no images")

// Image is one generated image as delivered by a backend.
type Image struct {
	Ref         string // URL the backend served the image from
	Data        []byte
	ContentType string
	Prompt      string // prompt the backend actually rendered
}

// Generator renders a prompt and calls emit once per image, in order.
type Generator interface {
	Generate(ctx context.Context, prompt string, emit func(Image)) error
}

// RandomPrompter returns one of the backend's canned prompts.
type RandomPrompter interface {
	RandomPrompt(ctx context.Context) (string, error)
}

// StatusError is returned for non-retryable HTTP responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d for %s", e.StatusCode, e.URL)
}

// ClientOptions tunes the HTTP backends.
type ClientOptions struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// NewGenerator returns the backend client for kind.
func NewGenerator(kind, baseURL string, opts ClientOptions) (Generator, error) {
	backend := newHTTPBackend(baseURL, opts)
	switch kind {
	case BackendDiffusion:
		return &DiffusionClient{backend: backend}, nil
	case BackendDalle:
		return &DalleClient{backend: backend}, nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", kind)
	}
}

type httpBackend struct {
	baseURL string
	client  *http.Client
	retries int
	delay   time.Duration
}

func newHTTPBackend(baseURL string, opts ClientOptions) *httpBackend {
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = retry.DefaultPolicy().InitialDelay
	}
	return &httpBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: opts.Timeout},
		retries: opts.MaxRetries,
		delay:   opts.RetryDelay,
	}
}

// get fetches path, retrying transport failures and 5xx responses.
func (h *httpBackend) get(ctx context.Context, path string) ([]byte, string, error) {
	target := h.baseURL + path
	var body []byte
	var contentType string
	err := retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return retry.Permanent(fmt.Errorf("error building request: %w", err))
		}
		resp, err := h.client.Do(req)
		if err != nil {
			return fmt.Errorf("error calling backend: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("error reading response body: %w", err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			log.Warn().Str("url", target).Int("status", resp.StatusCode).Msg("backend error, retrying")
			return &StatusError{URL: target, StatusCode: resp.StatusCode}
		}
		if resp.StatusCode != http.StatusOK {
			return retry.Permanent(&StatusError{URL: target, StatusCode: resp.StatusCode})
		}
		body = data
		contentType = resp.Header.Get("Content-Type")
		return nil
	}, retry.WithMaxRetries(h.retries), retry.WithInitialDelay(h.delay))
	return body, contentType, err
}

func (h *httpBackend) randomPrompt(ctx context.Context, path string) (string, error) {
	body, _, err := h.get(ctx, path)
	if err != nil {
		return "", fmt.Errorf("error getting random prompt: %w", err)
	}
	// FastAPI may hand the text back JSON-quoted.
	prompt := strings.TrimSpace(string(body))
	var quoted string
	if json.Unmarshal(body, &quoted) == nil {
		prompt = quoted
	}
	return prompt, nil
}

// DiffusionClient talks to the stable diffusion server, which renders one webp
// image per request.
type DiffusionClient struct {
	backend *httpBackend
}

func (c *DiffusionClient) Generate(ctx context.Context, prompt string, emit func(Image)) error {
	path := "/generate/" + url.PathEscape(prompt)
	data, contentType, err := c.backend.get(ctx, path)
	if err != nil {
		return fmt.Errorf("error generating image: %w", err)
	}
	if len(data) == 0 {
		return ErrNoImages
	}
	if contentType == "" {
		contentType = "image/webp"
	}
	emit(Image{
		Ref:         c.backend.baseURL + path,
		Data:        data,
		ContentType: contentType,
		Prompt:      prompt,
	})
	return nil
}

func (c *DiffusionClient) RandomPrompt(ctx context.Context) (string, error) {
	return c.backend.randomPrompt(ctx, "/random-prompt")
}

// DalleClient talks to the DALL·E router, which answers with a batch of cached
// image paths and substitutes a fallback prompt when generation fails.
type DalleClient struct {
	backend *httpBackend
}

type autopilotResponse struct {
	Success    bool     `json:"success"`
	Prompt     string   `json:"prompt"`
	ImagePaths []string `json:"image_paths"`
}

func (c *DalleClient) Generate(ctx context.Context, prompt string, emit func(Image)) error {
	body, _, err := c.backend.get(ctx, "/autopilot/"+url.PathEscape(prompt))
	if err != nil {
		return fmt.Errorf("error requesting images: %w", err)
	}
	var resp autopilotResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("error unmarshaling response: %w", err)
	}
	if len(resp.ImagePaths) == 0 {
		return ErrNoImages
	}
	rendered := prompt
	if !resp.Success {
		log.Warn().Str("prompt", prompt).Str("fallback", resp.Prompt).Msg("router served a fallback prompt")
		rendered = resp.Prompt
	}

	for _, imagePath := range resp.ImagePaths {
		path := "/image/" + strings.TrimLeft(imagePath, "/")
		data, contentType, err := c.backend.get(ctx, path)
		if err != nil {
			return fmt.Errorf("error downloading image %s: %w", imagePath, err)
		}
		if contentType == "" {
			contentType = "image/webp"
		}
		emit(Image{
			Ref:         c.backend.baseURL + path,
			Data:        data,
			ContentType: contentType,
			Prompt:      rendered,
		})
	}
	return nil
}

func (c *DalleClient) RandomPrompt(ctx context.Context) (string, error) {
	return c.backend.randomPrompt(ctx, "/random-prompt?cache_only=true")
}
