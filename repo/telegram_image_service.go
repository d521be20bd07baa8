package repo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
)

// TelegramFileResponse represents the response from getFile
type TelegramFileResponse struct {
	Ok     bool `json:"ok"`
	Result struct {
		FileID   string `json:"file_id"`
		FileSize int    `json:"file_size"`
		FilePath string `json:"file_path"`
	} `json:"result"`
}

// ImageService turns the file IDs of images the bot uploaded into download URLs
type ImageService struct {
	BotToken    string
	BaseURL     string
	FileBaseURL string
	HTTPClient  *http.Client
}

// NewImageService creates a new image service
func NewImageService(botToken string) *ImageService {
	return &ImageService{
		BotToken:    botToken,
		BaseURL:     "https://api.telegram.org/bot",
		FileBaseURL: "https://api.telegram.org/file/bot",
		HTTPClient:  http.DefaultClient,
	}
}

// FileURL converts a Telegram file ID to a URL the file can be downloaded from
func (s *ImageService) FileURL(ctx context.Context, fileID string) (string, error) {
	getFileURL := fmt.Sprintf("%s%s/getFile?file_id=%s", s.BaseURL, s.BotToken, url.QueryEscape(fileID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, getFileURL, nil)
	if err != nil {
		return "", fmt.Errorf("error building getFile request: %w", err)
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error getting file path: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	var fileResponse TelegramFileResponse
	if err := json.Unmarshal(body, &fileResponse); err != nil {
		return "", fmt.Errorf("error unmarshaling response: %w", err)
	}

	if !fileResponse.Ok || fileResponse.Result.FilePath == "" {
		return "", fmt.Errorf("couldn't retrieve file path for file ID: %s", fileID)
	}

	return fmt.Sprintf("%s%s/%s", s.FileBaseURL, s.BotToken, strings.TrimLeft(fileResponse.Result.FilePath, "/")), nil
}
