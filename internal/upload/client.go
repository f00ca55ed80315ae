package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/mkalinina/marketauth/internal/logger"
)

const defaultTimeout = 10 * time.Second

// Client talks to the object upload service that hosts avatar images.
// The service accepts a multipart POST and answers with the public URL.
type Client struct {
	UploadAddr string

	client *http.Client
	logger logger.Logger
}

func NewClient(addr string, l logger.Logger) *Client {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Client{
		UploadAddr: addr,
		client:     &http.Client{},
		logger:     l,
	}
}

type uploadResponse struct {
	URL string `json:"url"`
}

// Upload sends the image and returns its public URL.
// Cancellation is inherited from the inbound request context.
func (c *Client) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.UploadAddr, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("Upload service rejected avatar", "status_code", resp.StatusCode, "body", string(msg))
		return "", fmt.Errorf("unexpected status code %d from upload service", resp.StatusCode)
	}

	var uploaded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if uploaded.URL == "" {
		return "", fmt.Errorf("upload service returned no url")
	}

	c.logger.Debug("Avatar uploaded", "url", uploaded.URL)
	return uploaded.URL, nil
}
