package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPEngineClient is an HTTP implementation of the EngineClient interface.
// It talks to the generation engine sidecar, which stores the produced image
// bytes itself and returns only the resulting URIs.
type HTTPEngineClient struct {
	url    string
	client *http.Client
}

// NewHTTPEngineClient creates a new HTTPEngineClient. Generation can block
// for the full duration of inference, so the timeout is deliberately long.
func NewHTTPEngineClient(url string, timeout time.Duration) *HTTPEngineClient {
	return &HTTPEngineClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// GenerateImage produces a single image for the given request.
func (c *HTTPEngineClient) GenerateImage(ctx context.Context, req GenerateImageRequest) (*GeneratedImage, error) {
	requestBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/generate", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to generate image: status code %d", resp.StatusCode)
	}

	var image GeneratedImage
	if err := json.NewDecoder(resp.Body).Decode(&image); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	return &image, nil
}
