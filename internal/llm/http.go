package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Veraticus/riskdesk/internal/common"
)

const defaultHTTPTimeout = 30 * time.Second

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// postJSON sends body to url and decodes a 200 response into out. Non-200
// statuses become provider errors; 429 and 5xx stay retryable.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return common.Permanent(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return common.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return common.ProviderError(provider, fmt.Errorf("request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return common.ProviderError(provider, fmt.Errorf("failed to read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return common.ProviderError(provider, fmt.Errorf("%w: %s", common.ErrRateLimit, string(respBody)))
	case resp.StatusCode >= 500:
		return common.ProviderError(provider, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody)))
	case resp.StatusCode != http.StatusOK:
		return common.Permanent(common.ProviderError(provider,
			fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return common.Permanent(common.ProviderError(provider, common.ParseError("response body", err)))
	}
	return nil
}
