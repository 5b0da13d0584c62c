package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Veraticus/riskdesk/internal/common"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// geminiClient implements the Client interface for the Gemini generateContent API.
type geminiClient struct {
	httpClient  *http.Client
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
}

func newGeminiClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, common.NewConfigError("gemini", errors.New("API key is required"))
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = geminiBaseURL
	}

	return &geminiClient{
		apiKey:      cfg.APIKey,
		model:       model,
		baseURL:     baseURL,
		temperature: temperature,
		maxTokens:   maxTokens,
		httpClient:  newHTTPClient(cfg.Timeout),
	}, nil
}

// Complete sends a generateContent request to Gemini.
func (c *geminiClient) Complete(ctx context.Context, r Request) (Response, error) {
	generation := map[string]any{
		"temperature":     resolveTemperature(r, c.temperature),
		"maxOutputTokens": resolveMaxTokens(r, c.maxTokens),
		"topP":            0.95,
	}
	if r.JSON {
		generation["responseMimeType"] = "application/json"
	}

	requestBody := map[string]any{
		"contents": []map[string]any{
			{
				"role":  "user",
				"parts": []map[string]string{{"text": r.Prompt}},
			},
		},
		"generationConfig": generation,
	}
	if r.System != "" {
		requestBody["systemInstruction"] = map[string]any{
			"parts": []map[string]string{{"text": r.System}},
		}
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))

	var response geminiResponse
	err := postJSON(ctx, c.httpClient, "gemini", endpoint,
		map[string]string{"x-goog-api-key": c.apiKey}, requestBody, &response)
	if err != nil {
		return Response{}, err
	}

	if len(response.Candidates) == 0 {
		return Response{}, common.ProviderError("gemini", fmt.Errorf("no candidates returned"))
	}

	var text strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if text.Len() == 0 {
		return Response{}, common.ProviderError("gemini",
			fmt.Errorf("empty candidate (finish reason %s)", response.Candidates[0].FinishReason))
	}

	return Response{
		Text:         text.String(),
		Model:        c.model,
		InputTokens:  response.UsageMetadata.PromptTokenCount,
		OutputTokens: response.UsageMetadata.CandidatesTokenCount,
	}, nil
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
			Role string `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}
