package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tjfontaine/llm-council/internal/domain"
)

// chatCompletionsAdapter speaks the OpenAI-compatible chat completions
// dialect used by Groq, SambaNova, Mistral, and the Hugging Face router.
type chatCompletionsAdapter struct {
	desc       Descriptor
	creds      *Credentials
	httpClient *http.Client
	headers    map[string]string
}

func newChatCompletionsAdapter(d Descriptor, creds *Credentials) *chatCompletionsAdapter {
	return &chatCompletionsAdapter{
		desc:       d,
		creds:      creds,
		httpClient: http.DefaultClient,
	}
}

// SetHTTPClient replaces the underlying HTTP client. Used by tests to
// inject recorded transports.
func (a *chatCompletionsAdapter) SetHTTPClient(c *http.Client) { a.httpClient = c }

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []domain.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (a *chatCompletionsAdapter) Query(ctx context.Context, messages []domain.Message) (*domain.QueryResult, error) {
	apiKey, err := a.creds.Get(a.desc.ID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.desc.Timeout)
	defer cancel()

	return queryWithRetry(ctx, func(ctx context.Context) (*domain.QueryResult, error) {
		return a.complete(ctx, apiKey, a.desc.Model, messages)
	})
}

func (a *chatCompletionsAdapter) complete(ctx context.Context, apiKey, model string, messages []domain.Message) (*domain.QueryResult, error) {
	payload := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   a.desc.MaxTokens,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.desc.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	for k, v := range a.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: truncateBody(respBody)}
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	return &domain.QueryResult{
		Content:  result.Choices[0].Message.Content,
		Provider: a.desc.ID,
	}, nil
}

// truncateBody keeps error payloads log-sized.
func truncateBody(b []byte) string {
	const limit = 500
	if len(b) > limit {
		return string(b[:limit])
	}
	return string(b)
}
