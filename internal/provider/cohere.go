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

// cohereAdapter speaks the Cohere v2 chat dialect. Cohere only accepts
// user and assistant roles, and the answer text nests one level deeper
// than the OpenAI shape.
type cohereAdapter struct {
	desc       Descriptor
	creds      *Credentials
	httpClient *http.Client
}

func newCohereAdapter(d Descriptor, creds *Credentials) *cohereAdapter {
	return &cohereAdapter{
		desc:       d,
		creds:      creds,
		httpClient: http.DefaultClient,
	}
}

// SetHTTPClient replaces the underlying HTTP client for tests.
func (a *cohereAdapter) SetHTTPClient(c *http.Client) { a.httpClient = c }

type cohereMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type cohereRequest struct {
	Model       string          `json:"model"`
	Messages    []cohereMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
}

type cohereResponse struct {
	Message struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
}

func (a *cohereAdapter) Query(ctx context.Context, messages []domain.Message) (*domain.QueryResult, error) {
	apiKey, err := a.creds.Get(a.desc.ID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.desc.Timeout)
	defer cancel()

	return queryWithRetry(ctx, func(ctx context.Context) (*domain.QueryResult, error) {
		return a.chat(ctx, apiKey, messages)
	})
}

func (a *cohereAdapter) chat(ctx context.Context, apiKey string, messages []domain.Message) (*domain.QueryResult, error) {
	payload := cohereRequest{
		Model:       a.desc.Model,
		Temperature: 0.7,
		MaxTokens:   a.desc.MaxTokens,
	}
	for _, msg := range messages {
		role := "assistant"
		if msg.Role == domain.RoleUser {
			role = "user"
		}
		payload.Messages = append(payload.Messages, cohereMessage{Role: role, Content: msg.Content})
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

	var result cohereResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(result.Message.Content) == 0 {
		return nil, fmt.Errorf("no content in response")
	}

	return &domain.QueryResult{
		Content:  result.Message.Content[0].Text,
		Provider: a.desc.ID,
	}, nil
}
