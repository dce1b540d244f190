package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tjfontaine/llm-council/internal/domain"
)

// geminiAdapter speaks the Google AI Studio generateContent dialect. On a
// rate limit or a model-related rejection it advances through a fixed
// model preference chain; the chain stands in for the uniform retry
// policy. A success on any fallback model is annotated with the model
// variant that answered.
type geminiAdapter struct {
	desc       Descriptor
	creds      *Credentials
	httpClient *http.Client
	fallbacks  []string
}

func newGeminiAdapter(d Descriptor, creds *Credentials, fallbacks []string) *geminiAdapter {
	return &geminiAdapter{
		desc:       d,
		creds:      creds,
		httpClient: http.DefaultClient,
		fallbacks:  fallbacks,
	}
}

// SetHTTPClient replaces the underlying HTTP client for tests.
func (a *geminiAdapter) SetHTTPClient(c *http.Client) { a.httpClient = c }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (a *geminiAdapter) Query(ctx context.Context, messages []domain.Message) (*domain.QueryResult, error) {
	apiKey, err := a.creds.Get(a.desc.ID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.desc.Timeout)
	defer cancel()

	payload := a.buildRequest(messages)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for _, model := range a.modelChain() {
		result, err := a.generate(ctx, apiKey, model, body)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if shouldTryNextGeminiModel(err) {
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// buildRequest converts the canonical message list into Gemini's shape.
// Gemini has "user" and "model" roles; system messages travel separately
// via systemInstruction.
func (a *geminiAdapter) buildRequest(messages []domain.Message) geminiRequest {
	var req geminiRequest
	req.GenerationConfig.Temperature = 0.7
	req.GenerationConfig.MaxOutputTokens = a.desc.MaxTokens

	var systemParts []string
	for _, msg := range messages {
		if msg.Role == domain.RoleSystem {
			if strings.TrimSpace(msg.Content) != "" {
				systemParts = append(systemParts, msg.Content)
			}
			continue
		}
		role := "model"
		if msg.Role == domain.RoleUser {
			role = "user"
		}
		req.Contents = append(req.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}

	if len(systemParts) > 0 {
		req.SystemInstruction = &geminiContent{
			Role:  "user",
			Parts: []geminiPart{{Text: strings.Join(systemParts, "\n\n")}},
		}
	}
	return req
}

func (a *geminiAdapter) generate(ctx context.Context, apiKey, model string, body []byte) (*domain.QueryResult, error) {
	// The key rides as a query parameter, so the URL must never be logged.
	url := fmt.Sprintf("%s/%s:generateContent?key=%s", a.desc.Endpoint, model, apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

	var result geminiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	return &domain.QueryResult{
		Content:  result.Candidates[0].Content.Parts[0].Text,
		Provider: a.desc.ID,
		Model:    model,
	}, nil
}

// modelChain returns the primary model followed by the fallback list,
// skipping duplicates of the primary.
func (a *geminiAdapter) modelChain() []string {
	chain := []string{a.desc.Model}
	for _, m := range a.fallbacks {
		if m != "" && m != a.desc.Model {
			chain = append(chain, m)
		}
	}
	return chain
}

// shouldTryNextGeminiModel classifies failures that warrant advancing the
// model chain: rate limits, and 400/403/404 responses whose body points at
// model availability rather than a malformed request.
func shouldTryNextGeminiModel(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Status == http.StatusTooManyRequests {
		return true
	}
	switch apiErr.Status {
	case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
		body := strings.ToLower(apiErr.Body)
		for _, s := range []string{
			"model", "not found", "not supported", "unsupported",
			"permission", "access", "not enabled", "isn't available", "invalid",
		} {
			if strings.Contains(body, s) {
				return true
			}
		}
	}
	return false
}
