package provider

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/tjfontaine/llm-council/internal/domain"
)

// openRouterAdapter is the chat-completions dialect with OpenRouter's
// catalog quirks: the configured model is tried both with and without the
// ":free" suffix, advancing on 404 when the catalog has no endpoint for a
// variant. The variant chain stands in for the uniform retry policy.
type openRouterAdapter struct {
	chat *chatCompletionsAdapter
}

func newOpenRouterAdapter(d Descriptor, creds *Credentials) *openRouterAdapter {
	chat := newChatCompletionsAdapter(d, creds)
	chat.headers = map[string]string{
		// Required by OpenRouter; identifies the calling app.
		"HTTP-Referer": "https://llm-council.local",
		"X-Title":      "LLM Council",
	}
	return &openRouterAdapter{chat: chat}
}

// SetHTTPClient replaces the underlying HTTP client for tests.
func (a *openRouterAdapter) SetHTTPClient(c *http.Client) { a.chat.SetHTTPClient(c) }

func (a *openRouterAdapter) Query(ctx context.Context, messages []domain.Message) (*domain.QueryResult, error) {
	apiKey, err := a.chat.creds.Get(a.chat.desc.ID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.chat.desc.Timeout)
	defer cancel()

	var lastErr error
	for _, model := range a.modelVariants() {
		result, err := a.chat.complete(ctx, apiKey, model, messages)
		if err == nil {
			result.Model = model
			return result, nil
		}

		lastErr = err
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			// Catalog has no endpoint for this variant, try the next.
			continue
		}
		return nil, err
	}
	if lastErr == nil {
		lastErr = errors.New("no model configured")
	}
	return nil, lastErr
}

// modelVariants returns the configured model followed by its ":free"
// counterpart (or vice versa), de-duplicated in order. OPENROUTER_MODEL
// overrides the registry default, which is handy when the catalog changes.
func (a *openRouterAdapter) modelVariants() []string {
	base := strings.TrimSpace(os.Getenv("OPENROUTER_MODEL"))
	if base == "" {
		base = a.chat.desc.Model
	}
	if base == "" {
		return nil
	}

	variants := []string{base}
	if alt, ok := strings.CutSuffix(base, ":free"); ok {
		variants = append(variants, alt)
	} else {
		variants = append(variants, base+":free")
	}

	seen := make(map[string]bool, len(variants))
	out := variants[:0]
	for _, v := range variants {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
