// Package provider implements the uniform query contract over the
// heterogeneous council backends. Each adapter translates the canonical
// message list into its backend's wire shape, attaches credentials, and
// extracts the answer text from the backend's response.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tjfontaine/llm-council/internal/domain"
)

// Adapter is the uniform query contract. Implementations own their retry
// policy and any provider-internal model-fallback chain; they never
// substitute a different provider (that is the coordinator's job).
type Adapter interface {
	Query(ctx context.Context, messages []domain.Message) (*domain.QueryResult, error)
}

// AdapterFunc allows functions to implement Adapter.
type AdapterFunc func(ctx context.Context, messages []domain.Message) (*domain.QueryResult, error)

func (f AdapterFunc) Query(ctx context.Context, messages []domain.Message) (*domain.QueryResult, error) {
	return f(ctx, messages)
}

// Descriptor is the immutable registry record for one provider. The
// registry is populated once at process start; IDs are unique and stable
// for the process lifetime.
type Descriptor struct {
	ID            string
	DisplayName   string
	Role          string
	Model         string
	Endpoint      string
	CredentialEnv string
	Timeout       time.Duration
	MaxTokens     int
}

// ErrNoCredential is returned when a provider has no usable API key.
// Missing and placeholder-looking keys are treated identically; no
// network call is made in either case.
var ErrNoCredential = errors.New("api key not configured")

// APIError is an HTTP-level failure from a backend.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Body)
}

// IsRateLimited reports whether err is an HTTP 429 from a backend.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 429
}

// IsPlaceholderKey reports whether a credential value is empty or looks
// like an unfilled template rather than a real secret.
func IsPlaceholderKey(value string) bool {
	normalized := strings.TrimSpace(value)
	if normalized == "" {
		return true
	}
	lowered := strings.ToLower(normalized)
	return strings.HasPrefix(lowered, "your_") ||
		strings.HasSuffix(lowered, "_here") ||
		strings.Contains(lowered, "replace_me") ||
		strings.Contains(lowered, "changeme") ||
		strings.Contains(lowered, "example") ||
		strings.Contains(lowered, "placeholder")
}

// Credentials holds per-provider API keys. Keys can be updated at runtime
// through the settings API while adapters read them per query, so access
// is guarded.
type Credentials struct {
	mu   sync.RWMutex
	keys map[string]string
}

// NewCredentials creates a credential store seeded with the given keys.
func NewCredentials(keys map[string]string) *Credentials {
	c := &Credentials{keys: make(map[string]string, len(keys))}
	for id, key := range keys {
		c.keys[id] = key
	}
	return c
}

// Get returns the usable API key for a provider, or ErrNoCredential if the
// key is absent or a placeholder.
func (c *Credentials) Get(providerID string) (string, error) {
	c.mu.RLock()
	key := c.keys[providerID]
	c.mu.RUnlock()

	if IsPlaceholderKey(key) {
		return "", fmt.Errorf("provider %s: %w", providerID, ErrNoCredential)
	}
	return key, nil
}

// Set stores an API key for a provider.
func (c *Credentials) Set(providerID, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[providerID] = key
}

// Has reports whether a non-placeholder key exists for a provider.
func (c *Credentials) Has(providerID string) bool {
	_, err := c.Get(providerID)
	return err == nil
}

// Masked returns a display-safe form of a provider's key: the first 8
// characters followed by "***", or "" if no key is set.
func (c *Credentials) Masked(providerID string) string {
	c.mu.RLock()
	key := c.keys[providerID]
	c.mu.RUnlock()

	if key == "" {
		return ""
	}
	if len(key) > 8 {
		return key[:8] + "***"
	}
	return "***"
}
