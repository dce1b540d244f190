package provider

import (
	"fmt"
	"time"
)

// builtins is the static council membership. The registry is read-only
// after initialization; runtime settings select which of these seats are
// active, never add new ones.
var builtins = []Descriptor{
	{
		ID:            "groq",
		DisplayName:   "Groq Cloud",
		Role:          "Speed and Technical Expertise",
		Model:         "llama-3.3-70b-versatile",
		Endpoint:      "https://api.groq.com/openai/v1/chat/completions",
		CredentialEnv: "GROQ_API_KEY",
		Timeout:       60 * time.Second,
		MaxTokens:     4096,
	},
	{
		ID:            "sambanova",
		DisplayName:   "SambaNova Cloud",
		Role:          "Council Chairman",
		Model:         "Meta-Llama-3.1-8B-Instruct",
		Endpoint:      "https://api.sambanova.ai/v1/chat/completions",
		CredentialEnv: "SAMBANOVA_API_KEY",
		Timeout:       180 * time.Second,
		MaxTokens:     4096,
	},
	{
		ID:            "google",
		DisplayName:   "Google AI Studio",
		Role:          "Logic and Long-Context Expert",
		Model:         "gemini-2.0-flash-lite",
		Endpoint:      "https://generativelanguage.googleapis.com/v1beta/models",
		CredentialEnv: "GOOGLE_AI_API_KEY",
		Timeout:       120 * time.Second,
		MaxTokens:     8192,
	},
	{
		ID:            "mistral",
		DisplayName:   "Mistral AI",
		Role:          "Coding and Creative Writing",
		Model:         "mistral-large-latest",
		Endpoint:      "https://api.mistral.ai/v1/chat/completions",
		CredentialEnv: "MISTRAL_API_KEY",
		Timeout:       120 * time.Second,
		MaxTokens:     4096,
	},
	{
		ID:            "cohere",
		DisplayName:   "Cohere",
		Role:          "Analysis and Critique",
		Model:         "command-a-03-2025",
		Endpoint:      "https://api.cohere.com/v2/chat",
		CredentialEnv: "COHERE_API_KEY",
		Timeout:       120 * time.Second,
		MaxTokens:     4096,
	},
	{
		ID:            "huggingface",
		DisplayName:   "Hugging Face",
		Role:          "Reserve Force (Failover)",
		Model:         "Qwen/Qwen2.5-72B-Instruct",
		Endpoint:      "https://router.huggingface.co/v1/chat/completions",
		CredentialEnv: "HUGGINGFACE_API_KEY",
		Timeout:       180 * time.Second,
		MaxTokens:     4096,
	},
	{
		ID:            "openrouter",
		DisplayName:   "OpenRouter",
		Role:          "Multi-Model Gateway (Failover)",
		Model:         "meta-llama/llama-3.1-8b-instruct",
		Endpoint:      "https://openrouter.ai/api/v1/chat/completions",
		CredentialEnv: "OPENROUTER_API_KEY",
		Timeout:       180 * time.Second,
		MaxTokens:     4096,
	},
}

// GoogleModelFallbacks is the fixed preference order tried when Google
// rate-limits or rejects the primary model. Cheap and fast models first,
// pro models last.
var GoogleModelFallbacks = []string{
	"gemini-2.0-flash-lite",
	"gemini-2.5-flash-lite",
	"gemini-2.0-flash-exp",
	"gemini-2.5-flash",
	"gemini-2.5-pro",
	"gemma-3-4b",
	"gemma-3-12b",
	"gemma-3-27b",
}

// Registry maps provider IDs to descriptors and their adapters.
type Registry struct {
	order       []string
	descriptors map[string]Descriptor
	adapters    map[string]Adapter
}

// NewRegistry builds the built-in registry with adapters wired to the
// given credential store.
func NewRegistry(creds *Credentials) *Registry {
	r := &Registry{
		descriptors: make(map[string]Descriptor, len(builtins)),
		adapters:    make(map[string]Adapter, len(builtins)),
	}
	for _, d := range builtins {
		r.order = append(r.order, d.ID)
		r.descriptors[d.ID] = d
		r.adapters[d.ID] = newAdapter(d, creds)
	}
	return r
}

// Get returns the adapter for a provider ID.
func (r *Registry) Get(id string) (Adapter, error) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", id)
	}
	return a, nil
}

// Describe returns the descriptor for a provider ID. The zero Descriptor
// is returned for unknown IDs, with DisplayName falling back to the ID so
// callers can render something.
func (r *Registry) Describe(id string) Descriptor {
	if d, ok := r.descriptors[id]; ok {
		return d
	}
	return Descriptor{ID: id, DisplayName: id, Role: "Unknown"}
}

// IDs returns provider IDs in registry order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// DisplayName is a lookup shorthand used throughout the pipeline.
func (r *Registry) DisplayName(id string) string {
	return r.Describe(id).DisplayName
}

// Role is a lookup shorthand used throughout the pipeline.
func (r *Registry) Role(id string) string {
	return r.Describe(id).Role
}

// EnvCredentials builds the initial credential map from the process
// environment, honoring each descriptor's credential variable. Explicit
// overrides win over the environment.
func EnvCredentials(getenv func(string) string, overrides map[string]string) map[string]string {
	keys := make(map[string]string, len(builtins))
	for _, d := range builtins {
		if v, ok := overrides[d.ID]; ok && v != "" {
			keys[d.ID] = v
			continue
		}
		keys[d.ID] = getenv(d.CredentialEnv)
	}
	return keys
}

// newAdapter wires the right client for a descriptor. The provider set is
// small and fixed, so this is a closed dispatch rather than a plugin
// mechanism.
func newAdapter(d Descriptor, creds *Credentials) Adapter {
	switch d.ID {
	case "google":
		return newGeminiAdapter(d, creds, GoogleModelFallbacks)
	case "cohere":
		return newCohereAdapter(d, creds)
	case "openrouter":
		return newOpenRouterAdapter(d, creds)
	default:
		return newChatCompletionsAdapter(d, creds)
	}
}
