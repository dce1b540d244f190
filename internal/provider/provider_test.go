package provider

import (
	"errors"
	"testing"
)

func TestIsPlaceholderKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"", true},
		{"   ", true},
		{"your_api_key", true},
		{"YOUR_GROQ_KEY", true},
		{"paste_key_here", true},
		{"replace_me", true},
		{"changeme", true},
		{"sk-example-123", true},
		{"placeholder-value", true},
		{"gsk_live_abcdef123456", false},
		{"AIzaSyRealLookingKey", false},
	}

	for _, tt := range tests {
		if got := IsPlaceholderKey(tt.key); got != tt.want {
			t.Errorf("IsPlaceholderKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestCredentialsGet(t *testing.T) {
	creds := NewCredentials(map[string]string{
		"groq":   "gsk_live_abcdef123456",
		"google": "your_google_key",
	})

	key, err := creds.Get("groq")
	if err != nil || key != "gsk_live_abcdef123456" {
		t.Errorf("Get(groq) = %q, %v", key, err)
	}

	if _, err := creds.Get("google"); !errors.Is(err, ErrNoCredential) {
		t.Errorf("Get(google) err = %v, want ErrNoCredential", err)
	}
	if _, err := creds.Get("unknown"); !errors.Is(err, ErrNoCredential) {
		t.Errorf("Get(unknown) err = %v, want ErrNoCredential", err)
	}
}

func TestCredentialsSetAndHas(t *testing.T) {
	creds := NewCredentials(nil)

	if creds.Has("mistral") {
		t.Error("Has should be false before Set")
	}
	creds.Set("mistral", "sk_live_real_key")
	if !creds.Has("mistral") {
		t.Error("Has should be true after Set")
	}
}

func TestCredentialsMasked(t *testing.T) {
	creds := NewCredentials(map[string]string{
		"groq":  "gsk_live_abcdef123456",
		"short": "abc",
	})

	if got := creds.Masked("groq"); got != "gsk_live***" {
		t.Errorf("Masked(groq) = %q", got)
	}
	if got := creds.Masked("short"); got != "***" {
		t.Errorf("Masked(short) = %q", got)
	}
	if got := creds.Masked("missing"); got != "" {
		t.Errorf("Masked(missing) = %q", got)
	}
}

func TestAPIErrorHelpers(t *testing.T) {
	err := error(&APIError{Status: 429, Body: "slow down"})
	if !IsRateLimited(err) {
		t.Error("IsRateLimited(429) = false")
	}
	if IsRateLimited(&APIError{Status: 500}) {
		t.Error("IsRateLimited(500) = true")
	}
	if IsRateLimited(errors.New("plain")) {
		t.Error("IsRateLimited(plain error) = true")
	}
}
