package provider

import (
	"context"
	"os"
	"testing"

	"github.com/tjfontaine/llm-council/internal/domain"
	"github.com/tjfontaine/llm-council/internal/testutil"
)

// TestChatCompletionsReplay exercises the adapter against a recorded
// exchange. Re-record with VCR_MODE=record and a real GROQ_API_KEY.
func TestChatCompletionsReplay(t *testing.T) {
	if os.Getenv("VCR_MODE") == "record" && os.Getenv("GROQ_API_KEY") == "" {
		t.Skip("GROQ_API_KEY not set")
	}

	rec, cleanup := testutil.NewVCRRecorder(t, "groq_chat")
	defer cleanup()

	apiKey := os.Getenv("GROQ_API_KEY")
	if apiKey == "" {
		apiKey = "gsk_live_test_key"
	}

	creds := NewCredentials(map[string]string{"groq": apiKey})
	adapter := newChatCompletionsAdapter(testDescriptor("groq", "https://api.groq.com/openai/v1/chat/completions"), creds)
	adapter.SetHTTPClient(testutil.VCRHTTPClient(rec))

	result, err := adapter.Query(context.Background(), []domain.Message{
		{Role: domain.RoleUser, Content: "Say hello."},
	})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if result.Content == "" {
		t.Error("empty response content")
	}
	if result.Provider != "groq" {
		t.Errorf("provider = %q", result.Provider)
	}
}
