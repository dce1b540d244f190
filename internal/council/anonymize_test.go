package council

import (
	"strings"
	"testing"
)

func TestAnonymizeWellKnownNames(t *testing.T) {
	got := Anonymize("I am Claude, and ChatGPT would agree.", nil)
	if strings.Contains(got, "Claude") || strings.Contains(got, "ChatGPT") {
		t.Errorf("identity tokens survived: %q", got)
	}
	if !strings.Contains(got, "[AI Model]") {
		t.Errorf("expected placeholder in %q", got)
	}
}

func TestAnonymizeCaseInsensitive(t *testing.T) {
	got := Anonymize("as GEMINI, I note that gemini is fast", nil)
	if strings.Contains(strings.ToLower(got), "gemini") {
		t.Errorf("case variant survived: %q", got)
	}
}

func TestAnonymizePerRunNames(t *testing.T) {
	got := Anonymize("Groq Cloud and sambanova responded.", []string{"Groq Cloud", "sambanova"})
	if strings.Contains(got, "Groq Cloud") || strings.Contains(got, "sambanova") {
		t.Errorf("per-run names survived: %q", got)
	}
}

func TestAnonymizeWholeWordOnly(t *testing.T) {
	// "Metadata" contains "Meta" but is not an identity mention.
	got := Anonymize("The metadata field is unchanged.", nil)
	if !strings.Contains(got, "metadata") {
		t.Errorf("substring of a longer word was scrubbed: %q", got)
	}
}

func TestAnonymizeLeavesPlainText(t *testing.T) {
	text := "Photosynthesis converts light into chemical energy."
	if got := Anonymize(text, nil); got != text {
		t.Errorf("plain text changed: %q", got)
	}
}

func TestLabels(t *testing.T) {
	if Label(0) != "A" || Label(2) != "C" {
		t.Errorf("Label: got %q, %q", Label(0), Label(2))
	}
	if ResponseLabel(1) != "Response B" {
		t.Errorf("ResponseLabel(1) = %q", ResponseLabel(1))
	}
}
