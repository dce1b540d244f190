// Package council implements the three-stage deliberation that turns one
// user question into a synthesized answer: concurrent collection of
// candidate answers, anonymized peer ranking, and chairman synthesis.
package council

import (
	"regexp"
	"strings"
)

// placeholder replaces every scrubbed identity token.
const placeholder = "[AI Model]"

// wellKnownNames are identity tokens scrubbed from every rater-visible
// response regardless of which providers are seated, so a rater cannot
// recognize (and favor or punish) a specific model.
var wellKnownNames = []string{
	"ChatGPT", "GPT-4", "GPT-3", "GPT", "OpenAI",
	"Claude", "Anthropic",
	"Gemini", "Bard", "Google AI", "Google",
	"Llama", "Meta Llama", "LLaMA", "Meta",
	"Mistral", "Mixtral",
	"Groq", "Groq Cloud",
	"Cohere", "Command",
	"Hugging Face", "HuggingFace",
	"SambaNova", "Samba Nova",
	"BERT", "T5", "PaLM", "Transformer",
	"OpenRouter",
}

// Anonymize scrubs the well-known AI names plus the given per-run names
// (display names and provider IDs of the seated council) from text,
// using case-insensitive whole-word matching.
func Anonymize(text string, knownNames []string) string {
	result := text
	for _, name := range append(append([]string{}, wellKnownNames...), knownNames...) {
		if strings.TrimSpace(name) == "" {
			continue
		}
		quoted := regexp.QuoteMeta(name)
		for _, pattern := range []string{
			`(?i)\b` + quoted + `\b`,
			`(?i)as ` + quoted,
			`(?i)i am ` + quoted,
			`(?i)` + quoted + ` here`,
		} {
			result = regexp.MustCompile(pattern).ReplaceAllString(result, placeholder)
		}
	}
	return result
}

// Label returns the opaque label for the i-th stage-1 answer. Assignment
// is purely positional: the i-th result in query-issue order gets the
// i-th letter, deterministically for a given ordering.
func Label(i int) string {
	return string(rune('A' + i))
}

// ResponseLabel is the fully qualified form used in prompts and in the
// label-to-model metadata map, e.g. "Response A".
func ResponseLabel(i int) string {
	return "Response " + Label(i)
}
