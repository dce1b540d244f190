package provider

import (
	"reflect"
	"testing"
)

func TestRegistryOrderAndLookup(t *testing.T) {
	r := NewRegistry(NewCredentials(nil))

	want := []string{"groq", "sambanova", "google", "mistral", "cohere", "huggingface", "openrouter"}
	if got := r.IDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("IDs() = %v, want %v", got, want)
	}

	for _, id := range want {
		if _, err := r.Get(id); err != nil {
			t.Errorf("Get(%s) error: %v", id, err)
		}
	}
	if _, err := r.Get("openai"); err == nil {
		t.Error("Get(openai) should fail")
	}
}

func TestRegistryDescribeUnknown(t *testing.T) {
	r := NewRegistry(NewCredentials(nil))

	d := r.Describe("mystery")
	if d.ID != "mystery" || d.DisplayName != "mystery" || d.Role != "Unknown" {
		t.Errorf("Describe(mystery) = %+v", d)
	}
	if r.DisplayName("google") != "Google AI Studio" {
		t.Errorf("DisplayName(google) = %q", r.DisplayName("google"))
	}
	if r.Role("sambanova") != "Council Chairman" {
		t.Errorf("Role(sambanova) = %q", r.Role("sambanova"))
	}
}

func TestEnvCredentials(t *testing.T) {
	getenv := func(name string) string {
		if name == "GROQ_API_KEY" {
			return "from-env"
		}
		return ""
	}

	keys := EnvCredentials(getenv, map[string]string{"groq": "from-config", "mistral": "m-key"})

	if keys["groq"] != "from-config" {
		t.Errorf("override should win: %q", keys["groq"])
	}
	if keys["mistral"] != "m-key" {
		t.Errorf("keys[mistral] = %q", keys["mistral"])
	}
	if keys["google"] != "" {
		t.Errorf("keys[google] = %q, want empty", keys["google"])
	}

	// Empty overrides fall back to the environment.
	keys = EnvCredentials(getenv, nil)
	if keys["groq"] != "from-env" {
		t.Errorf("keys[groq] = %q, want from-env", keys["groq"])
	}
}
