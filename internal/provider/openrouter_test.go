package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/tjfontaine/llm-council/internal/domain"
)

func TestOpenRouterModelVariants(t *testing.T) {
	t.Setenv("OPENROUTER_MODEL", "")

	a := newOpenRouterAdapter(testDescriptor("openrouter", ""), NewCredentials(nil))
	a.chat.desc.Model = "meta-llama/llama-3.1-8b-instruct"

	want := []string{"meta-llama/llama-3.1-8b-instruct", "meta-llama/llama-3.1-8b-instruct:free"}
	if got := a.modelVariants(); !reflect.DeepEqual(got, want) {
		t.Errorf("modelVariants() = %v, want %v", got, want)
	}

	a.chat.desc.Model = "meta-llama/llama-3.1-8b-instruct:free"
	want = []string{"meta-llama/llama-3.1-8b-instruct:free", "meta-llama/llama-3.1-8b-instruct"}
	if got := a.modelVariants(); !reflect.DeepEqual(got, want) {
		t.Errorf("modelVariants() = %v, want %v", got, want)
	}
}

func TestOpenRouterModelVariantsEnvOverride(t *testing.T) {
	t.Setenv("OPENROUTER_MODEL", "custom/model")

	a := newOpenRouterAdapter(testDescriptor("openrouter", ""), NewCredentials(nil))
	got := a.modelVariants()
	if got[0] != "custom/model" {
		t.Errorf("env override ignored: %v", got)
	}
}

func TestOpenRouterAdvancesOn404(t *testing.T) {
	t.Setenv("OPENROUTER_MODEL", "")

	var models []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		models = append(models, req.Model)

		if len(models) == 1 {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"no endpoints found"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "via free tier"}},
			},
		})
	}))
	defer srv.Close()

	desc := testDescriptor("openrouter", srv.URL)
	desc.Model = "meta-llama/llama-3.1-8b-instruct"
	creds := NewCredentials(map[string]string{"openrouter": "sk-or-v1-realkey"})
	a := newOpenRouterAdapter(desc, creds)
	a.SetHTTPClient(srv.Client())

	result, err := a.Query(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "q"}})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}

	if result.Content != "via free tier" {
		t.Errorf("content = %q", result.Content)
	}
	if result.Model != "meta-llama/llama-3.1-8b-instruct:free" {
		t.Errorf("result.Model = %q", result.Model)
	}
	if len(models) != 2 {
		t.Errorf("tried models %v, want both variants", models)
	}
}

func TestOpenRouterSendsAttributionHeaders(t *testing.T) {
	t.Setenv("OPENROUTER_MODEL", "")

	var referer, title string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referer = r.Header.Get("HTTP-Referer")
		title = r.Header.Get("X-Title")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "ok"}},
			},
		})
	}))
	defer srv.Close()

	desc := testDescriptor("openrouter", srv.URL)
	creds := NewCredentials(map[string]string{"openrouter": "sk-or-v1-realkey"})
	a := newOpenRouterAdapter(desc, creds)
	a.SetHTTPClient(srv.Client())

	if _, err := a.Query(context.Background(), nil); err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if referer == "" || title == "" {
		t.Errorf("attribution headers missing: referer=%q title=%q", referer, title)
	}
}
