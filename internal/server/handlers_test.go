package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/llm-council/internal/council"
	"github.com/tjfontaine/llm-council/internal/provider"
	"github.com/tjfontaine/llm-council/internal/storage"
	"github.com/tjfontaine/llm-council/internal/storage/memory"
)

// newTestAPI wires the full handler stack over the in-memory store and
// the real registry. No provider has credentials, so every adapter
// short-circuits without touching the network.
func newTestAPI(t *testing.T) (*memory.Store, *chi.Mux) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	creds := provider.NewCredentials(nil)
	registry := provider.NewRegistry(creds)

	runner := council.NewRunner(
		council.New(registry, logger),
		council.NewCancelRegistry(),
		nil, nil, logger,
	)

	defaults := storage.CouncilSettings{
		Chairman:      "sambanova",
		Experts:       []string{"groq", "google"},
		TitleProvider: "groq",
	}

	h := NewHandler(store, runner, registry, creds, defaults, NewRateLimiter(1000), logger)
	r := chi.NewRouter()
	h.Routes(r)
	return store, r
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	_, router := newTestAPI(t)

	w := doJSON(t, router, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode[map[string]string](t, w)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestConversationCRUD(t *testing.T) {
	_, router := newTestAPI(t)

	w := doJSON(t, router, http.MethodPost, "/api/conversations", `{"title":"My Chat"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	created := decode[storage.Conversation](t, w)
	if created.ID == "" || created.Title != "My Chat" {
		t.Errorf("created = %+v", created)
	}

	w = doJSON(t, router, http.MethodGet, "/api/conversations", "")
	list := decode[[]storage.Conversation](t, w)
	if len(list) != 1 {
		t.Errorf("list = %+v", list)
	}

	w = doJSON(t, router, http.MethodGet, "/api/conversations/"+created.ID, "")
	if w.Code != http.StatusOK {
		t.Errorf("get status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPut, "/api/conversations/"+created.ID, `{"title":"Renamed"}`)
	if w.Code != http.StatusOK {
		t.Errorf("rename status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodDelete, "/api/conversations/"+created.ID, "")
	if w.Code != http.StatusOK {
		t.Errorf("delete status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/conversations/"+created.ID, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", w.Code)
	}
}

func TestConversationCreateDefaultsTitle(t *testing.T) {
	_, router := newTestAPI(t)

	w := doJSON(t, router, http.MethodPost, "/api/conversations", "")
	created := decode[storage.Conversation](t, w)
	if created.Title != "New Conversation" {
		t.Errorf("title = %q", created.Title)
	}
}

func TestMessageValidation(t *testing.T) {
	_, router := newTestAPI(t)

	w := doJSON(t, router, http.MethodPost, "/api/conversations", "")
	created := decode[storage.Conversation](t, w)

	w = doJSON(t, router, http.MethodPost, "/api/conversations/"+created.ID+"/message", `{"content":"   "}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank content status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/api/conversations/ghost/message", `{"content":"hi"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing conversation status = %d", w.Code)
	}
}

func TestMessageAllProvidersDown(t *testing.T) {
	store, router := newTestAPI(t)

	w := doJSON(t, router, http.MethodPost, "/api/conversations", "")
	created := decode[storage.Conversation](t, w)

	// No credentials anywhere, so stage 1 comes back empty.
	w = doJSON(t, router, http.MethodPost, "/api/conversations/"+created.ID+"/message", `{"content":"hello"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	// The user message is persisted even though the run failed.
	conv, err := store.GetConversation(context.Background(), created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(conv.Messages) != 1 || conv.Messages[0].Content != "hello" {
		t.Errorf("messages = %+v", conv.Messages)
	}
}

func TestMessageStreamEmitsEvents(t *testing.T) {
	_, router := newTestAPI(t)

	w := doJSON(t, router, http.MethodPost, "/api/conversations", "")
	created := decode[storage.Conversation](t, w)

	w = doJSON(t, router, http.MethodPost, "/api/conversations/"+created.ID+"/message/stream", `{"content":"hello"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	body := w.Body.String()
	if !strings.Contains(body, `"type":"stage1_start"`) {
		t.Errorf("missing stage1_start event:\n%s", body)
	}
	if !strings.Contains(body, `"type":"error"`) {
		t.Errorf("missing terminal error event:\n%s", body)
	}
	for _, line := range strings.Split(strings.TrimSpace(body), "\n\n") {
		if !strings.HasPrefix(line, "data: ") {
			t.Errorf("frame without data prefix: %q", line)
		}
	}
}

func TestCancelWithoutActiveRun(t *testing.T) {
	_, router := newTestAPI(t)

	w := doJSON(t, router, http.MethodPost, "/api/conversations/some-id/cancel", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

func TestSettingsDefaults(t *testing.T) {
	_, router := newTestAPI(t)

	w := doJSON(t, router, http.MethodGet, "/api/settings", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got := decode[settingsResponse](t, w)

	if got.Chairman != "sambanova" || len(got.Experts) != 2 {
		t.Errorf("settings = %+v", got)
	}
	if len(got.Providers) != 7 {
		t.Errorf("providers = %d, want 7", len(got.Providers))
	}
	for _, p := range got.Providers {
		if p.HasKey {
			t.Errorf("provider %s claims a key with none configured", p.ID)
		}
	}
}

func TestSettingsUpdate(t *testing.T) {
	_, router := newTestAPI(t)

	body := `{
		"chairman_model": "google",
		"council_models": ["groq"],
		"api_keys": {"groq": "gsk_live_new_key_value"}
	}`
	w := doJSON(t, router, http.MethodPut, "/api/settings", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	got := decode[settingsResponse](t, w)

	if got.Chairman != "google" || len(got.Experts) != 1 || got.Experts[0] != "groq" {
		t.Errorf("settings = %+v", got)
	}
	for _, p := range got.Providers {
		if p.ID == "groq" {
			if !p.HasKey || p.APIKey != "gsk_live***" {
				t.Errorf("groq = %+v", p)
			}
		}
	}
}

func TestSettingsRejectsUnknownProvider(t *testing.T) {
	_, router := newTestAPI(t)

	w := doJSON(t, router, http.MethodPut, "/api/settings", `{"chairman_model":"openai"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPut, "/api/settings", `{"api_keys":{"openai":"sk-123"}}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestSettingsIgnoresMaskedKeys(t *testing.T) {
	_, router := newTestAPI(t)

	w := doJSON(t, router, http.MethodPut, "/api/settings", `{"api_keys":{"mistral":"abcd1234***"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got := decode[settingsResponse](t, w)
	for _, p := range got.Providers {
		if p.ID == "mistral" && p.HasKey {
			t.Error("masked round-trip value was stored as a key")
		}
	}
}

func TestSettingsEmptyExpertsSelectsSimpleMode(t *testing.T) {
	_, router := newTestAPI(t)

	w := doJSON(t, router, http.MethodPut, "/api/settings", `{"council_models":[]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	got := decode[settingsResponse](t, w)
	if len(got.Experts) != 0 {
		t.Errorf("experts = %v, want empty", got.Experts)
	}
}

func TestAnalyticsEndpoints(t *testing.T) {
	store, router := newTestAPI(t)

	if err := store.RecordAnalytics(context.Background(), &storage.AnalyticsEvent{
		ConversationID: "c", Stage: "stage1", Provider: "groq", DurationMS: 50, Tokens: 10, Success: true,
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordAnalytics(context.Background(), &storage.AnalyticsEvent{
		ConversationID: "c", Stage: "stage1", Provider: "google", DurationMS: 50, Success: false, Error: "no response",
	}); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, router, http.MethodGet, "/api/analytics?days=7", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	summary := decode[storage.AnalyticsSummary](t, w)
	if summary.TotalRequests != 2 || summary.TotalTokens != 10 {
		t.Errorf("summary = %+v", summary)
	}

	w = doJSON(t, router, http.MethodGet, "/api/analytics/errors", "")
	failures := decode[[]storage.AnalyticsEvent](t, w)
	if len(failures) != 1 || failures[0].Provider != "google" {
		t.Errorf("failures = %+v", failures)
	}
}
