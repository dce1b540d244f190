package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tjfontaine/llm-council/internal/council"
	"github.com/tjfontaine/llm-council/internal/domain"
	"github.com/tjfontaine/llm-council/internal/provider"
	"github.com/tjfontaine/llm-council/internal/storage"
)

// Handler serves the council REST and streaming API.
type Handler struct {
	store    storage.Store
	runner   *council.Runner
	registry *provider.Registry
	creds    *provider.Credentials
	defaults storage.CouncilSettings
	limiter  *RateLimiter
	logger   *slog.Logger
}

// NewHandler wires the API handlers. defaults is the boot-time council
// membership used until settings are saved.
func NewHandler(store storage.Store, runner *council.Runner, registry *provider.Registry, creds *provider.Credentials, defaults storage.CouncilSettings, limiter *RateLimiter, logger *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		runner:   runner,
		registry: registry,
		creds:    creds,
		defaults: defaults,
		limiter:  limiter,
		logger:   logger,
	}
}

// Routes mounts the API under /api. Management endpoints get a request
// timeout; the message endpoints are rate limited and, for the stream,
// left unbounded so long deliberations can finish.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleHealth)
	r.Get("/health", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(TimeoutMiddleware(ManagementTimeout))

			r.Get("/health", h.handleHealth)

			r.Get("/conversations", h.handleListConversations)
			r.Post("/conversations", h.handleCreateConversation)
			r.Get("/conversations/{id}", h.handleGetConversation)
			r.Put("/conversations/{id}", h.handleRenameConversation)
			r.Delete("/conversations/{id}", h.handleDeleteConversation)
			r.Post("/conversations/{id}/cancel", h.handleCancel)

			r.Get("/analytics", h.handleAnalytics)
			r.Get("/analytics/errors", h.handleAnalyticsErrors)

			r.Get("/settings", h.handleGetSettings)
			r.Put("/settings", h.handleUpdateSettings)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.limiter.Middleware)

			r.Post("/conversations/{id}/message", h.handleMessage)
			r.Post("/conversations/{id}/message/stream", h.handleMessageStream)
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "llm-council",
	})
}

// --- conversations ---

func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	opts := storage.ListOptions{
		Limit:  queryInt(r, "limit", 100),
		Offset: queryInt(r, "offset", 0),
	}

	conversations, err := h.store.ListConversations(r.Context(), opts)
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if conversations == nil {
		conversations = []*storage.Conversation{}
	}

	writeJSON(w, http.StatusOK, conversations)
}

func (h *Handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "New Conversation"
	}

	conv := &storage.Conversation{
		ID:    uuid.New().String(),
		Title: title,
	}
	if err := h.store.CreateConversation(r.Context(), conv); err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.store.GetConversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to get conversation")
		return
	}
	if conv.Messages == nil {
		conv.Messages = []storage.StoredMessage{}
	}

	writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, "title must not be empty")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.store.RenameConversation(r.Context(), id, title); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to rename conversation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": id, "title": title})
}

func (h *Handler) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteConversation(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.runner.Cancel(id) {
		writeError(w, http.StatusNotFound, "no active deliberation for this conversation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancellation_requested"})
}

// --- messages ---

// runSetup is everything prepareRun resolves before a deliberation starts.
type runSetup struct {
	conv     *storage.Conversation
	question string
	req      council.RunRequest
}

// prepareRun validates the message request, rejects concurrent runs on
// the same conversation, persists the user message, and resolves the
// council snapshot. On failure the response has been written and nil is
// returned.
func (h *Handler) prepareRun(w http.ResponseWriter, r *http.Request) *runSetup {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil
	}
	question := strings.TrimSpace(req.Content)
	if question == "" {
		writeError(w, http.StatusBadRequest, "content must not be empty")
		return nil
	}

	conv, err := h.store.GetConversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return nil
		}
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to get conversation")
		return nil
	}

	if h.runner.Active(conv.ID) {
		writeError(w, http.StatusConflict, "a deliberation is already in progress for this conversation")
		return nil
	}

	firstMessage := len(conv.Messages) == 0

	userMsg := &storage.StoredMessage{
		ID:      uuid.New().String(),
		Role:    domain.RoleUser,
		Content: question,
	}
	if err := h.store.AddMessage(r.Context(), conv.ID, userMsg); err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to store message")
		return nil
	}

	return &runSetup{
		conv:     conv,
		question: question,
		req: council.RunRequest{
			ConversationID: conv.ID,
			Question:       question,
			Snapshot:       h.resolveSnapshot(r.Context()),
			GenerateTitle:  firstMessage,
		},
	}
}

// resolveSnapshot builds the membership for one run: saved settings when
// present, config defaults otherwise. Failover candidates are every
// registered provider not already seated, in registry order.
func (h *Handler) resolveSnapshot(ctx context.Context) council.Snapshot {
	settings, err := h.store.GetSettings(ctx)
	if err != nil {
		h.logger.Warn("failed to load settings, using defaults", slog.String("error", err.Error()))
		settings = nil
	}

	chairman := h.defaults.Chairman
	experts := h.defaults.Experts
	titleProvider := h.defaults.TitleProvider
	if settings != nil {
		chairman = settings.Chairman
		experts = settings.Experts
		if settings.TitleProvider != "" {
			titleProvider = settings.TitleProvider
		}
	}

	seated := make(map[string]bool, len(experts)+1)
	seated[chairman] = true
	for _, id := range experts {
		seated[id] = true
	}
	var failovers []string
	for _, id := range h.registry.IDs() {
		if !seated[id] {
			failovers = append(failovers, id)
		}
	}

	return council.Snapshot{
		Chairman:      chairman,
		Experts:       experts,
		Failovers:     failovers,
		TitleProvider: titleProvider,
	}
}

// persistOutcome stores the assistant turn and applies a generated title.
// Called after the run settled, possibly with a cancelled request
// context, so it detaches from cancellation.
func (h *Handler) persistOutcome(ctx context.Context, conversationID string, result *council.RunResult) (string, error) {
	ctx = context.WithoutCancel(ctx)

	msg := &storage.StoredMessage{
		ID:      uuid.New().String(),
		Role:    domain.RoleAssistant,
		Content: result.Outcome.Stage3.Response,
		Turn:    &result.Outcome,
	}
	if err := h.store.AddMessage(ctx, conversationID, msg); err != nil {
		return "", err
	}

	if result.Title != "" {
		if err := h.store.RenameConversation(ctx, conversationID, result.Title); err != nil {
			h.logger.Warn("failed to apply generated title",
				slog.String("conversation_id", conversationID),
				slog.String("error", err.Error()))
		}
	}

	return msg.ID, nil
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	setup := h.prepareRun(w, r)
	if setup == nil {
		return
	}

	result, err := h.runner.Run(r.Context(), setup.req, nil)
	switch {
	case errors.Is(err, council.ErrCancelled):
		writeError(w, http.StatusConflict, "deliberation cancelled")
		return
	case errors.Is(err, council.ErrAllModelsFailed):
		writeError(w, http.StatusBadGateway, "All models failed to respond. Please try again.")
		return
	case err != nil:
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "deliberation failed")
		return
	}

	messageID, err := h.persistOutcome(r.Context(), setup.conv.ID, result)
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to store response")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message_id": messageID,
		"title":      result.Title,
		"outcome":    result.Outcome,
	})
}

func (h *Handler) handleMessageStream(w http.ResponseWriter, r *http.Request) {
	setup := h.prepareRun(w, r)
	if setup == nil {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emitter := council.EmitterFunc(func(event council.Event) {
		data, err := json.Marshal(event)
		if err != nil {
			h.logger.Error("failed to marshal event", slog.String("error", err.Error()))
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	})

	result, err := h.runner.Run(r.Context(), setup.req, emitter)
	if err != nil {
		// The terminal cancelled/error event is already on the wire.
		return
	}

	if _, err := h.persistOutcome(r.Context(), setup.conv.ID, result); err != nil {
		h.logger.Error("failed to persist deliberation outcome",
			slog.String("conversation_id", setup.conv.ID),
			slog.String("error", err.Error()))
	}
}

// --- analytics ---

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	since := time.Now().UTC().AddDate(0, 0, -days)

	summary, err := h.store.AnalyticsSummary(r.Context(), since)
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to load analytics")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleAnalyticsErrors(w http.ResponseWriter, r *http.Request) {
	events, err := h.store.RecentErrors(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to load errors")
		return
	}
	if events == nil {
		events = []storage.AnalyticsEvent{}
	}

	writeJSON(w, http.StatusOK, events)
}

// --- settings ---

type providerInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Model       string `json:"model"`
	HasKey      bool   `json:"has_key"`
	APIKey      string `json:"api_key_masked,omitempty"`
}

type settingsResponse struct {
	Chairman      string         `json:"chairman_model"`
	Experts       []string       `json:"council_models"`
	TitleProvider string         `json:"title_model"`
	Providers     []providerInfo `json:"providers"`
}

func (h *Handler) settingsResponse(ctx context.Context) settingsResponse {
	snap := h.resolveSnapshot(ctx)

	resp := settingsResponse{
		Chairman:      snap.Chairman,
		Experts:       snap.Experts,
		TitleProvider: snap.TitleProvider,
	}
	if resp.Experts == nil {
		resp.Experts = []string{}
	}

	for _, id := range h.registry.IDs() {
		desc := h.registry.Describe(id)
		resp.Providers = append(resp.Providers, providerInfo{
			ID:          id,
			DisplayName: desc.DisplayName,
			Role:        desc.Role,
			Model:       desc.Model,
			HasKey:      h.creds.Has(id),
			APIKey:      h.creds.Masked(id),
		})
	}

	return resp
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settingsResponse(r.Context()))
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Chairman      string            `json:"chairman_model"`
		Experts       *[]string         `json:"council_models"`
		TitleProvider string            `json:"title_model"`
		APIKeys       map[string]string `json:"api_keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	current := h.resolveSnapshot(r.Context())
	settings := storage.CouncilSettings{
		Chairman:      current.Chairman,
		Experts:       current.Experts,
		TitleProvider: current.TitleProvider,
	}
	if req.Chairman != "" {
		settings.Chairman = req.Chairman
	}
	if req.Experts != nil {
		// An explicit empty list is valid: it selects simple mode.
		settings.Experts = *req.Experts
	}
	if req.TitleProvider != "" {
		settings.TitleProvider = req.TitleProvider
	}

	seats := append([]string{settings.Chairman}, settings.Experts...)
	if settings.TitleProvider != "" {
		seats = append(seats, settings.TitleProvider)
	}
	for _, id := range seats {
		if _, err := h.registry.Get(id); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown provider: %s", id))
			return
		}
	}

	for id, key := range req.APIKeys {
		if _, err := h.registry.Get(id); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown provider: %s", id))
			return
		}
		// Masked values round-tripped from GET are not real keys.
		if key == "" || strings.HasSuffix(key, "***") {
			continue
		}
		h.creds.Set(id, key)
	}

	if err := h.store.SaveSettings(r.Context(), &settings); err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	writeJSON(w, http.StatusOK, h.settingsResponse(r.Context()))
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are gone; nothing left to do but note it.
		slog.Default().Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
