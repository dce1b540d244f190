// Package storage defines the persistence contract for conversations,
// deliberation turns, analytics, and runtime settings.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/tjfontaine/llm-council/internal/domain"
)

// ErrNotFound wraps lookups of ids that do not exist.
var ErrNotFound = errors.New("not found")

// Conversation is one chat thread. Messages is populated by
// GetConversation; ListConversations fills MessageCount instead.
type Conversation struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	MessageCount int             `json:"message_count,omitempty"`
	Messages     []StoredMessage `json:"messages,omitempty"`
}

// StoredMessage is one persisted turn. Assistant messages carry the full
// deliberation outcome; user messages leave Turn nil.
type StoredMessage struct {
	ID        string          `json:"id"`
	Role      domain.Role     `json:"role"`
	Content   string          `json:"content"`
	Turn      *domain.Outcome `json:"turn,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListOptions pages conversation listings, newest activity first.
type ListOptions struct {
	Limit  int
	Offset int
}

// AnalyticsEvent is one per-provider observation persisted from a run.
type AnalyticsEvent struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Stage          string    `json:"stage"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
	Tokens         int       `json:"tokens"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ProviderStat aggregates a provider's events in a window.
type ProviderStat struct {
	Provider      string  `json:"provider"`
	Requests      int     `json:"requests"`
	Failures      int     `json:"failures"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	TotalTokens   int     `json:"total_tokens"`
}

// DailyStat aggregates events by calendar day (UTC).
type DailyStat struct {
	Day      string `json:"day"`
	Requests int    `json:"requests"`
	Tokens   int    `json:"tokens"`
}

// StageStat aggregates events by pipeline stage.
type StageStat struct {
	Stage         string  `json:"stage"`
	Requests      int     `json:"requests"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// AnalyticsSummary is the dashboard view over a window of events.
type AnalyticsSummary struct {
	TotalRequests int            `json:"total_requests"`
	TotalTokens   int            `json:"total_tokens"`
	Providers     []ProviderStat `json:"providers"`
	Daily         []DailyStat    `json:"daily"`
	Stages        []StageStat    `json:"stages"`
}

// CouncilSettings is the runtime-mutable council membership. A nil value
// from GetSettings means nothing has been saved and config defaults
// apply. API keys are held by the credential store, not here.
type CouncilSettings struct {
	Chairman      string   `json:"chairman_model"`
	Experts       []string `json:"council_models"`
	TitleProvider string   `json:"title_model,omitempty"`
}

// Store persists everything the council server needs.
type Store interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, opts ListOptions) ([]*Conversation, error)
	RenameConversation(ctx context.Context, id, title string) error
	DeleteConversation(ctx context.Context, id string) error
	AddMessage(ctx context.Context, conversationID string, msg *StoredMessage) error

	RecordAnalytics(ctx context.Context, event *AnalyticsEvent) error
	AnalyticsSummary(ctx context.Context, since time.Time) (*AnalyticsSummary, error)
	RecentErrors(ctx context.Context, limit int) ([]AnalyticsEvent, error)

	GetSettings(ctx context.Context) (*CouncilSettings, error)
	SaveSettings(ctx context.Context, settings *CouncilSettings) error

	Close() error
}
