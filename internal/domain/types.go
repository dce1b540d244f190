// Package domain holds the canonical data model shared by the council
// pipeline, the storage layer, and the HTTP surface.
package domain

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a conversation sent to a provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// QueryResult is the outcome of a successful provider call. Model is the
// resolved model variant when the adapter fell back to an alternate model
// within the same provider; empty means the provider's default answered.
type QueryResult struct {
	Content  string `json:"content"`
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// FailoverEnvelope wraps a shared failover answer on behalf of a provider
// that failed outright. Only the coordinator attaches these; adapters
// never produce them.
type FailoverEnvelope struct {
	QueryResult
	IsFailover          bool   `json:"is_failover"`
	OriginalProvider    string `json:"original_provider"`
	OriginalDisplayName string `json:"original_display_name"`
	FailoverModel       string `json:"failover_model_used"`
}

// Stage1Result is one council member's answer to the user question.
type Stage1Result struct {
	Provider    string `json:"model"`
	DisplayName string `json:"display_name"`
	RoleLabel   string `json:"role"`
	Response    string `json:"response"`

	IsFailover          bool   `json:"is_failover,omitempty"`
	OriginalProvider    string `json:"original_provider,omitempty"`
	OriginalDisplayName string `json:"original_display_name,omitempty"`
}

// Stage2Result is one rater's free-text evaluation plus the labels the
// ranking parser managed to extract from it.
type Stage2Result struct {
	Provider      string   `json:"model"`
	DisplayName   string   `json:"display_name"`
	RoleLabel     string   `json:"role"`
	Ranking       string   `json:"ranking"`
	ParsedRanking []string `json:"parsed_ranking"`

	IsFailover          bool   `json:"is_failover,omitempty"`
	OriginalProvider    string `json:"original_provider,omitempty"`
	OriginalDisplayName string `json:"original_display_name,omitempty"`
}

// Stage3Result is the chairman's synthesized answer.
type Stage3Result struct {
	Provider    string `json:"model"`
	DisplayName string `json:"display_name"`
	RoleLabel   string `json:"role"`
	Response    string `json:"response"`
}

// AggregateRanking is one leaderboard row: a model's mean position across
// every rater that ranked it. Lower is better.
type AggregateRanking struct {
	Model       string  `json:"model"`
	AverageRank float64 `json:"average_rank"`
	Count       int     `json:"rankings_count"`
}

// Deliberation modes. Full is the three-stage pipeline; Simple is the
// chairman-only bypass taken when no experts are seated.
const (
	ModeFull   = "full"
	ModeSimple = "simple"
)

// OutcomeMetadata accompanies a deliberation outcome.
type OutcomeMetadata struct {
	LabelToModel      map[string]string  `json:"label_to_model,omitempty"`
	AggregateRankings []AggregateRanking `json:"aggregate_rankings,omitempty"`
	Mode              string             `json:"mode,omitempty"`
}

// Outcome is the complete result of one deliberation run. It is created
// fresh per user query and never mutated after being handed to a consumer.
type Outcome struct {
	Stage1   []Stage1Result  `json:"stage1"`
	Stage2   []Stage2Result  `json:"stage2"`
	Stage3   Stage3Result    `json:"stage3"`
	Metadata OutcomeMetadata `json:"metadata"`
}
