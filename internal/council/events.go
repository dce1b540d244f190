package council

import "github.com/tjfontaine/llm-council/internal/domain"

// Event types emitted on the deliberation stream, in the order a normal
// run produces them. A run ends with exactly one of EventComplete,
// EventCancelled, or EventError.
const (
	EventStage1Start        = "stage1_start"
	EventStage1Complete     = "stage1_complete"
	EventStage2Start        = "stage2_start"
	EventStage2Complete     = "stage2_complete"
	EventStage3Start        = "stage3_start"
	EventStage3Complete     = "stage3_complete"
	EventTitleComplete      = "title_complete"
	EventSimpleModeStart    = "simple_mode_start"
	EventSimpleModeComplete = "simple_mode_complete"
	EventComplete           = "complete"
	EventCancelled          = "cancelled"
	EventError              = "error"
)

// Event is one server-sent message on the deliberation stream. Which
// optional fields are set depends on Type.
type Event struct {
	Type     string                  `json:"type"`
	Models   []string                `json:"models,omitempty"`
	Data     any                     `json:"data,omitempty"`
	Metadata *domain.OutcomeMetadata `json:"metadata,omitempty"`
	Title    string                  `json:"title,omitempty"`
	Message  string                  `json:"message,omitempty"`
}

// Emitter receives pipeline events as they happen. Emit must tolerate
// being called from the pipeline goroutine; a slow or broken sink must
// not block the run indefinitely.
type Emitter interface {
	Emit(event Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Event)

// Emit calls f(event).
func (f EmitterFunc) Emit(event Event) { f(event) }

// discardEmitter drops every event; used when no stream is attached.
type discardEmitter struct{}

func (discardEmitter) Emit(Event) {}
