package council

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tjfontaine/llm-council/internal/domain"
	"github.com/tjfontaine/llm-council/internal/provider"
)

// collectEmitter accumulates events for assertions.
type collectEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (e *collectEmitter) Emit(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *collectEmitter) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Type
	}
	return out
}

// collectRecorder accumulates analytics events.
type collectRecorder struct {
	mu     sync.Mutex
	events []AnalyticsEvent
}

func (r *collectRecorder) Record(_ context.Context, event AnalyticsEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func newTestRunner(dir Directory, recorder Recorder) *Runner {
	return NewRunner(New(dir, testLogger()), NewCancelRegistry(), recorder, nil, testLogger())
}

func assertEventTypes(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event types = %v, want %v", got, want)
		}
	}
}

func TestRunFullPipeline(t *testing.T) {
	answer := "Some analysis.\n\nFINAL RANKING:\n1. Response B\n2. Response A"
	dir := &fakeDirectory{
		adapters: map[string]provider.Adapter{
			"alpha": okAdapter("alpha", answer),
			"beta":  okAdapter("beta", answer),
			"chair": okAdapter("chair", "the synthesis"),
		},
		names: map[string]string{"alpha": "Alpha AI", "beta": "Beta AI", "chair": "Chair AI"},
	}
	recorder := &collectRecorder{}
	runner := newTestRunner(dir, recorder)

	emitter := &collectEmitter{}
	result, err := runner.Run(context.Background(), RunRequest{
		ConversationID: "conv-1",
		Question:       "q",
		Snapshot:       Snapshot{Chairman: "chair", Experts: []string{"alpha", "beta"}},
	}, emitter)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	assertEventTypes(t, emitter.types(), []string{
		EventStage1Start, EventStage1Complete,
		EventStage2Start, EventStage2Complete,
		EventStage3Start, EventStage3Complete,
		EventComplete,
	})

	if emitter.events[0].Models[0] != "Alpha AI" || emitter.events[0].Models[1] != "Beta AI" {
		t.Errorf("stage1_start models = %v", emitter.events[0].Models)
	}

	outcome := result.Outcome
	if len(outcome.Stage1) != 2 || len(outcome.Stage2) != 2 {
		t.Fatalf("stage sizes = %d/%d", len(outcome.Stage1), len(outcome.Stage2))
	}
	if outcome.Stage3.Response != "the synthesis" {
		t.Errorf("stage3 = %q", outcome.Stage3.Response)
	}
	if outcome.Metadata.Mode != domain.ModeFull {
		t.Errorf("mode = %q", outcome.Metadata.Mode)
	}
	// Both raters put Response B (Beta AI) first.
	if outcome.Metadata.AggregateRankings[0].Model != "Beta AI" {
		t.Errorf("aggregate = %+v", outcome.Metadata.AggregateRankings)
	}

	// stage1 + stage2 per expert, plus one stage3 event.
	if len(recorder.events) != 5 {
		t.Errorf("recorded %d analytics events, want 5", len(recorder.events))
	}

	if runner.Active("conv-1") {
		t.Error("run still registered after completion")
	}
}

func TestRunAllModelsFailed(t *testing.T) {
	dir := &fakeDirectory{adapters: map[string]provider.Adapter{
		"alpha": failAdapter(errors.New("down")),
	}}
	recorder := &collectRecorder{}
	runner := newTestRunner(dir, recorder)

	emitter := &collectEmitter{}
	_, err := runner.Run(context.Background(), RunRequest{
		ConversationID: "conv-2",
		Question:       "q",
		Snapshot:       Snapshot{Chairman: "chair", Experts: []string{"alpha"}},
	}, emitter)

	if !errors.Is(err, ErrAllModelsFailed) {
		t.Fatalf("err = %v, want ErrAllModelsFailed", err)
	}
	assertEventTypes(t, emitter.types(), []string{EventStage1Start, EventError})
	if emitter.events[1].Message != "All models failed to respond. Please try again." {
		t.Errorf("error message = %q", emitter.events[1].Message)
	}

	// The failure itself is still recorded.
	if len(recorder.events) != 1 || recorder.events[0].Success {
		t.Errorf("analytics = %+v", recorder.events)
	}
	if recorder.events[0].Error != "no response" {
		t.Errorf("analytics error = %q", recorder.events[0].Error)
	}
}

func TestRunCancelledBetweenStages(t *testing.T) {
	var runner *Runner
	cancelDuringStage1 := provider.AdapterFunc(func(ctx context.Context, messages []domain.Message) (*domain.QueryResult, error) {
		runner.Cancel("conv-3")
		return &domain.QueryResult{Content: "answer"}, nil
	})
	dir := &fakeDirectory{adapters: map[string]provider.Adapter{"alpha": cancelDuringStage1}}
	runner = newTestRunner(dir, nil)

	emitter := &collectEmitter{}
	_, err := runner.Run(context.Background(), RunRequest{
		ConversationID: "conv-3",
		Question:       "q",
		Snapshot:       Snapshot{Chairman: "chair", Experts: []string{"alpha"}},
	}, emitter)

	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	// Stage 1 finishes (in-flight work is never interrupted), then the
	// flag stops the run before stage 2.
	assertEventTypes(t, emitter.types(), []string{EventStage1Start, EventStage1Complete, EventCancelled})

	if runner.Active("conv-3") {
		t.Error("cancelled run still registered")
	}
	if runner.Cancel("conv-3") {
		t.Error("Cancel should report false once the run is deregistered")
	}
}

func TestRunSimpleMode(t *testing.T) {
	dir := &fakeDirectory{adapters: map[string]provider.Adapter{
		"chair": okAdapter("chair", "direct answer"),
	}}
	runner := newTestRunner(dir, nil)

	emitter := &collectEmitter{}
	result, err := runner.Run(context.Background(), RunRequest{
		ConversationID: "conv-4",
		Question:       "q",
		Snapshot:       Snapshot{Chairman: "chair"},
	}, emitter)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	assertEventTypes(t, emitter.types(), []string{EventSimpleModeStart, EventSimpleModeComplete, EventComplete})
	if result.Outcome.Stage3.Response != "direct answer" {
		t.Errorf("stage3 = %q", result.Outcome.Stage3.Response)
	}
	if result.Outcome.Metadata.Mode != domain.ModeSimple {
		t.Errorf("mode = %q", result.Outcome.Metadata.Mode)
	}
	if len(result.Outcome.Stage1) != 0 || len(result.Outcome.Stage2) != 0 {
		t.Errorf("simple mode produced stage1/stage2 data")
	}
}

func TestRunGeneratesTitle(t *testing.T) {
	answer := "FINAL RANKING:\n1. Response A"
	dir := &fakeDirectory{adapters: map[string]provider.Adapter{
		"alpha": okAdapter("alpha", answer),
		"chair": okAdapter("chair", "synthesis"),
		"title": okAdapter("title", "Concise Title"),
	}}
	runner := newTestRunner(dir, nil)

	emitter := &collectEmitter{}
	result, err := runner.Run(context.Background(), RunRequest{
		ConversationID: "conv-5",
		Question:       "q",
		Snapshot:       Snapshot{Chairman: "chair", Experts: []string{"alpha"}, TitleProvider: "title"},
		GenerateTitle:  true,
	}, emitter)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if result.Title != "Concise Title" {
		t.Errorf("title = %q", result.Title)
	}

	types := emitter.types()
	if types[len(types)-2] != EventTitleComplete || types[len(types)-1] != EventComplete {
		t.Errorf("final events = %v, want title_complete then complete", types[len(types)-2:])
	}
	for _, ev := range emitter.events {
		if ev.Type == EventTitleComplete && ev.Title != "Concise Title" {
			t.Errorf("title event = %+v", ev)
		}
	}
}
