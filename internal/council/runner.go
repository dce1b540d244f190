package council

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/llm-council/internal/domain"
)

var tracer = otel.Tracer("github.com/tjfontaine/llm-council/internal/council")

// ErrCancelled is returned by Run when the user cancelled the
// deliberation between stages. A cancelled event has already been
// emitted; nothing from the run should be persisted.
var ErrCancelled = errors.New("deliberation cancelled")

// ErrAllModelsFailed is returned when stage 1 produced no responses at
// all, so there is nothing to rank or synthesize.
var ErrAllModelsFailed = errors.New("all council models failed")

const cancelledText = "Deliberation cancelled by user."

// AnalyticsEvent is one per-provider observation from a run. Recording
// is strictly best effort; a broken recorder never fails a run.
type AnalyticsEvent struct {
	ConversationID string
	Stage          string
	Provider       string
	Model          string
	DurationMS     int64
	Tokens         int
	Success        bool
	Error          string
}

// Recorder persists analytics events.
type Recorder interface {
	Record(ctx context.Context, event AnalyticsEvent)
}

// TokenEstimator approximates the token count of a model response for
// analytics. Estimates only; provider-reported usage is not collected.
type TokenEstimator interface {
	Estimate(text string) int
}

// RunRequest carries everything one deliberation needs.
type RunRequest struct {
	ConversationID string
	Question       string
	Snapshot       Snapshot

	// GenerateTitle asks for a conversation title to be produced
	// concurrently with the pipeline and emitted before completion.
	// Set on the first message of a conversation.
	GenerateTitle bool
}

// RunResult is the settled deliberation plus the generated title, if one
// was requested.
type RunResult struct {
	Outcome domain.Outcome
	Title   string
}

// Runner sequences the deliberation stages for one conversation turn,
// emitting progress events and honoring cancellation at stage
// boundaries. In-flight provider calls are never interrupted; a cancel
// takes effect before the next stage starts.
type Runner struct {
	council   *Council
	cancels   *CancelRegistry
	recorder  Recorder
	estimator TokenEstimator
	logger    *slog.Logger
}

// NewRunner creates a runner. recorder and estimator may be nil, which
// disables analytics.
func NewRunner(council *Council, cancels *CancelRegistry, recorder Recorder, estimator TokenEstimator, logger *slog.Logger) *Runner {
	return &Runner{
		council:   council,
		cancels:   cancels,
		recorder:  recorder,
		estimator: estimator,
		logger:    logger,
	}
}

// Cancel flags the active run for a conversation, if any.
func (r *Runner) Cancel(conversationID string) bool {
	return r.cancels.Cancel(conversationID)
}

// Active reports whether a run is in flight for the conversation.
func (r *Runner) Active(conversationID string) bool {
	return r.cancels.Active(conversationID)
}

// Run executes one deliberation end to end. Events are emitted on emit
// as stages settle; the final event is complete, cancelled, or error.
// On ErrCancelled and ErrAllModelsFailed the returned result is nil.
func (r *Runner) Run(ctx context.Context, req RunRequest, emit Emitter) (*RunResult, error) {
	if emit == nil {
		emit = discardEmitter{}
	}

	ctx, span := tracer.Start(ctx, "council.run", trace.WithAttributes(
		attribute.String("conversation.id", req.ConversationID),
		attribute.Bool("council.simple_mode", req.Snapshot.SimpleMode()),
	))
	defer span.End()

	flag := r.cancels.Register(req.ConversationID)
	defer r.cancels.Deregister(req.ConversationID)

	var titleCh chan string
	if req.GenerateTitle {
		titleCh = make(chan string, 1)
		go func() {
			titleCh <- r.council.GenerateTitle(ctx, req.Snapshot, req.Question)
		}()
	}

	snap := req.Snapshot
	result := &RunResult{}

	if snap.SimpleMode() {
		emit.Emit(Event{Type: EventSimpleModeStart})
		stage3 := r.timedStage3(ctx, "simple", req, func(ctx context.Context) domain.Stage3Result {
			return r.council.SimpleAnswer(ctx, snap, req.Question)
		})
		emit.Emit(Event{Type: EventSimpleModeComplete, Data: stage3})
		result.Outcome = domain.Outcome{
			Stage3:   stage3,
			Metadata: domain.OutcomeMetadata{Mode: domain.ModeSimple},
		}
		r.finish(emit, req, titleCh, result)
		return result, nil
	}

	if flag.Load() {
		emit.Emit(Event{Type: EventCancelled, Message: cancelledText})
		return nil, ErrCancelled
	}

	models := make([]string, 0, len(snap.Experts))
	for _, id := range snap.Experts {
		models = append(models, r.council.registry.DisplayName(id))
	}
	emit.Emit(Event{Type: EventStage1Start, Models: models})

	stage1Started := time.Now()
	stage1 := r.council.Stage1(ctx, snap, req.Question)
	r.recordStage(ctx, req.ConversationID, "stage1", snap.Experts, stage1Results(stage1), time.Since(stage1Started))

	if len(stage1) == 0 {
		emit.Emit(Event{Type: EventError, Message: totalFailureText})
		return nil, ErrAllModelsFailed
	}
	emit.Emit(Event{Type: EventStage1Complete, Data: stage1})

	if flag.Load() {
		emit.Emit(Event{Type: EventCancelled, Message: cancelledText})
		return nil, ErrCancelled
	}

	emit.Emit(Event{Type: EventStage2Start})
	stage2Started := time.Now()
	stage2, labelToModel := r.council.Stage2(ctx, snap, req.Question, stage1)
	r.recordStage(ctx, req.ConversationID, "stage2", snap.Experts, stage2Results(stage2), time.Since(stage2Started))

	metadata := domain.OutcomeMetadata{
		LabelToModel:      labelToModel,
		AggregateRankings: AggregateRankings(stage2, labelToModel),
		Mode:              domain.ModeFull,
	}
	emit.Emit(Event{Type: EventStage2Complete, Data: stage2, Metadata: &metadata})

	if flag.Load() {
		emit.Emit(Event{Type: EventCancelled, Message: cancelledText})
		return nil, ErrCancelled
	}

	emit.Emit(Event{Type: EventStage3Start})
	stage3 := r.timedStage3(ctx, "stage3", req, func(ctx context.Context) domain.Stage3Result {
		return r.council.Stage3(ctx, snap, req.Question, stage1, stage2)
	})
	emit.Emit(Event{Type: EventStage3Complete, Data: stage3})

	result.Outcome = domain.Outcome{
		Stage1:   stage1,
		Stage2:   stage2,
		Stage3:   stage3,
		Metadata: metadata,
	}
	r.finish(emit, req, titleCh, result)
	return result, nil
}

// finish joins the title task, if any, and closes the stream.
func (r *Runner) finish(emit Emitter, req RunRequest, titleCh chan string, result *RunResult) {
	if titleCh != nil {
		result.Title = <-titleCh
		emit.Emit(Event{Type: EventTitleComplete, Title: result.Title})
	}
	emit.Emit(Event{Type: EventComplete})
}

// timedStage3 wraps a chairman call with a span and analytics.
func (r *Runner) timedStage3(ctx context.Context, stage string, req RunRequest, fn func(context.Context) domain.Stage3Result) domain.Stage3Result {
	ctx, span := tracer.Start(ctx, "council."+stage)
	defer span.End()

	started := time.Now()
	result := fn(ctx)
	if r.recorder != nil {
		r.recorder.Record(ctx, AnalyticsEvent{
			ConversationID: req.ConversationID,
			Stage:          stage,
			Provider:       req.Snapshot.Chairman,
			Model:          result.DisplayName,
			DurationMS:     time.Since(started).Milliseconds(),
			Tokens:         r.estimate(result.Response),
			Success:        result.Response != synthesisFailedText,
		})
	}
	return result
}

// stageResult is the per-provider view recordStage needs, independent of
// which stage produced it.
type stageResult struct {
	provider string
	model    string
	text     string
}

func stage1Results(results []domain.Stage1Result) []stageResult {
	out := make([]stageResult, 0, len(results))
	for _, res := range results {
		seat := res.Provider
		if res.IsFailover {
			seat = res.OriginalProvider
		}
		out = append(out, stageResult{provider: seat, model: res.DisplayName, text: res.Response})
	}
	return out
}

func stage2Results(results []domain.Stage2Result) []stageResult {
	out := make([]stageResult, 0, len(results))
	for _, res := range results {
		seat := res.Provider
		if res.IsFailover {
			seat = res.OriginalProvider
		}
		out = append(out, stageResult{provider: seat, model: res.DisplayName, text: res.Ranking})
	}
	return out
}

// recordStage emits one analytics event per requested expert: a success
// with the response token estimate when the seat settled, a failure when
// it stayed empty. Stage duration is shared across the batch because the
// fan-out settles as a unit.
func (r *Runner) recordStage(ctx context.Context, conversationID, stage string, requested []string, settled []stageResult, elapsed time.Duration) {
	if r.recorder == nil {
		return
	}

	byProvider := make(map[string]stageResult, len(settled))
	for _, res := range settled {
		byProvider[res.provider] = res
	}

	durationMS := elapsed.Milliseconds()
	for _, id := range requested {
		event := AnalyticsEvent{
			ConversationID: conversationID,
			Stage:          stage,
			Provider:       id,
			DurationMS:     durationMS,
		}
		if res, ok := byProvider[id]; ok {
			event.Model = res.model
			event.Tokens = r.estimate(res.text)
			event.Success = true
		} else {
			event.Error = "no response"
		}
		r.recorder.Record(ctx, event)
	}
}

func (r *Runner) estimate(text string) int {
	if r.estimator == nil {
		return 0
	}
	return r.estimator.Estimate(text)
}
