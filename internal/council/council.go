package council

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/tjfontaine/llm-council/internal/domain"
)

// synthesisFailedText is the placeholder answer when the chairman query
// fails; the run still completes so the caller keeps stage 1/2 data.
const synthesisFailedText = "Error: Unable to generate final synthesis."

// totalFailureText is the terminal answer when no council member
// produced a stage-1 response.
const totalFailureText = "All models failed to respond. Please try again."

const titleTimeout = 30 * time.Second

// Snapshot is the council membership resolved once at run start. Runs
// never observe settings changes made while they are in flight.
type Snapshot struct {
	Chairman      string
	Experts       []string
	Failovers     []string
	TitleProvider string
}

// SimpleMode reports whether the snapshot selects the chairman-only
// bypass (no experts seated, so nothing to rank).
func (s Snapshot) SimpleMode() bool { return len(s.Experts) == 0 }

// Council runs the three-stage deliberation over a provider directory.
type Council struct {
	registry Directory
	coord    *Coordinator
	logger   *slog.Logger
}

// New creates a council over the given directory.
func New(registry Directory, logger *slog.Logger) *Council {
	return &Council{
		registry: registry,
		coord:    NewCoordinator(registry, logger),
		logger:   logger,
	}
}

// Stage1 collects individual answers from every seated expert. Providers
// that failed with no failover cover are dropped, not recorded.
func (c *Council) Stage1(ctx context.Context, snap Snapshot, question string) []domain.Stage1Result {
	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: stage1SystemPrompt},
		{Role: domain.RoleUser, Content: question},
	}

	seats := c.coord.QueryAll(ctx, snap.Experts, messages, snap.Failovers)

	var results []domain.Stage1Result
	for _, id := range snap.Experts {
		seat := seats[id]
		if seat.Empty() {
			continue
		}
		if seat.Failover != nil {
			env := seat.Failover
			results = append(results, domain.Stage1Result{
				Provider:            env.FailoverModel,
				DisplayName:         c.registry.DisplayName(env.FailoverModel),
				RoleLabel:           c.registry.Role(env.FailoverModel),
				Response:            env.Content,
				IsFailover:          true,
				OriginalProvider:    env.OriginalProvider,
				OriginalDisplayName: env.OriginalDisplayName,
			})
			continue
		}
		results = append(results, domain.Stage1Result{
			Provider:    id,
			DisplayName: c.registry.DisplayName(id),
			RoleLabel:   c.registry.Role(id),
			Response:    seat.Result.Content,
		})
	}
	return results
}

// Stage2 has every seated expert rank the anonymized, labeled stage-1
// answers. It returns the per-rater results and the label-to-model map
// used for aggregation and UI display. Labeling and anonymization both
// happen before any ranking prompt is dispatched.
func (c *Council) Stage2(ctx context.Context, snap Snapshot, question string, stage1 []domain.Stage1Result) ([]domain.Stage2Result, map[string]string) {
	labelToModel := make(map[string]string, len(stage1))
	knownNames := make([]string, 0, len(stage1)*2)
	for i, result := range stage1 {
		labelToModel[ResponseLabel(i)] = result.DisplayName
		knownNames = append(knownNames, result.DisplayName, result.Provider)
	}

	labeled := make([]labeledResponse, 0, len(stage1))
	for i, result := range stage1 {
		labeled = append(labeled, labeledResponse{
			Label: ResponseLabel(i),
			Text:  Anonymize(result.Response, knownNames),
		})
	}

	prompt, err := buildRankingPrompt(question, labeled)
	if err != nil {
		c.logger.Error("ranking prompt build failed", slog.String("error", err.Error()))
		return nil, labelToModel
	}

	messages := []domain.Message{{Role: domain.RoleUser, Content: prompt}}
	seats := c.coord.QueryAll(ctx, snap.Experts, messages, snap.Failovers)

	var results []domain.Stage2Result
	for _, id := range snap.Experts {
		seat := seats[id]
		if seat.Empty() {
			continue
		}
		text := seat.Content()
		result := domain.Stage2Result{
			Provider:      id,
			DisplayName:   c.registry.DisplayName(id),
			RoleLabel:     c.registry.Role(id),
			Ranking:       text,
			ParsedRanking: ParseRanking(text),
		}
		if seat.Failover != nil {
			env := seat.Failover
			result.Provider = env.FailoverModel
			result.DisplayName = c.registry.DisplayName(env.FailoverModel)
			result.RoleLabel = c.registry.Role(env.FailoverModel)
			result.IsFailover = true
			result.OriginalProvider = env.OriginalProvider
			result.OriginalDisplayName = env.OriginalDisplayName
		}
		results = append(results, result)
	}
	return results, labelToModel
}

// Stage3 asks the chairman for the final synthesis. It always runs when
// stage 1 produced anything, even with no usable rankings; a failed
// chairman query yields a placeholder answer rather than an error so the
// caller still receives the earlier stages.
func (c *Council) Stage3(ctx context.Context, snap Snapshot, question string, stage1 []domain.Stage1Result, stage2 []domain.Stage2Result) domain.Stage3Result {
	result := domain.Stage3Result{
		Provider:    snap.Chairman,
		DisplayName: c.registry.DisplayName(snap.Chairman),
		RoleLabel:   c.registry.Role(snap.Chairman),
		Response:    synthesisFailedText,
	}

	prompt, err := buildChairmanPrompt(result.DisplayName, question, stage1, stage2)
	if err != nil {
		c.logger.Error("chairman prompt build failed", slog.String("error", err.Error()))
		return result
	}

	answer := c.coord.QueryOne(ctx, snap.Chairman, []domain.Message{{Role: domain.RoleUser, Content: prompt}})
	if answer != nil {
		result.Response = answer.Content
	}
	return result
}

// SimpleAnswer is the chairman-only bypass used when no experts are
// seated: one direct answer, no ranking, no synthesis context.
func (c *Council) SimpleAnswer(ctx context.Context, snap Snapshot, question string) domain.Stage3Result {
	result := domain.Stage3Result{
		Provider:    snap.Chairman,
		DisplayName: c.registry.DisplayName(snap.Chairman),
		RoleLabel:   c.registry.Role(snap.Chairman),
		Response:    "Error: no response received. Please try again.",
	}

	answer := c.coord.QueryOne(ctx, snap.Chairman, []domain.Message{{Role: domain.RoleUser, Content: question}})
	if answer != nil {
		result.Response = answer.Content
	}
	return result
}

// GenerateTitle produces a 3-5 word conversation title from the first
// user message, using the fastest configured provider so it can ride
// alongside the main pipeline without adding latency.
func (c *Council) GenerateTitle(ctx context.Context, snap Snapshot, question string) string {
	const fallback = "New Conversation"

	prompt, err := buildTitlePrompt(question)
	if err != nil {
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, titleTimeout)
	defer cancel()

	answer := c.coord.QueryOne(ctx, snap.TitleProvider, []domain.Message{{Role: domain.RoleUser, Content: prompt}})
	if answer == nil {
		return fallback
	}

	title := strings.Trim(strings.TrimSpace(answer.Content), `"'`)
	if title == "" {
		return fallback
	}
	if len(title) > 50 {
		title = title[:47] + "..."
	}
	return title
}
