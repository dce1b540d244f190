package council

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/llm-council/internal/domain"
	"github.com/tjfontaine/llm-council/internal/provider"
)

// Seat is the settled outcome for one requested provider. Exactly one of
// Result and Failover is non-nil on success; both nil means the seat is
// empty (the provider failed and no failover could cover it), which
// callers treat as absence rather than an error.
type Seat struct {
	Result   *domain.QueryResult
	Failover *domain.FailoverEnvelope
}

// Empty reports whether the seat produced no usable answer.
func (s Seat) Empty() bool { return s.Result == nil && s.Failover == nil }

// Content returns the answer text regardless of which form the seat took.
func (s Seat) Content() string {
	switch {
	case s.Result != nil:
		return s.Result.Content
	case s.Failover != nil:
		return s.Failover.Content
	default:
		return ""
	}
}

// Directory resolves provider adapters and display metadata. The
// provider registry satisfies it; tests substitute fakes.
type Directory interface {
	Get(id string) (provider.Adapter, error)
	DisplayName(id string) string
	Role(id string) string
	IDs() []string
}

// Coordinator fans one query out to a provider set concurrently and
// covers outright failures with a single shared failover answer.
type Coordinator struct {
	registry Directory
	logger   *slog.Logger
}

// NewCoordinator creates a coordinator over the given directory.
func NewCoordinator(registry Directory, logger *slog.Logger) *Coordinator {
	return &Coordinator{registry: registry, logger: logger}
}

// QueryAll issues one adapter call per requested provider concurrently
// and waits for all to settle; partial failures never cancel siblings.
// Failed seats are then covered by the failover chain: the first failover
// provider not already in the requested set is queried once, and its
// single answer is wrapped in a FailoverEnvelope for every failed seat
// (one failover query serves the whole batch). If that failover also
// fails, no further failover providers are attempted. The returned map
// has an entry for every requested ID.
func (c *Coordinator) QueryAll(ctx context.Context, providerIDs []string, messages []domain.Message, failoverIDs []string) map[string]Seat {
	results := make(map[string]Seat, len(providerIDs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range providerIDs {
		g.Go(func() error {
			res := c.queryOne(gctx, id, messages)
			mu.Lock()
			results[id] = Seat{Result: res}
			mu.Unlock()
			return nil // best effort: one seat failing never aborts the batch
		})
	}
	g.Wait()

	var failed []string
	for _, id := range providerIDs {
		if results[id].Empty() {
			failed = append(failed, id)
		}
	}
	if len(failed) == 0 || len(failoverIDs) == 0 {
		return results
	}

	c.logger.Info("activating failover", slog.Any("failed_providers", failed))

	requested := make(map[string]bool, len(providerIDs))
	for _, id := range providerIDs {
		requested[id] = true
	}

	for _, failoverID := range failoverIDs {
		if requested[failoverID] {
			continue
		}
		answer := c.queryOne(ctx, failoverID, messages)
		if answer != nil {
			for _, id := range failed {
				results[id] = Seat{Failover: &domain.FailoverEnvelope{
					QueryResult:         *answer,
					IsFailover:          true,
					OriginalProvider:    id,
					OriginalDisplayName: c.registry.DisplayName(id),
					FailoverModel:       failoverID,
				}}
			}
		}
		// Single-attempt failover: whether it succeeded or not, stop here.
		break
	}

	return results
}

// QueryOne queries a single provider, returning nil on failure. Used for
// the chairman and title queries where a seat abstraction is unnecessary.
func (c *Coordinator) QueryOne(ctx context.Context, providerID string, messages []domain.Message) *domain.QueryResult {
	return c.queryOne(ctx, providerID, messages)
}

func (c *Coordinator) queryOne(ctx context.Context, providerID string, messages []domain.Message) *domain.QueryResult {
	adapter, err := c.registry.Get(providerID)
	if err != nil {
		c.logger.Warn("provider lookup failed", slog.String("provider", providerID), slog.String("error", err.Error()))
		return nil
	}

	result, err := adapter.Query(ctx, messages)
	if err != nil {
		c.logger.Warn("provider query failed",
			slog.String("provider", providerID),
			slog.String("error", err.Error()))
		return nil
	}
	return result
}
