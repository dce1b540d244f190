// Package memory implements storage.Store in process memory, for tests
// and ephemeral deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tjfontaine/llm-council/internal/storage"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*storage.Conversation
	events        []storage.AnalyticsEvent
	nextEventID   int64
	settings      *storage.CouncilSettings
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		conversations: make(map[string]*storage.Conversation),
		nextEventID:   1,
	}
}

func (s *Store) CreateConversation(_ context.Context, conv *storage.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	clone := *conv
	clone.Messages = nil
	s.conversations[conv.ID] = &clone
	return nil
}

func (s *Store) GetConversation(_ context.Context, id string) (*storage.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, storage.ErrNotFound)
	}

	clone := *conv
	clone.Messages = append([]storage.StoredMessage(nil), conv.Messages...)
	return &clone, nil
}

func (s *Store) ListConversations(_ context.Context, opts storage.ListOptions) ([]*storage.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*storage.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		clone := *conv
		clone.Messages = nil
		clone.MessageCount = len(conv.Messages)
		all = append(all, &clone)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})

	limit := opts.Limit
	if limit == 0 {
		limit = 100
	}
	if opts.Offset >= len(all) {
		return nil, nil
	}
	all = all[opts.Offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) RenameConversation(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return fmt.Errorf("conversation %s: %w", id, storage.ErrNotFound)
	}
	conv.Title = title
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return fmt.Errorf("conversation %s: %w", id, storage.ErrNotFound)
	}
	delete(s.conversations, id)
	return nil
}

func (s *Store) AddMessage(_ context.Context, conversationID string, msg *storage.StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return fmt.Errorf("conversation %s: %w", conversationID, storage.ErrNotFound)
	}

	msg.CreatedAt = time.Now().UTC()
	conv.Messages = append(conv.Messages, *msg)
	conv.UpdatedAt = msg.CreatedAt
	return nil
}

func (s *Store) RecordAnalytics(_ context.Context, event *storage.AnalyticsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event.ID = s.nextEventID
	s.nextEventID++
	event.CreatedAt = time.Now().UTC()
	s.events = append(s.events, *event)
	return nil
}

func (s *Store) AnalyticsSummary(_ context.Context, since time.Time) (*storage.AnalyticsSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type providerAcc struct {
		requests int
		failures int
		duration int64
		tokens   int
	}
	type stageAcc struct {
		requests int
		duration int64
	}
	type dailyAcc struct {
		requests int
		tokens   int
	}

	providers := make(map[string]*providerAcc)
	stages := make(map[string]*stageAcc)
	daily := make(map[string]*dailyAcc)
	summary := &storage.AnalyticsSummary{}

	for _, event := range s.events {
		if event.CreatedAt.Before(since) {
			continue
		}
		summary.TotalRequests++
		summary.TotalTokens += event.Tokens

		p := providers[event.Provider]
		if p == nil {
			p = &providerAcc{}
			providers[event.Provider] = p
		}
		p.requests++
		if !event.Success {
			p.failures++
		}
		p.duration += event.DurationMS
		p.tokens += event.Tokens

		st := stages[event.Stage]
		if st == nil {
			st = &stageAcc{}
			stages[event.Stage] = st
		}
		st.requests++
		st.duration += event.DurationMS

		day := event.CreatedAt.Format("2006-01-02")
		d := daily[day]
		if d == nil {
			d = &dailyAcc{}
			daily[day] = d
		}
		d.requests++
		d.tokens += event.Tokens
	}

	for provider, acc := range providers {
		summary.Providers = append(summary.Providers, storage.ProviderStat{
			Provider:      provider,
			Requests:      acc.requests,
			Failures:      acc.failures,
			AvgDurationMS: float64(acc.duration) / float64(acc.requests),
			TotalTokens:   acc.tokens,
		})
	}
	sort.Slice(summary.Providers, func(i, j int) bool {
		if summary.Providers[i].Requests != summary.Providers[j].Requests {
			return summary.Providers[i].Requests > summary.Providers[j].Requests
		}
		return summary.Providers[i].Provider < summary.Providers[j].Provider
	})

	for day, acc := range daily {
		summary.Daily = append(summary.Daily, storage.DailyStat{
			Day:      day,
			Requests: acc.requests,
			Tokens:   acc.tokens,
		})
	}
	sort.Slice(summary.Daily, func(i, j int) bool {
		return strings.Compare(summary.Daily[i].Day, summary.Daily[j].Day) < 0
	})

	for stage, acc := range stages {
		summary.Stages = append(summary.Stages, storage.StageStat{
			Stage:         stage,
			Requests:      acc.requests,
			AvgDurationMS: float64(acc.duration) / float64(acc.requests),
		})
	}
	sort.Slice(summary.Stages, func(i, j int) bool {
		return summary.Stages[i].Stage < summary.Stages[j].Stage
	})

	return summary, nil
}

func (s *Store) RecentErrors(_ context.Context, limit int) ([]storage.AnalyticsEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit == 0 {
		limit = 50
	}

	var errors []storage.AnalyticsEvent
	for i := len(s.events) - 1; i >= 0 && len(errors) < limit; i-- {
		if !s.events[i].Success {
			errors = append(errors, s.events[i])
		}
	}
	return errors, nil
}

func (s *Store) GetSettings(_ context.Context) (*storage.CouncilSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return nil, nil
	}
	clone := *s.settings
	clone.Experts = append([]string(nil), s.settings.Experts...)
	return &clone, nil
}

func (s *Store) SaveSettings(_ context.Context, settings *storage.CouncilSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *settings
	clone.Experts = append([]string(nil), settings.Experts...)
	s.settings = &clone
	return nil
}

func (s *Store) Close() error { return nil }
