// Package sqlite implements storage.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tjfontaine/llm-council/internal/storage"
)

// Store is a SQLite implementation of storage.Store.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New opens (creating if needed) the database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Pragmas apply per connection; a single pooled connection keeps them
	// in force and sidesteps SQLITE_BUSY between concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			turn TEXT,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS analytics_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT,
			duration_ms INTEGER NOT NULL,
			tokens INTEGER NOT NULL,
			success INTEGER NOT NULL,
			error TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_created ON analytics_events(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_provider ON analytics_events(provider)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) CreateConversation(ctx context.Context, conv *storage.Conversation) error {
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		conv.ID, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	return nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*storage.Conversation, error) {
	var conv storage.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?`, id).
		Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conversation %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	messages, err := s.getMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Messages = messages

	return &conv, nil
}

func (s *Store) getMessages(ctx context.Context, conversationID string) ([]storage.StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, turn, created_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []storage.StoredMessage
	for rows.Next() {
		var msg storage.StoredMessage
		var turnJSON sql.NullString
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &turnJSON, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if turnJSON.Valid && turnJSON.String != "" {
			if err := json.Unmarshal([]byte(turnJSON.String), &msg.Turn); err != nil {
				return nil, fmt.Errorf("failed to unmarshal turn: %w", err)
			}
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (s *Store) ListConversations(ctx context.Context, opts storage.ListOptions) ([]*storage.Conversation, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.title, c.created_at, c.updated_at,
		        (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		 FROM conversations c
		 ORDER BY c.updated_at DESC
		 LIMIT ? OFFSET ?`, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*storage.Conversation
	for rows.Next() {
		var conv storage.Conversation
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt, &conv.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, &conv)
	}

	return conversations, rows.Err()
}

func (s *Store) RenameConversation(ctx context.Context, id, title string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to rename conversation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("conversation %s: %w", id, storage.ErrNotFound)
	}

	return nil
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("conversation %s: %w", id, storage.ErrNotFound)
	}

	return nil
}

func (s *Store) AddMessage(ctx context.Context, conversationID string, msg *storage.StoredMessage) error {
	msg.CreatedAt = time.Now().UTC()

	var turnJSON sql.NullString
	if msg.Turn != nil {
		data, err := json.Marshal(msg.Turn)
		if err != nil {
			return fmt.Errorf("failed to marshal turn: %w", err)
		}
		turnJSON = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, turn, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, conversationID, msg.Role, msg.Content, turnJSON, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, msg.CreatedAt, conversationID)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}

	return tx.Commit()
}

func (s *Store) RecordAnalytics(ctx context.Context, event *storage.AnalyticsEvent) error {
	event.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analytics_events (conversation_id, stage, provider, model, duration_ms, tokens, success, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ConversationID, event.Stage, event.Provider, event.Model,
		event.DurationMS, event.Tokens, event.Success, event.Error, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record analytics event: %w", err)
	}

	return nil
}

func (s *Store) AnalyticsSummary(ctx context.Context, since time.Time) (*storage.AnalyticsSummary, error) {
	summary := &storage.AnalyticsSummary{}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(tokens), 0) FROM analytics_events WHERE created_at >= ?`, since).
		Scan(&summary.TotalRequests, &summary.TotalTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, COUNT(*), SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END),
		        AVG(duration_ms), COALESCE(SUM(tokens), 0)
		 FROM analytics_events WHERE created_at >= ?
		 GROUP BY provider ORDER BY COUNT(*) DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query provider stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var stat storage.ProviderStat
		if err := rows.Scan(&stat.Provider, &stat.Requests, &stat.Failures, &stat.AvgDurationMS, &stat.TotalTokens); err != nil {
			return nil, fmt.Errorf("failed to scan provider stat: %w", err)
		}
		summary.Providers = append(summary.Providers, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	dailyRows, err := s.db.QueryContext(ctx,
		`SELECT date(created_at), COUNT(*), COALESCE(SUM(tokens), 0)
		 FROM analytics_events WHERE created_at >= ?
		 GROUP BY date(created_at) ORDER BY date(created_at) ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer dailyRows.Close()

	for dailyRows.Next() {
		var stat storage.DailyStat
		if err := dailyRows.Scan(&stat.Day, &stat.Requests, &stat.Tokens); err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}
		summary.Daily = append(summary.Daily, stat)
	}
	if err := dailyRows.Err(); err != nil {
		return nil, err
	}

	stageRows, err := s.db.QueryContext(ctx,
		`SELECT stage, COUNT(*), AVG(duration_ms)
		 FROM analytics_events WHERE created_at >= ?
		 GROUP BY stage ORDER BY stage ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage stats: %w", err)
	}
	defer stageRows.Close()

	for stageRows.Next() {
		var stat storage.StageStat
		if err := stageRows.Scan(&stat.Stage, &stat.Requests, &stat.AvgDurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan stage stat: %w", err)
		}
		summary.Stages = append(summary.Stages, stat)
	}

	return summary, stageRows.Err()
}

func (s *Store) RecentErrors(ctx context.Context, limit int) ([]storage.AnalyticsEvent, error) {
	if limit == 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, stage, provider, COALESCE(model, ''), duration_ms, tokens, success, COALESCE(error, ''), created_at
		 FROM analytics_events WHERE success = 0
		 ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent errors: %w", err)
	}
	defer rows.Close()

	var events []storage.AnalyticsEvent
	for rows.Next() {
		var event storage.AnalyticsEvent
		if err := rows.Scan(&event.ID, &event.ConversationID, &event.Stage, &event.Provider,
			&event.Model, &event.DurationMS, &event.Tokens, &event.Success, &event.Error, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analytics event: %w", err)
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

const settingsKey = "council"

func (s *Store) GetSettings(ctx context.Context) (*storage.CouncilSettings, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, settingsKey).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	var settings storage.CouncilSettings
	if err := json.Unmarshal([]byte(value), &settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	return &settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings *storage.CouncilSettings) error {
	value, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		settingsKey, string(value), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
