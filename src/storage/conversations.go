package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"

	"github.com/parleyhq/parley/src/chat"
)

// Store is the conversation store. It owns the durable transcripts; the
// engine only holds a working copy while a loop is in flight.
type Store struct {
	db     *DB
	logger *slog.Logger
}

// NewStore wraps an opened database.
func NewStore(db *DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger.With("component", "conversation_store")}
}

func (s *Store) Close() error {
	return s.db.Close()
}

type conversationRow struct {
	ID        string    `db:"id"`
	Title     string    `db:"title"`
	Model     string    `db:"model"`
	Messages  []byte    `db:"messages"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// List returns conversation summaries ordered by recency. Corrupt rows are
// skipped with a warning so one bad record never blocks the listing.
func (s *Store) List(ctx context.Context) ([]chat.Summary, error) {
	query := `SELECT id, title, model, message_count, created_at, updated_at,
		json_valid(messages) AS messages_valid
		FROM conversations ORDER BY updated_at DESC`

	rows, err := s.db.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var summaries []chat.Summary
	for rows.Next() {
		var (
			summary chat.Summary
			valid   int
		)
		if err := rows.Scan(&summary.ID, &summary.Title, &summary.Model,
			&summary.MessageCount, &summary.CreatedAt, &summary.UpdatedAt, &valid); err != nil {
			s.logger.Warn("skipping unreadable conversation row", "error", err)
			continue
		}
		if valid == 0 {
			s.logger.Warn("skipping conversation with corrupt transcript", "id", summary.ID)
			continue
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// Get retrieves a conversation by id. A missing id yields (nil, nil).
func (s *Store) Get(ctx context.Context, id string) (*chat.Conversation, error) {
	query := `SELECT id, title, model, messages, created_at, updated_at FROM conversations WHERE id = ?`

	var row conversationRow
	err := sqlscan.Get(ctx, s.db.DB(), &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}

	conv := &chat.Conversation{
		ID:        row.ID,
		Title:     row.Title,
		Model:     row.Model,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if err := json.Unmarshal(row.Messages, &conv.Messages); err != nil {
		return nil, fmt.Errorf("conversation %s has a corrupt transcript: %w", id, err)
	}
	return conv, nil
}

// Save writes the conversation as a full overwrite. It assigns an id and
// creation time on first save and bumps updated_at on every call. The
// write happens in one statement, so a concurrent Get never observes a
// partial record.
func (s *Store) Save(ctx context.Context, conv *chat.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	messages := conv.Messages
	if messages == nil {
		messages = []chat.Message{}
	}
	raw, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}

	query := `INSERT INTO conversations (id, title, model, messages, message_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			model = excluded.model,
			messages = excluded.messages,
			message_count = excluded.message_count,
			updated_at = excluded.updated_at`

	_, err = s.db.DB().ExecContext(ctx, query,
		conv.ID, conv.Title, conv.Model, string(raw), len(conv.Messages), conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", conv.ID, err)
	}
	return nil
}

// Delete removes a conversation. Deleting a nonexistent id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.DB().ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	return nil
}
