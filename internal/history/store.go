// Package history persists conversations relayed through the gateway.
//
// Every completed chat round trip (request messages plus the provider's
// reply) is stored as a chat with ordered messages. All reads are scoped
// to the owning user; there is no cross-user visibility.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaybase/relaybase/internal/llm"
	"github.com/relaybase/relaybase/internal/log"
)

// ErrNotFound indicates the chat does not exist or belongs to another
// user. Handlers map this to 404; ownership failures are deliberately
// indistinguishable from missing rows.
var ErrNotFound = errors.New("chat not found")

// titleMaxRunes caps the auto-generated chat title length.
const titleMaxRunes = 50

// Chat is a stored conversation summary.
type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a stored conversation turn.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats summarizes a user's stored conversations.
type Stats struct {
	TotalChats    int      `json:"total_chats"`
	TotalMessages int      `json:"total_messages"`
	ModelsUsed    []string `json:"models_used"`
}

// Store manages conversation persistence with a PostgreSQL backend.
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// New creates a conversation store.
func New(pool *pgxpool.Pool, logger log.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// chatTitle derives a title from the first user message, truncated to
// titleMaxRunes runes.
func chatTitle(messages []llm.Message) string {
	for _, m := range messages {
		if m.Role != llm.RoleUser {
			continue
		}
		runes := []rune(m.Content)
		if len(runes) > titleMaxRunes {
			return string(runes[:titleMaxRunes])
		}
		return m.Content
	}
	return "New chat"
}

// SaveChat stores a completed round trip as a new chat. The request
// messages and the assistant reply are written in conversation order
// inside a single transaction.
func (s *Store) SaveChat(ctx context.Context, userID string, messages []llm.Message, reply llm.Message, model, provider string) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin save chat: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				s.logger.Debug("save chat rollback", "error", rbErr)
			}
		}
	}()

	var chatID string
	err = tx.QueryRow(ctx,
		`INSERT INTO chats (user_id, title, model, provider)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		userID, chatTitle(messages), model, provider,
	).Scan(&chatID)
	if err != nil {
		return "", fmt.Errorf("insert chat: %w", err)
	}

	all := make([]llm.Message, 0, len(messages)+1)
	all = append(all, messages...)
	all = append(all, reply)

	for i, m := range all {
		_, err = tx.Exec(ctx,
			`INSERT INTO chat_messages (chat_id, role, content, sequence_number)
			 VALUES ($1, $2, $3, $4)`,
			chatID, m.Role, m.Content, i,
		)
		if err != nil {
			return "", fmt.Errorf("insert message %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit save chat: %w", err)
	}
	committed = true

	s.logger.Debug("saved chat", "chat_id", chatID, "messages", len(all))
	return chatID, nil
}

// ListChats returns the user's chats, newest activity first.
func (s *Store) ListChats(ctx context.Context, userID string, limit, offset int) ([]Chat, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, COALESCE(title, ''), COALESCE(model, ''), COALESCE(provider, ''), created_at, updated_at
		 FROM chats
		 WHERE user_id = $1
		 ORDER BY updated_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := make([]Chat, 0, limit)
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.Model, &c.Provider, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	return chats, nil
}

// GetMessages returns the messages of a chat owned by userID, in
// conversation order. Returns ErrNotFound when the chat does not exist
// or belongs to someone else.
func (s *Store) GetMessages(ctx context.Context, chatID, userID string) ([]Message, error) {
	if err := s.checkOwnership(ctx, chatID, userID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, chat_id, role, content, created_at
		 FROM chat_messages
		 WHERE chat_id = $1
		 ORDER BY sequence_number`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// DeleteChat removes a chat owned by userID; messages cascade.
func (s *Store) DeleteChat(ctx context.Context, chatID, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM chats WHERE id = $1 AND user_id = $2`,
		chatID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.logger.Debug("deleted chat", "chat_id", chatID)
	return nil
}

// Stats returns conversation totals for a user.
func (s *Store) Stats(ctx context.Context, userID string) (*Stats, error) {
	stats := &Stats{}

	err := s.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM chats WHERE user_id = $1),
		   (SELECT COUNT(*) FROM chat_messages m JOIN chats c ON c.id = m.chat_id WHERE c.user_id = $1)`,
		userID,
	).Scan(&stats.TotalChats, &stats.TotalMessages)
	if err != nil {
		return nil, fmt.Errorf("chat stats: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT model FROM chats WHERE user_id = $1 AND model IS NOT NULL AND model <> '' ORDER BY model`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("chat stats models: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var model string
		if err := rows.Scan(&model); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		stats.ModelsUsed = append(stats.ModelsUsed, model)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate models: %w", err)
	}
	return stats, nil
}

// checkOwnership verifies the chat exists and belongs to userID.
func (s *Store) checkOwnership(ctx context.Context, chatID, userID string) error {
	var owner string
	err := s.pool.QueryRow(ctx,
		`SELECT user_id FROM chats WHERE id = $1`, chatID,
	).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check chat ownership: %w", err)
	}
	if owner != userID {
		return ErrNotFound
	}
	return nil
}
