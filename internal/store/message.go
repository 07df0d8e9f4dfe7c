package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"privmsg/internal/model"
)

const messageColumns = "id, conversation_id, sender_uid, content, type, created_at, deleted_at"

func scanMessage(row interface{ Scan(...any) error }) (model.Message, error) {
	var (
		m         model.Message
		createdAt int64
		deletedAt sql.NullInt64
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderUID, &m.Content, &m.Type, &createdAt, &deletedAt); err != nil {
		return model.Message{}, err
	}
	m.CreatedAt = fromMillis(createdAt)
	m.DeletedAt = nullTime(deletedAt)
	return m, nil
}

// InsertMessage appends m and returns its id. Message ids are
// monotonically increasing within the store.
func (s *Store) InsertMessage(ctx context.Context, m model.Message) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		"INSERT INTO messages (conversation_id, sender_uid, content, type, created_at, deleted_at) VALUES (?, ?, ?, ?, ?, NULL)",
		m.ConversationID, m.SenderUID, m.Content, m.Type, millis(m.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("store: insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: message id: %w", err)
	}
	return id, nil
}

// MessagesPage returns non-deleted messages newest first.
func (s *Store) MessagesPage(ctx context.Context, conversationID int64, skip, take int) ([]model.Message, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+messageColumns+` FROM messages
		WHERE conversation_id = ? AND deleted_at IS NULL
		ORDER BY id DESC LIMIT ? OFFSET ?`,
		conversationID, take, skip)
	if err != nil {
		return nil, fmt.Errorf("store: messages page: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: messages page: %w", err)
	}
	return out, nil
}

// CountMessages counts non-deleted messages in a conversation.
func (s *Store) CountMessages(ctx context.Context, conversationID int64) (int, error) {
	var n int
	if err := s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND deleted_at IS NULL",
		conversationID).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count messages: %w", err)
	}
	return n, nil
}

// LatestMessage returns the newest non-deleted message.
func (s *Store) LatestMessage(ctx context.Context, conversationID int64) (model.Message, error) {
	m, err := scanMessage(s.q.QueryRowContext(ctx,
		"SELECT "+messageColumns+` FROM messages
		WHERE conversation_id = ? AND deleted_at IS NULL
		ORDER BY id DESC LIMIT 1`, conversationID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, ErrNotFound
	}
	if err != nil {
		return model.Message{}, fmt.Errorf("store: latest message: %w", err)
	}
	return m, nil
}

// LatestMessages returns the newest non-deleted message of each
// conversation in ids, keyed by conversation id.
func (s *Store) LatestMessages(ctx context.Context, ids []int64) (map[int64]model.Message, error) {
	out := make(map[int64]model.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+messageColumns+` FROM messages WHERE id IN (
			SELECT MAX(id) FROM messages
			WHERE deleted_at IS NULL AND conversation_id IN (`+placeholders(len(ids))+`)
			GROUP BY conversation_id
		)`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: latest messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		out[m.ConversationID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: latest messages: %w", err)
	}
	return out, nil
}
