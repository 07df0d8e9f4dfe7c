package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"privmsg/internal/database"
	"privmsg/internal/model"
)

const conversationColumns = "id, user_low, user_high, last_message_id, created_at, updated_at"

func scanConversation(row interface{ Scan(...any) error }) (model.Conversation, error) {
	var (
		c             model.Conversation
		lastMessageID sql.NullInt64
		createdAt     int64
		updated       int64
	)
	if err := row.Scan(&c.ID, &c.UserLow, &c.UserHigh, &lastMessageID, &createdAt, &updated); err != nil {
		return model.Conversation{}, err
	}
	c.LastMessageID = nullID(lastMessageID)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updated)
	return c, nil
}

// FindConversation returns the unique conversation between a and b.
func (s *Store) FindConversation(ctx context.Context, a, b string) (model.Conversation, error) {
	low, high := model.Pair(a, b)
	c, err := scanConversation(s.q.QueryRowContext(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE user_low = ? AND user_high = ?",
		low, high))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Conversation{}, ErrNotFound
	}
	if err != nil {
		return model.Conversation{}, fmt.Errorf("store: find conversation: %w", err)
	}
	return c, nil
}

// ConversationByID loads a conversation by primary key.
func (s *Store) ConversationByID(ctx context.Context, id int64) (model.Conversation, error) {
	c, err := scanConversation(s.q.QueryRowContext(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Conversation{}, ErrNotFound
	}
	if err != nil {
		return model.Conversation{}, fmt.Errorf("store: conversation %d: %w", id, err)
	}
	return c, nil
}

// CreateConversation inserts the conversation and both participant rows
// in one transaction. It returns ErrDuplicate when another request
// created the pair first.
func (s *Store) CreateConversation(ctx context.Context, a, b string, now time.Time) (model.Conversation, error) {
	low, high := model.Pair(a, b)
	ts := millis(now)
	var conv model.Conversation

	err := s.Tx(ctx, func(tx *Store) error {
		res, err := tx.q.ExecContext(ctx,
			"INSERT INTO conversations (user_low, user_high, last_message_id, created_at, updated_at) VALUES (?, ?, NULL, ?, ?)",
			low, high, ts, ts)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("store: insert conversation: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("store: conversation id: %w", err)
		}
		for _, uid := range []string{low, high} {
			if _, err := tx.q.ExecContext(ctx,
				`INSERT INTO conversation_participants
					(conversation_id, user_uid, unread_count, is_visible, last_read_message_id, last_message_at, last_notified_at, updated_at)
				VALUES (?, ?, 0, 1, NULL, NULL, NULL, ?)`,
				id, uid, ts); err != nil {
				return fmt.Errorf("store: insert participant: %w", err)
			}
		}
		conv = model.Conversation{ID: id, UserLow: low, UserHigh: high, CreatedAt: fromMillis(ts), UpdatedAt: fromMillis(ts)}
		return nil
	})
	if err != nil {
		return model.Conversation{}, err
	}
	return conv, nil
}

// TouchConversation records the newest message on the conversation row.
func (s *Store) TouchConversation(ctx context.Context, id, messageID int64, now time.Time) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE conversations SET last_message_id = ?, updated_at = ? WHERE id = ?",
		messageID, millis(now), id)
	if err != nil {
		return fmt.Errorf("store: touch conversation: %w", err)
	}
	return expectOne(res, "touch conversation")
}

// ListedConversation is one row of a user's conversation list before
// profile, presence and preview enrichment.
type ListedConversation struct {
	Conversation           model.Conversation
	UpdatedAt              time.Time
	UnreadCount            int
	OtherUID               string
	OtherLastReadMessageID *int64
}

// ListFilter selects a page of a user's visible conversations.
type ListFilter struct {
	UserUID string
	Since   *time.Time
	Skip    int
	Take    int
}

// ListConversations returns visible conversations for f.UserUID, the
// one with the newest message first, plus the total matching count.
// Since filters on the participant's updated_at so that read receipts
// show up in a poll without reordering the list.
func (s *Store) ListConversations(ctx context.Context, f ListFilter) ([]ListedConversation, int, error) {
	where := "p.user_uid = ? AND p.is_visible = 1"
	args := []any{f.UserUID}
	if f.Since != nil {
		where += " AND p.updated_at >= ?"
		args = append(args, millis(*f.Since))
	}

	var total int
	if err := s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM conversation_participants p WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count conversations: %w", err)
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT c.id, c.user_low, c.user_high, c.last_message_id, c.created_at, c.updated_at,
			p.updated_at, p.unread_count, o.user_uid, o.last_read_message_id
		FROM conversation_participants p
		JOIN conversations c ON c.id = p.conversation_id
		JOIN conversation_participants o ON o.conversation_id = p.conversation_id AND o.user_uid <> p.user_uid
		WHERE `+where+`
		ORDER BY c.updated_at DESC, c.id DESC
		LIMIT ? OFFSET ?`,
		append(args, f.Take, f.Skip)...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list conversations: %w", err)
	}
	defer rows.Close()

	var out []ListedConversation
	for rows.Next() {
		var (
			item          ListedConversation
			lastMessageID sql.NullInt64
			otherRead     sql.NullInt64
			created       int64
			upd           int64
			selfUpdated   int64
		)
		if err := rows.Scan(&item.Conversation.ID, &item.Conversation.UserLow, &item.Conversation.UserHigh,
			&lastMessageID, &created, &upd, &selfUpdated, &item.UnreadCount, &item.OtherUID, &otherRead); err != nil {
			return nil, 0, fmt.Errorf("store: scan conversation: %w", err)
		}
		item.Conversation.LastMessageID = nullID(lastMessageID)
		item.Conversation.CreatedAt = fromMillis(created)
		item.Conversation.UpdatedAt = fromMillis(upd)
		item.UpdatedAt = fromMillis(selfUpdated)
		item.OtherLastReadMessageID = nullID(otherRead)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("store: list conversations: %w", err)
	}
	return out, total, nil
}
