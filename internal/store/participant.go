package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"privmsg/internal/model"
)

// Participant loads one participant row. A missing row means uid is not
// a participant of the conversation.
func (s *Store) Participant(ctx context.Context, conversationID int64, uid string) (model.Participant, error) {
	var (
		p            model.Participant
		lastRead     sql.NullInt64
		lastMsgAt    sql.NullInt64
		lastNotified sql.NullInt64
		updated      int64
	)
	err := s.q.QueryRowContext(ctx,
		`SELECT conversation_id, user_uid, unread_count, is_visible, last_read_message_id,
			last_message_at, last_notified_at, updated_at
		FROM conversation_participants WHERE conversation_id = ? AND user_uid = ?`,
		conversationID, uid).Scan(&p.ConversationID, &p.UserUID, &p.UnreadCount, &p.IsVisible,
		&lastRead, &lastMsgAt, &lastNotified, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Participant{}, ErrNotFound
	}
	if err != nil {
		return model.Participant{}, fmt.Errorf("store: participant: %w", err)
	}
	p.LastReadMessageID = nullID(lastRead)
	p.LastMessageAt = nullTime(lastMsgAt)
	p.LastNotifiedAt = nullTime(lastNotified)
	p.UpdatedAt = fromMillis(updated)
	return p, nil
}

// SetVisible sets the participant's visibility flag.
func (s *Store) SetVisible(ctx context.Context, conversationID int64, uid string, visible bool, now time.Time) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE conversation_participants SET is_visible = ?, updated_at = ? WHERE conversation_id = ? AND user_uid = ?",
		visible, millis(now), conversationID, uid)
	if err != nil {
		return fmt.Errorf("store: set visible: %w", err)
	}
	return expectOne(res, "set visible")
}

// RecordInbound applies a message from the other side to the
// recipient's row: one more unread, new last_message_at and visibility.
func (s *Store) RecordInbound(ctx context.Context, conversationID int64, uid string, at time.Time, visible bool) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE conversation_participants
		SET unread_count = unread_count + 1, last_message_at = ?, is_visible = ?, updated_at = ?
		WHERE conversation_id = ? AND user_uid = ?`,
		millis(at), visible, millis(at), conversationID, uid)
	if err != nil {
		return fmt.Errorf("store: record inbound: %w", err)
	}
	return expectOne(res, "record inbound")
}

// RecordOutbound applies a message to the sender's own row.
func (s *Store) RecordOutbound(ctx context.Context, conversationID int64, uid string, at time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE conversation_participants SET last_message_at = ?, updated_at = ?
		WHERE conversation_id = ? AND user_uid = ?`,
		millis(at), millis(at), conversationID, uid)
	if err != nil {
		return fmt.Errorf("store: record outbound: %w", err)
	}
	return expectOne(res, "record outbound")
}

// AdvanceRead moves uid's read pointer to messageID unless the stored
// pointer is already newer, recounts unread messages after the pointer
// and clears the notification throttle. It reports whether the row was
// updated; false means the pointer was already ahead.
func (s *Store) AdvanceRead(ctx context.Context, conversationID int64, uid string, messageID int64, now time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE conversation_participants
		SET last_read_message_id = ?,
			unread_count = (
				SELECT COUNT(*) FROM messages
				WHERE conversation_id = ? AND sender_uid <> ? AND deleted_at IS NULL AND id > ?
			),
			last_notified_at = NULL,
			updated_at = ?
		WHERE conversation_id = ? AND user_uid = ?
			AND (last_read_message_id IS NULL OR last_read_message_id <= ?)`,
		messageID, conversationID, uid, messageID, millis(now), conversationID, uid, messageID)
	if err != nil {
		return false, fmt.Errorf("store: advance read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: advance read: %w", err)
	}
	return n > 0, nil
}

// TouchParticipant bumps updated_at without changing any counter so
// that the participant's poll loop notices a change on the other side.
func (s *Store) TouchParticipant(ctx context.Context, conversationID int64, uid string, now time.Time) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE conversation_participants SET updated_at = ? WHERE conversation_id = ? AND user_uid = ?",
		millis(now), conversationID, uid)
	if err != nil {
		return fmt.Errorf("store: touch participant: %w", err)
	}
	return expectOne(res, "touch participant")
}

// ClaimNotification sets last_notified_at to now if the previous
// notification is older than window (or there was none). Only one of
// several concurrent callers can win the claim.
func (s *Store) ClaimNotification(ctx context.Context, conversationID int64, uid string, now time.Time, window time.Duration) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE conversation_participants SET last_notified_at = ?
		WHERE conversation_id = ? AND user_uid = ?
			AND (last_notified_at IS NULL OR last_notified_at < ?)`,
		millis(now), conversationID, uid, millis(now.Add(-window)))
	if err != nil {
		return false, fmt.Errorf("store: claim notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: claim notification: %w", err)
	}
	return n > 0, nil
}

// TotalUnread sums unread_count over every conversation of uid.
func (s *Store) TotalUnread(ctx context.Context, uid string) (int, error) {
	var total int
	if err := s.q.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(unread_count), 0) FROM conversation_participants WHERE user_uid = ?",
		uid).Scan(&total); err != nil {
		return 0, fmt.Errorf("store: total unread: %w", err)
	}
	return total, nil
}
