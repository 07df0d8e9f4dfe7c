// Package ledger is the append-only message log of a conversation.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"privmsg/internal/apperr"
	"privmsg/internal/clock"
	"privmsg/internal/model"
	"privmsg/internal/store"
)

type Store interface {
	Participant(ctx context.Context, conversationID int64, uid string) (model.Participant, error)
	InsertMessage(ctx context.Context, m model.Message) (int64, error)
	TouchConversation(ctx context.Context, id, messageID int64, now time.Time) error
	MessagesPage(ctx context.Context, conversationID int64, skip, take int) ([]model.Message, error)
	CountMessages(ctx context.Context, conversationID int64) (int, error)
	LatestMessage(ctx context.Context, conversationID int64) (model.Message, error)
}

// Ledger appends to and pages through conversation history.
type Ledger struct {
	store  Store
	clock  clock.Clock
	logger *log.Logger
}

// New creates a Ledger on st.
func New(st Store, clk clock.Clock, logger *log.Logger) *Ledger {
	return &Ledger{store: st, clock: clk, logger: logger.With("component", "ledger")}
}

// With returns a Ledger that runs against st, typically a transaction.
func (l *Ledger) With(st Store) *Ledger {
	c := *l
	c.store = st
	return &c
}

// Page is a slice of history in chronological order.
type Page struct {
	Messages []model.Message `json:"messages"`
	HasMore  bool            `json:"hasMore"`
}

func (l *Ledger) authorize(ctx context.Context, conversationID int64, uid string) error {
	_, err := l.store.Participant(ctx, conversationID, uid)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.KindNotFound, "conversation not found")
	}
	if err != nil {
		return apperr.Server("load participant", err)
	}
	return nil
}

// Append stores content as a new TEXT message from senderUID and moves
// the conversation's last message pointer to it.
func (l *Ledger) Append(ctx context.Context, conversationID int64, senderUID, content string) (model.Message, error) {
	if err := l.authorize(ctx, conversationID, senderUID); err != nil {
		return model.Message{}, err
	}

	msg := model.Message{
		ConversationID: conversationID,
		SenderUID:      senderUID,
		Content:        content,
		Type:           model.MessageTypeText,
		CreatedAt:      l.clock.Now().UTC().Truncate(time.Millisecond),
	}
	id, err := l.store.InsertMessage(ctx, msg)
	if err != nil {
		return model.Message{}, apperr.Server("insert message", err)
	}
	msg.ID = id

	if err := l.store.TouchConversation(ctx, conversationID, id, msg.CreatedAt); err != nil {
		return model.Message{}, apperr.Server("touch conversation", err)
	}
	l.logger.Debug("message appended", "conversation", conversationID, "message", id, "sender", senderUID)
	return msg, nil
}

// Page returns non-deleted messages skipping the newest skip and
// taking up to take, oldest first. The caller must already be
// authorized through the directory.
func (l *Ledger) Page(ctx context.Context, conversationID int64, skip, take int) (Page, error) {
	newestFirst, err := l.store.MessagesPage(ctx, conversationID, skip, take)
	if err != nil {
		return Page{}, apperr.Server("load messages", err)
	}
	total, err := l.store.CountMessages(ctx, conversationID)
	if err != nil {
		return Page{}, apperr.Server("count messages", err)
	}

	msgs := make([]model.Message, len(newestFirst))
	for i, m := range newestFirst {
		msgs[len(newestFirst)-1-i] = m
	}
	return Page{Messages: msgs, HasMore: skip+take < total}, nil
}

// Latest returns the newest non-deleted message, and false when the
// conversation has none.
func (l *Ledger) Latest(ctx context.Context, conversationID int64) (model.Message, bool, error) {
	m, err := l.store.LatestMessage(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Message{}, false, nil
	}
	if err != nil {
		return model.Message{}, false, apperr.Server("latest message", err)
	}
	return m, true, nil
}
