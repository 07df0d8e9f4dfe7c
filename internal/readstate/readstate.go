// Package readstate tracks each participant's unread counter and read
// pointer.
//
// Transitions per (conversation, participant):
//
//	message from the other side  -> unread+1, lastMessageAt, visible
//	own message                  -> lastMessageAt
//	first page read / mark read  -> pointer = newest, unread recounted, throttle cleared
//	older page read (skip > 0)   -> nothing
//
// The pointer only ever moves forward.
package readstate

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"privmsg/internal/apperr"
	"privmsg/internal/clock"
	"privmsg/internal/model"
)

type Store interface {
	RecordInbound(ctx context.Context, conversationID int64, uid string, at time.Time, visible bool) error
	RecordOutbound(ctx context.Context, conversationID int64, uid string, at time.Time) error
	AdvanceRead(ctx context.Context, conversationID int64, uid string, messageID int64, now time.Time) (bool, error)
	TouchParticipant(ctx context.Context, conversationID int64, uid string, now time.Time) error
}

type Tracker struct {
	store  Store
	clock  clock.Clock
	logger *log.Logger
}

// New creates a Tracker on st.
func New(st Store, clk clock.Clock, logger *log.Logger) *Tracker {
	return &Tracker{store: st, clock: clk, logger: logger.With("component", "readstate")}
}

// With returns a Tracker that runs against st, typically a transaction.
func (t *Tracker) With(st Store) *Tracker {
	c := *t
	c.store = st
	return &c
}

// OnAppend applies a freshly appended message to both participants.
func (t *Tracker) OnAppend(ctx context.Context, msg model.Message, recipientUID string) error {
	visible, _ := model.InboundMessage.Target()
	if err := t.store.RecordInbound(ctx, msg.ConversationID, recipientUID, msg.CreatedAt, visible); err != nil {
		return apperr.Server("record inbound", err)
	}
	if err := t.store.RecordOutbound(ctx, msg.ConversationID, msg.SenderUID, msg.CreatedAt); err != nil {
		return apperr.Server("record outbound", err)
	}
	return nil
}

// OnPage advances uid's read state after a page of history was
// delivered. Only the first page counts; older pages never touch read
// state. It reports whether the pointer moved.
func (t *Tracker) OnPage(ctx context.Context, conversationID int64, uid, otherUID string, skip int, page []model.Message) (bool, error) {
	if skip > 0 || len(page) == 0 {
		return false, nil
	}
	newest := page[len(page)-1].ID
	return t.advance(ctx, conversationID, uid, otherUID, newest)
}

// MarkRead advances uid's read state to latestID.
func (t *Tracker) MarkRead(ctx context.Context, conversationID int64, uid, otherUID string, latestID int64) (bool, error) {
	return t.advance(ctx, conversationID, uid, otherUID, latestID)
}

func (t *Tracker) advance(ctx context.Context, conversationID int64, uid, otherUID string, messageID int64) (bool, error) {
	now := t.clock.Now()
	moved, err := t.store.AdvanceRead(ctx, conversationID, uid, messageID, now)
	if err != nil {
		return false, apperr.Server("advance read pointer", err)
	}
	if !moved {
		t.logger.Debug("read pointer already ahead", "conversation", conversationID, "uid", uid, "message", messageID)
		return false, nil
	}
	// Lets the other side's poll notice that its messages were read.
	if err := t.store.TouchParticipant(ctx, conversationID, otherUID, now); err != nil {
		return true, apperr.Server("touch other participant", err)
	}
	return true, nil
}
