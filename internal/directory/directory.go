// Package directory resolves pairwise conversations and lists them for
// a user.
package directory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"privmsg/internal/apperr"
	"privmsg/internal/clock"
	"privmsg/internal/model"
	"privmsg/internal/store"
)

// A lost creation race is retried against the winner's row; more than
// a couple of rounds means something other than a race is wrong.
const maxResolveAttempts = 3

// Store is the persistence the directory needs.
type Store interface {
	FindConversation(ctx context.Context, a, b string) (model.Conversation, error)
	CreateConversation(ctx context.Context, a, b string, now time.Time) (model.Conversation, error)
	ConversationByID(ctx context.Context, id int64) (model.Conversation, error)
	Participant(ctx context.Context, conversationID int64, uid string) (model.Participant, error)
	SetVisible(ctx context.Context, conversationID int64, uid string, visible bool, now time.Time) error
	ListConversations(ctx context.Context, f store.ListFilter) ([]store.ListedConversation, int, error)
	LatestMessages(ctx context.Context, ids []int64) (map[int64]model.Message, error)
	Users(ctx context.Context, uids []string) (map[string]model.User, error)
}

// Presence reports whether a user holds a live realtime connection.
type Presence interface {
	IsOnline(ctx context.Context, uid string) (bool, error)
}

// Directory owns conversation lookup, visibility and listing.
type Directory struct {
	store           Store
	presence        Presence
	clock           clock.Clock
	presenceTimeout time.Duration
	logger          *log.Logger
}

// New creates a Directory. presenceTimeout bounds the presence lookups
// of one list call as a whole.
func New(st Store, presence Presence, clk clock.Clock, presenceTimeout time.Duration, logger *log.Logger) *Directory {
	return &Directory{
		store:           st,
		presence:        presence,
		clock:           clk,
		presenceTimeout: presenceTimeout,
		logger:          logger.With("component", "directory"),
	}
}

// ResolveOrCreate returns the conversation between caller and other,
// creating it with both participant rows when absent. If caller had
// hidden it, it becomes visible again for caller only.
func (d *Directory) ResolveOrCreate(ctx context.Context, caller, other string) (model.Conversation, error) {
	for attempt := 1; attempt <= maxResolveAttempts; attempt++ {
		conv, err := d.store.FindConversation(ctx, caller, other)
		if err == nil {
			if err := d.reveal(ctx, conv.ID, caller); err != nil {
				return model.Conversation{}, err
			}
			return conv, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return model.Conversation{}, apperr.Server("find conversation", err)
		}

		conv, err = d.store.CreateConversation(ctx, caller, other, d.clock.Now())
		if err == nil {
			d.logger.Info("conversation created", "conversation", conv.ID, "a", conv.UserLow, "b", conv.UserHigh)
			return conv, nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return model.Conversation{}, apperr.Server("create conversation", err)
		}
		d.logger.Debug("lost conversation creation race, retrying", "caller", caller, "other", other, "attempt", attempt)
	}
	return model.Conversation{}, apperr.New(apperr.KindConflict, "conversation creation kept conflicting")
}

func (d *Directory) reveal(ctx context.Context, conversationID int64, uid string) error {
	p, err := d.store.Participant(ctx, conversationID, uid)
	if err != nil {
		return apperr.Server("load participant", err)
	}
	next := model.NextVisibility(p.IsVisible, model.ResolvedByOwner)
	if next == p.IsVisible {
		return nil
	}
	if err := d.store.SetVisible(ctx, conversationID, uid, next, d.clock.Now()); err != nil {
		return apperr.Server("reveal conversation", err)
	}
	return nil
}

// Authorize loads the conversation and uid's participant row. A
// conversation uid is not part of is reported as NotFound.
func (d *Directory) Authorize(ctx context.Context, conversationID int64, uid string) (model.Conversation, model.Participant, error) {
	conv, err := d.store.ConversationByID(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Conversation{}, model.Participant{}, apperr.New(apperr.KindNotFound, "conversation not found")
	}
	if err != nil {
		return model.Conversation{}, model.Participant{}, apperr.Server("load conversation", err)
	}
	p, err := d.store.Participant(ctx, conversationID, uid)
	if errors.Is(err, store.ErrNotFound) {
		return model.Conversation{}, model.Participant{}, apperr.New(apperr.KindNotFound, "conversation not found")
	}
	if err != nil {
		return model.Conversation{}, model.Participant{}, apperr.Server("load participant", err)
	}
	return conv, p, nil
}

// Hide removes the conversation from uid's list. The other side is
// unaffected, and the next inbound message brings it back.
func (d *Directory) Hide(ctx context.Context, conversationID int64, uid string) error {
	_, p, err := d.Authorize(ctx, conversationID, uid)
	if err != nil {
		return err
	}
	next := model.NextVisibility(p.IsVisible, model.HiddenByOwner)
	if err := d.store.SetVisible(ctx, conversationID, uid, next, d.clock.Now()); err != nil {
		return apperr.Server("hide conversation", err)
	}
	return nil
}

// ListQuery selects a page of conversations. Since, when set, limits
// the page to conversations changed at or after that millisecond.
type ListQuery struct {
	Since *time.Time
	Skip  int
	Take  int
}

type ListResult struct {
	Items   []model.ConversationItem `json:"items"`
	HasMore bool                     `json:"hasMore"`
	Total   int                      `json:"total"`
}

// ListForUser returns uid's visible conversations, newest activity
// first, each enriched with the other participant's profile and
// presence, the latest message, uid's unread count and the other
// side's read pointer.
func (d *Directory) ListForUser(ctx context.Context, uid string, q ListQuery) (ListResult, error) {
	rows, total, err := d.store.ListConversations(ctx, store.ListFilter{
		UserUID: uid,
		Since:   q.Since,
		Skip:    q.Skip,
		Take:    q.Take,
	})
	if err != nil {
		return ListResult{}, apperr.Server("list conversations", err)
	}

	ids := make([]int64, 0, len(rows))
	others := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.Conversation.ID)
		others = append(others, r.OtherUID)
	}
	latest, err := d.store.LatestMessages(ctx, ids)
	if err != nil {
		return ListResult{}, apperr.Server("latest messages", err)
	}
	profiles, err := d.store.Users(ctx, others)
	if err != nil {
		return ListResult{}, apperr.Server("load profiles", err)
	}

	online := d.onlineAll(ctx, others)

	items := make([]model.ConversationItem, 0, len(rows))
	for i, r := range rows {
		item := model.ConversationItem{
			ID:                     r.Conversation.ID,
			UpdatedAt:              r.UpdatedAt,
			UnreadCount:            r.UnreadCount,
			OtherLastReadMessageID: r.OtherLastReadMessageID,
			OtherOnline:            online[i],
		}
		if u, ok := profiles[r.OtherUID]; ok {
			item.Other = u.Summary()
		} else {
			item.Other = model.UserSummary{UID: r.OtherUID}
		}
		if m, ok := latest[r.Conversation.ID]; ok {
			item.LastMessage = &m
		}
		items = append(items, item)
	}

	return ListResult{
		Items:   items,
		HasMore: q.Skip+q.Take < total,
		Total:   total,
	}, nil
}

// onlineAll looks up every uid concurrently under one shared deadline.
// A failing or slow lookup reads as offline.
func (d *Directory) onlineAll(ctx context.Context, uids []string) []bool {
	online := make([]bool, len(uids))
	if d.presence == nil || len(uids) == 0 {
		return online
	}
	ctx, cancel := context.WithTimeout(ctx, d.presenceTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for i, uid := range uids {
		i, uid := i, uid
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := d.presence.IsOnline(ctx, uid)
			if err != nil {
				d.logger.Warn("presence lookup failed", "uid", uid, "err", err)
				return
			}
			online[i] = ok
		}()
	}
	wg.Wait()
	return online
}
