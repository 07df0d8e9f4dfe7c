// Package chat is the entry point of the direct-messaging core. Every
// operation checks the system switch and the caller first, then
// composes policy, directory, ledger, read state and notification.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"privmsg/internal/apperr"
	"privmsg/internal/clock"
	"privmsg/internal/directory"
	"privmsg/internal/ledger"
	"privmsg/internal/model"
	"privmsg/internal/notify"
	"privmsg/internal/policy"
	"privmsg/internal/readstate"
	"privmsg/internal/store"
)

const (
	searchLimit = 20
	maxTake     = 100

	// pollLag moves the poll cursor back far enough to cover a send
	// whose row was stamped before the poll but committed after it.
	pollLag = 5 * time.Second
)

type Store interface {
	User(ctx context.Context, uid string) (model.User, error)
	SearchUsers(ctx context.Context, f store.UserSearch) ([]model.User, error)
	Tx(ctx context.Context, fn func(tx *store.Store) error) error
}

type Notifier interface {
	Dispatch(ctx context.Context, d notify.Delivery) notify.Outcome
}

type NoticeLister interface {
	List(ctx context.Context, uid string, limit int) ([]model.Notice, error)
}

// Deps wires a Service.
type Deps struct {
	Store     Store
	Policy    *policy.Policy
	Directory *directory.Directory
	Ledger    *ledger.Ledger
	Reads     *readstate.Tracker
	Notifier  Notifier
	Notices   NoticeLister
	Clock     clock.Clock
	Logger    *log.Logger
}

type Service struct {
	store     Store
	policy    *policy.Policy
	directory *directory.Directory
	ledger    *ledger.Ledger
	reads     *readstate.Tracker
	notifier  Notifier
	notices   NoticeLister
	clock     clock.Clock
	logger    *log.Logger
}

// New creates a Service from d.
func New(d Deps) *Service {
	return &Service{
		store:     d.Store,
		policy:    d.Policy,
		directory: d.Directory,
		ledger:    d.Ledger,
		reads:     d.Reads,
		notifier:  d.Notifier,
		notices:   d.Notices,
		clock:     d.Clock,
		logger:    d.Logger.With("component", "chat"),
	}
}

// begin runs the checks shared by every entry point.
func (s *Service) begin(ctx context.Context, caller model.Caller) error {
	if err := s.policy.SystemEnabled(ctx); err != nil {
		return err
	}
	if caller.UID == "" {
		return apperr.ErrUnauthenticated
	}
	return nil
}

// Connect admits caller to the realtime channel.
func (s *Service) Connect(ctx context.Context, caller model.Caller) error {
	return s.begin(ctx, caller)
}

// SendInput is a message to send. TempID is the client's own handle for
// the optimistic copy it shows; it is echoed back untouched.
type SendInput struct {
	RecipientUID string `json:"recipientUid"`
	Content      string `json:"content"`
	TempID       string `json:"tempId,omitempty"`
}

type SendResult struct {
	Message        model.Message `json:"message"`
	ConversationID int64         `json:"conversationId"`
	TempID         string        `json:"tempId,omitempty"`
}

// Send persists a message from caller to in.RecipientUID, creating the
// conversation on first contact, then notifies the recipient. The
// notification never fails the send.
func (s *Service) Send(ctx context.Context, caller model.Caller, in SendInput) (SendResult, error) {
	if err := s.begin(ctx, caller); err != nil {
		return SendResult{}, err
	}
	recipient, err := s.recipient(ctx, caller, in.RecipientUID)
	if err != nil {
		return SendResult{}, err
	}
	if strings.TrimSpace(in.Content) == "" {
		return SendResult{}, apperr.New(apperr.KindInvalidRequest, "content is required")
	}
	if err := s.policy.Check(ctx, caller.Role, recipient.Role).Err(); err != nil {
		return SendResult{}, err
	}

	conv, err := s.directory.ResolveOrCreate(ctx, caller.UID, recipient.UID)
	if err != nil {
		return SendResult{}, err
	}

	var msg model.Message
	err = s.store.Tx(ctx, func(tx *store.Store) error {
		m, err := s.ledger.With(tx).Append(ctx, conv.ID, caller.UID, in.Content)
		if err != nil {
			return err
		}
		if err := s.reads.With(tx).OnAppend(ctx, m, recipient.UID); err != nil {
			return err
		}
		msg = m
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindServer {
			s.logger.Error("send failed", "conversation", conv.ID, "sender", caller.UID, "err", err)
		}
		return SendResult{}, err
	}

	s.notify(ctx, msg, caller, recipient.UID)

	return SendResult{Message: msg, ConversationID: conv.ID, TempID: in.TempID}, nil
}

// recipient validates the other side of a send or permission preview.
func (s *Service) recipient(ctx context.Context, caller model.Caller, uid string) (model.User, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return model.User{}, apperr.New(apperr.KindInvalidRequest, "recipientUid is required")
	}
	if uid == caller.UID {
		return model.User{}, apperr.New(apperr.KindInvalidRequest, "cannot message yourself")
	}
	u, err := s.store.User(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return model.User{}, apperr.New(apperr.KindNotFound, "recipient not found")
	}
	if err != nil {
		return model.User{}, apperr.Server("load recipient", err)
	}
	return u, nil
}

func (s *Service) notify(ctx context.Context, msg model.Message, caller model.Caller, recipientUID string) {
	// The send already committed; a client hanging up must not cut
	// the notification short.
	ctx = context.WithoutCancel(ctx)

	sender, err := s.store.User(ctx, caller.UID)
	if err != nil {
		s.logger.Warn("sender profile unavailable", "uid", caller.UID, "err", err)
		sender = model.User{UID: caller.UID, Role: caller.Role}
	}
	outcome := s.notifier.Dispatch(ctx, notify.Delivery{
		Message:      msg,
		Sender:       sender,
		RecipientUID: recipientUID,
	})
	s.logger.Debug("recipient notified", "message", msg.ID, "recipient", recipientUID, "outcome", outcome)
}

// ConversationList is a page of the caller's conversations. PolledAt is
// the cursor to pass as Since on the next incremental poll. It trails
// the server clock, so a poll may repeat recent items but never skips
// one.
type ConversationList struct {
	directory.ListResult
	PolledAt time.Time `json:"polledAt"`
}

// ListConversations returns a page of the caller's visible
// conversations and the cursor for the next poll.
func (s *Service) ListConversations(ctx context.Context, caller model.Caller, q directory.ListQuery) (ConversationList, error) {
	if err := s.begin(ctx, caller); err != nil {
		return ConversationList{}, err
	}
	polledAt := s.clock.Now().UTC().Add(-pollLag).Truncate(time.Millisecond)
	q.Skip, q.Take = clampPage(q.Skip, q.Take)
	res, err := s.directory.ListForUser(ctx, caller.UID, q)
	if err != nil {
		return ConversationList{}, err
	}
	return ConversationList{ListResult: res, PolledAt: polledAt}, nil
}

// ListMessages returns a chronological page of history. Reading the
// newest page marks the conversation read.
func (s *Service) ListMessages(ctx context.Context, caller model.Caller, conversationID int64, skip, take int) (ledger.Page, error) {
	if err := s.begin(ctx, caller); err != nil {
		return ledger.Page{}, err
	}
	conv, _, err := s.directory.Authorize(ctx, conversationID, caller.UID)
	if err != nil {
		return ledger.Page{}, err
	}
	skip, take = clampPage(skip, take)
	page, err := s.ledger.Page(ctx, conversationID, skip, take)
	if err != nil {
		return ledger.Page{}, err
	}
	if _, err := s.reads.OnPage(ctx, conversationID, caller.UID, conv.Other(caller.UID), skip, page.Messages); err != nil {
		return ledger.Page{}, err
	}
	return page, nil
}

func clampPage(skip, take int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	take = max(1, min(take, maxTake))
	return skip, take
}

// MarkRead moves the caller's read pointer to the newest message.
func (s *Service) MarkRead(ctx context.Context, caller model.Caller, conversationID int64) error {
	if err := s.begin(ctx, caller); err != nil {
		return err
	}
	conv, _, err := s.directory.Authorize(ctx, conversationID, caller.UID)
	if err != nil {
		return err
	}
	latest, ok, err := s.ledger.Latest(ctx, conversationID)
	if err != nil || !ok {
		return err
	}
	_, err = s.reads.MarkRead(ctx, conversationID, caller.UID, conv.Other(caller.UID), latest.ID)
	return err
}

// DeleteConversation hides the conversation for the caller only.
func (s *Service) DeleteConversation(ctx context.Context, caller model.Caller, conversationID int64) error {
	if err := s.begin(ctx, caller); err != nil {
		return err
	}
	return s.directory.Hide(ctx, conversationID, caller.UID)
}

// SearchUsers finds users the caller is currently allowed to message.
func (s *Service) SearchUsers(ctx context.Context, caller model.Caller, query string) ([]model.UserSummary, error) {
	if err := s.begin(ctx, caller); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	out := []model.UserSummary{}
	if query == "" {
		return out, nil
	}
	users, err := s.store.SearchUsers(ctx, store.UserSearch{
		Query:   query,
		Exclude: caller.UID,
		Roles:   s.policy.ReachableRoles(ctx, caller.Role),
		Limit:   searchLimit,
	})
	if err != nil {
		return nil, apperr.Server("search users", err)
	}
	for _, u := range users {
		out = append(out, u.Summary())
	}
	return out, nil
}

// CheckPermission previews whether caller may message recipientUID.
func (s *Service) CheckPermission(ctx context.Context, caller model.Caller, recipientUID string) (policy.Decision, error) {
	if err := s.begin(ctx, caller); err != nil {
		return policy.Decision{}, err
	}
	recipient, err := s.recipient(ctx, caller, recipientUID)
	if err != nil {
		return policy.Decision{}, err
	}
	return s.policy.Check(ctx, caller.Role, recipient.Role), nil
}

// Notices returns the caller's newest inbox notices.
func (s *Service) Notices(ctx context.Context, caller model.Caller, limit int) ([]model.Notice, error) {
	if err := s.begin(ctx, caller); err != nil {
		return nil, err
	}
	notices, err := s.notices.List(ctx, caller.UID, limit)
	if err != nil {
		return nil, apperr.Server("list notices", err)
	}
	if notices == nil {
		notices = []model.Notice{}
	}
	return notices, nil
}
