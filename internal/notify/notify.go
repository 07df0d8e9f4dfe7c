// Package notify decides how the recipient of a new message hears
// about it: a realtime push when online, an asynchronous notice
// otherwise, and nothing while the recipient's throttle window is open.
package notify

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"privmsg/internal/clock"
	"privmsg/internal/model"
)

// Outcome is what Dispatch did for one message.
type Outcome int

const (
	Throttled Outcome = iota
	Pushed
	Noticed
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Throttled:
		return "throttled"
	case Pushed:
		return "pushed"
	case Noticed:
		return "noticed"
	default:
		return "failed"
	}
}

// Delivery is one message to announce to its recipient.
type Delivery struct {
	Message      model.Message
	Sender       model.User
	RecipientUID string
}

// Strategy delivers a notification one way.
type Strategy interface {
	Deliver(ctx context.Context, d Delivery) error
}

type Store interface {
	ClaimNotification(ctx context.Context, conversationID int64, uid string, now time.Time, window time.Duration) (bool, error)
	TotalUnread(ctx context.Context, uid string) (int, error)
}

type Presence interface {
	IsOnline(ctx context.Context, uid string) (bool, error)
}

// Options configures a Dispatcher.
type Options struct {
	// Window is the minimum interval between two notifications to
	// the same recipient in the same conversation.
	Window time.Duration
	// Timeout bounds the presence lookup and the delivery together.
	Timeout time.Duration
	// Realtime is false when the realtime transport is disabled
	// system-wide; every notification then goes out as a notice.
	Realtime bool
}

type Dispatcher struct {
	store    Store
	presence Presence
	push     Strategy
	notice   Strategy
	clock    clock.Clock
	opts     Options
	logger   *log.Logger
}

// NewDispatcher creates a Dispatcher that pushes to online recipients
// and falls back to notice otherwise.
func NewDispatcher(st Store, presence Presence, push, notice Strategy, clk clock.Clock, opts Options, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		store:    st,
		presence: presence,
		push:     push,
		notice:   notice,
		clock:    clk,
		opts:     opts,
		logger:   logger.With("component", "notify"),
	}
}

// Dispatch notifies d.RecipientUID about d.Message. Failures are logged
// and reported through the Outcome only; the message is already
// persisted and nothing here may undo that.
func (n *Dispatcher) Dispatch(ctx context.Context, d Delivery) Outcome {
	conversationID := d.Message.ConversationID
	claimed, err := n.store.ClaimNotification(ctx, conversationID, d.RecipientUID, n.clock.Now(), n.opts.Window)
	if err != nil {
		n.logger.Error("throttle claim failed", "conversation", conversationID, "recipient", d.RecipientUID, "err", err)
		return Failed
	}
	if !claimed {
		n.logger.Debug("notification throttled", "conversation", conversationID, "recipient", d.RecipientUID)
		return Throttled
	}

	ctx, cancel := context.WithTimeout(ctx, n.opts.Timeout)
	defer cancel()

	if n.online(ctx, d.RecipientUID) {
		err := n.push.Deliver(ctx, d)
		if err == nil {
			return Pushed
		}
		n.logger.Warn("push failed, falling back to notice", "recipient", d.RecipientUID, "err", err)
	}

	if err := n.notice.Deliver(ctx, d); err != nil {
		n.logger.Error("notice delivery failed", "recipient", d.RecipientUID, "message", d.Message.ID, "err", err)
		return Failed
	}
	return Noticed
}

func (n *Dispatcher) online(ctx context.Context, uid string) bool {
	if !n.opts.Realtime || n.presence == nil {
		return false
	}
	online, err := n.presence.IsOnline(ctx, uid)
	if err != nil {
		n.logger.Warn("presence lookup failed", "uid", uid, "err", err)
		return false
	}
	return online
}
