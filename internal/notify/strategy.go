package notify

import (
	"context"
	"fmt"
	"unicode/utf8"

	"privmsg/internal/model"
)

// previewRunes is how much of a message a notice shows.
const previewRunes = 20

// Publisher pushes an event to every live connection of uid.
type Publisher interface {
	Publish(ctx context.Context, uid string, event any) error
}

// Sender delivers an asynchronous notice.
type Sender interface {
	Send(ctx context.Context, uid, title, body, linkPath string) error
}

// UnreadCounter sums a user's unread counters.
type UnreadCounter interface {
	TotalUnread(ctx context.Context, uid string) (int, error)
}

// Push delivers a new_private_message event carrying the recipient's
// total unread count across all conversations.
type Push struct {
	publisher Publisher
	unread    UnreadCounter
}

// NewPush creates the realtime strategy.
func NewPush(publisher Publisher, unread UnreadCounter) *Push {
	return &Push{publisher: publisher, unread: unread}
}

func (p *Push) Deliver(ctx context.Context, d Delivery) error {
	total, err := p.unread.TotalUnread(ctx, d.RecipientUID)
	if err != nil {
		return fmt.Errorf("push: total unread: %w", err)
	}
	event := model.NewMessageEvent{
		Type:             model.EventNewPrivateMessage,
		ConversationID:   d.Message.ConversationID,
		Message:          d.Message,
		Sender:           d.Sender.Summary(),
		TotalUnreadCount: total,
	}
	if err := p.publisher.Publish(ctx, d.RecipientUID, event); err != nil {
		return fmt.Errorf("push: publish: %w", err)
	}
	return nil
}

// Notice delivers a titled notice with a short preview and a link to
// the conversation.
type Notice struct {
	sender Sender
}

// NewNotice creates the inbox strategy.
func NewNotice(sender Sender) *Notice {
	return &Notice{sender: sender}
}

func (n *Notice) Deliver(ctx context.Context, d Delivery) error {
	name := d.Sender.Name
	if name == "" {
		name = d.Sender.UID
	}
	return n.sender.Send(ctx, d.RecipientUID, Title(name), Preview(d.Message.Content), LinkPath(d.Message.ConversationID))
}

// Title is the notice headline for a message from sender.
func Title(sender string) string {
	return sender + " messaged you"
}

// Preview cuts content to its first 20 characters, adding "..." when
// anything was cut.
func Preview(content string) string {
	if utf8.RuneCountInString(content) <= previewRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewRunes]) + "..."
}

// LinkPath deep-links to a conversation in the web UI.
func LinkPath(conversationID int64) string {
	return fmt.Sprintf("/messages?conversation=%d", conversationID)
}
