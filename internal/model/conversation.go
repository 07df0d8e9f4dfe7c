package model

import "time"

// Conversation is the durable pairwise thread between two users.
// UserLow/UserHigh hold the participants in sorted order.
type Conversation struct {
	ID            int64     `json:"id"`
	UserLow       string    `json:"-"`
	UserHigh      string    `json:"-"`
	LastMessageID *int64    `json:"lastMessageId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Other returns the participant that is not uid.
func (c Conversation) Other(uid string) string {
	if c.UserLow == uid {
		return c.UserHigh
	}
	return c.UserLow
}

// Pair orders two uids so that the same two users always produce the
// same key regardless of who initiates.
func Pair(a, b string) (low, high string) {
	if a < b {
		return a, b
	}
	return b, a
}

// Participant is one user's per-conversation state.
type Participant struct {
	ConversationID    int64      `json:"conversationId"`
	UserUID           string     `json:"userUid"`
	UnreadCount       int        `json:"unreadCount"`
	IsVisible         bool       `json:"isVisible"`
	LastReadMessageID *int64     `json:"lastReadMessageId,omitempty"`
	LastMessageAt     *time.Time `json:"lastMessageAt,omitempty"`
	LastNotifiedAt    *time.Time `json:"lastNotifiedAt,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// ConversationItem is a conversation as listed for one user.
type ConversationItem struct {
	ID                     int64       `json:"id"`
	UpdatedAt              time.Time   `json:"updatedAt"`
	Other                  UserSummary `json:"other"`
	OtherOnline            bool        `json:"otherOnline"`
	LastMessage            *Message    `json:"lastMessage,omitempty"`
	UnreadCount            int         `json:"unreadCount"`
	OtherLastReadMessageID *int64      `json:"otherLastReadMessageId,omitempty"`
}
