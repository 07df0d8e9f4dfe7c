package model

import "time"

// MessageTypeText is the only message type this service produces.
const MessageTypeText = "TEXT"

// Message represents a direct message inside a conversation
type Message struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversationId"`
	SenderUID      string     `json:"senderUid"`
	Content        string     `json:"content"`
	Type           string     `json:"type"`
	CreatedAt      time.Time  `json:"createdAt"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
}

// NewMessageEvent is pushed to an online recipient over the realtime channel
type NewMessageEvent struct {
	Type             string      `json:"type"`
	ConversationID   int64       `json:"conversationId"`
	Message          Message     `json:"message"`
	Sender           UserSummary `json:"sender"`
	TotalUnreadCount int         `json:"totalUnreadCount"`
}

// EventNewPrivateMessage is the realtime event type for NewMessageEvent
const EventNewPrivateMessage = "new_private_message"
