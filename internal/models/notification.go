package models

import (
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	NotificationPrivate = "private"
	NotificationGroup   = "group"
)

// Notification is the durable record of a message delivery event. It is
// written before fan-out and never mutated afterwards, so an offline
// recipient can pull it on their next login.
type Notification struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"` // recipient
	ChatID     string    `json:"chatId"`
	SenderID   string    `json:"senderId"`
	SenderType string    `json:"senderType"`
	Message    string    `json:"message"`
	Type       string    `json:"type"` // "private" or "group"
	CreatedAt  time.Time `json:"createdAt"`
}

// NewNotificationID returns a lexicographically sortable id so store
// listings come back in creation order.
func NewNotificationID() string {
	return ulid.Make().String()
}
