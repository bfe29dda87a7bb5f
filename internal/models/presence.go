package models

import "time"

// Presence is the durable mirror of a user's latest known online state. It
// survives process restarts; the live connection set does not.
type Presence struct {
	UserID   string    `json:"userId"`
	UserType string    `json:"userType"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}
