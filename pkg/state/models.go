package state

import (
	"time"

	"github.com/m-sameh0/go-relay/pkg/transport"
	"github.com/google/uuid"
)

// representation of a single transport-layer connection.
type Connection struct {
	ID        uuid.UUID
	IPAddress string
	Transport *transport.Connection // The actual connection for sending messages
	User      *User                 // Pointer to the owning user (nil until associated)
	Rooms     map[string]*Room      // Rooms this connection has joined, keyed by RoomID
	CreatedAt time.Time
}

// canonical representation of a user, aggregating all their connections.
// A user is online as long as at least one connection remains.
type User struct {
	ID          string
	Type        UserType
	Connections map[uuid.UUID]*Connection // All active connections for this user
}

// a named broadcast group of live connections. Created implicitly on first
// join, removed when the last member leaves.
type Room struct {
	ID      string
	Members map[uuid.UUID]*Connection // Member connections, keyed by connection ID
}
