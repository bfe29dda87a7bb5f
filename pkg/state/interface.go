package state

import (
	"github.com/m-sameh0/go-relay/pkg/transport"
	"github.com/google/uuid"
)

type Manager interface {
	// --- Connection Lifecycle ---
	RegisterConnection(conn *transport.Connection, ipAddr string) (*Connection, error)
	// DeregisterConnection removes the connection and detaches it from its
	// user and from every room it joined.
	DeregisterConnection(connID uuid.UUID) error
	GetConnection(connID uuid.UUID) (*Connection, bool)
	GetAllConnections() []*Connection
	FindOldestUserConnection(userID string) (*Connection, bool)

	// --- User Management ---
	// links a connection to a user, creating the user if they don't exist.
	AssociateUser(connID uuid.UUID, userID string, userType UserType) (*User, error)
	FindUser(userID string) (*User, bool)
	GetUserConnections(userID string) ([]*Connection, error)
	GetUserConnectionCount(userID string) (int, error)

	// --- Room & Membership Management ---
	// adds a connection to a room, creating the room if it doesn't exist.
	// Joining twice with the same connection is a no-op.
	Join(connID uuid.UUID, roomID string) error
	Leave(connID uuid.UUID, roomID string) error
	GetRoomConnections(roomID string) ([]*Connection, error)
	FindRoom(roomID string) (*Room, bool)
}
