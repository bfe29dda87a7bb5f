package event

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/m-sameh0/go-relay/pkg/state"
	"github.com/google/uuid"
)

// Emitter fans envelopes out to live connections. Services depend on this
// interface so tests can record emissions instead of opening sockets.
type Emitter interface {
	// ToRoom sends to every member of a room, skipping the excluded
	// connection (uuid.Nil excludes nobody). An unknown room is a no-op.
	ToRoom(roomID, eventName string, payload any, exclude uuid.UUID)
	// ToConn sends to a single connection.
	ToConn(connID uuid.UUID, eventName string, payload any)
	// Broadcast sends to every live connection.
	Broadcast(eventName string, payload any)
}

// Hub resolves rooms and connections through the state manager.
type Hub struct {
	state  state.Manager
	logger *slog.Logger
}

func NewHub(sm state.Manager, logger *slog.Logger) *Hub {
	return &Hub{
		state:  sm,
		logger: logger.With(slog.String("component", "event_hub")),
	}
}

var _ Emitter = (*Hub)(nil)

func (h *Hub) ToRoom(roomID, eventName string, payload any, exclude uuid.UUID) {
	msg, err := encode(eventName, payload)
	if err != nil {
		h.logger.Error("Failed to encode event", slog.String("event", eventName), slog.Any("error", err))
		return
	}

	conns, err := h.state.GetRoomConnections(roomID)
	if err != nil {
		// The room not existing is a normal case: the audience is simply
		// not connected.
		h.logger.Debug("Could not resolve room to connections", slog.String("roomID", roomID), slog.Any("error", err))
		return
	}

	sent := 0
	for _, conn := range conns {
		if conn.ID == exclude {
			continue
		}
		conn.Transport.Send(msg)
		sent++
	}
	h.logger.Debug("Notified room", slog.String("roomID", roomID), slog.String("event", eventName), slog.Int("connection_count", sent))
}

func (h *Hub) ToConn(connID uuid.UUID, eventName string, payload any) {
	msg, err := encode(eventName, payload)
	if err != nil {
		h.logger.Error("Failed to encode event", slog.String("event", eventName), slog.Any("error", err))
		return
	}

	conn, ok := h.state.GetConnection(connID)
	if !ok {
		h.logger.Debug("Dropped event for unknown connection", slog.String("connID", connID.String()), slog.String("event", eventName))
		return
	}
	conn.Transport.Send(msg)
}

func (h *Hub) Broadcast(eventName string, payload any) {
	msg, err := encode(eventName, payload)
	if err != nil {
		h.logger.Error("Failed to encode event", slog.String("event", eventName), slog.Any("error", err))
		return
	}

	conns := h.state.GetAllConnections()
	for _, conn := range conns {
		conn.Transport.Send(msg)
	}
	h.logger.Debug("Broadcast event", slog.String("event", eventName), slog.Int("connection_count", len(conns)))
}

func encode(eventName string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return json.Marshal(ServerMessage{Event: eventName, Payload: raw})
}
