package presence

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-sameh0/go-relay/internal/event"
	"github.com/m-sameh0/go-relay/internal/metrics"
	"github.com/m-sameh0/go-relay/internal/models"
	"github.com/m-sameh0/go-relay/internal/store"
	"github.com/m-sameh0/go-relay/pkg/state"
	"github.com/google/uuid"
)

// StatusChange is the payload of the user_status_changed broadcast.
type StatusChange struct {
	UserID   string    `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

// Service tracks identity-to-connection liveness. The in-memory state
// manager is the source of truth for live connections; the store mirrors the
// latest known state per user so presence survives process restarts.
type Service struct {
	state  state.Manager
	store  store.Store
	hub    event.Emitter
	logger *slog.Logger
}

func NewService(sm state.Manager, st store.Store, hub event.Emitter, logger *slog.Logger) *Service {
	return &Service{
		state:  sm,
		store:  st,
		hub:    hub,
		logger: logger.With(slog.String("component", "presence")),
	}
}

// RegisterIdentity links the connection to the user, mirrors the online
// state durably, and broadcasts the status change. Called once per
// user_connected event; a user connecting from a second device goes through
// here again without disturbing the first device's liveness.
func (s *Service) RegisterIdentity(ctx context.Context, connID uuid.UUID, userID string, userType state.UserType) error {
	if _, err := s.state.AssociateUser(connID, userID, userType); err != nil {
		return err
	}

	now := time.Now()
	s.persist(ctx, &models.Presence{
		UserID:   userID,
		UserType: string(userType),
		IsOnline: true,
		LastSeen: now,
	})

	s.hub.Broadcast(event.UserStatusChanged, StatusChange{
		UserID:   userID,
		IsOnline: true,
		LastSeen: now,
	})
	return nil
}

// MarkDisconnected is invoked from the transport close hook, before the
// connection is deregistered. Disconnect of a connection that never
// identified itself is not an error. The user only goes offline when their
// last connection drops; closing one of several devices just refreshes
// lastSeen.
func (s *Service) MarkDisconnected(ctx context.Context, connID uuid.UUID) {
	conn, ok := s.state.GetConnection(connID)
	if !ok || conn.User == nil {
		return
	}
	user := conn.User

	count, err := s.state.GetUserConnectionCount(user.ID)
	if err != nil {
		s.logger.Error("Failed to count user connections", slog.String("userID", user.ID), slog.Any("error", err))
		return
	}
	// This connection is still registered at this point.
	stillOnline := count > 1

	now := time.Now()
	s.persist(ctx, &models.Presence{
		UserID:   user.ID,
		UserType: string(user.Type),
		IsOnline: stillOnline,
		LastSeen: now,
	})

	if !stillOnline {
		s.hub.Broadcast(event.UserStatusChanged, StatusChange{
			UserID:   user.ID,
			IsOnline: false,
			LastSeen: now,
		})
	}
}

// JoinPersonalRoom subscribes the connection to the room named after the
// user id, the addressing target for direct delivery. Idempotent.
func (s *Service) JoinPersonalRoom(connID uuid.UUID, userID string) error {
	return s.state.Join(connID, userID)
}

// LeavePersonalRoom unsubscribes the connection from its personal room.
func (s *Service) LeavePersonalRoom(connID uuid.UUID, userID string) error {
	return s.state.Leave(connID, userID)
}

// persist mirrors presence durably. Presence tracking is best-effort: a
// failing store write is logged and swallowed so it can never block
// delivery or kill the event loop.
func (s *Service) persist(ctx context.Context, p *models.Presence) {
	if err := s.store.UpsertPresence(ctx, p); err != nil {
		metrics.StoreWriteFailures.WithLabelValues("presence").Inc()
		s.logger.Warn("Failed to persist presence",
			slog.String("userID", p.UserID),
			slog.Bool("isOnline", p.IsOnline),
			slog.Any("error", err),
		)
	}
}
