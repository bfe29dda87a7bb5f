package store

import (
	"context"
	"errors"

	"github.com/m-sameh0/go-relay/internal/models"
)

// ErrNotFound is returned when a presence record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the durable backend consumed by the presence and chat services.
// Both SQLiteStore and RedisStore implement this interface.
type Store interface {
	// Connection management
	Close() error
	Ping(ctx context.Context) error

	// Presence operations
	UpsertPresence(ctx context.Context, p *models.Presence) error
	GetPresence(ctx context.Context, userID string) (*models.Presence, error)

	// Notification operations
	CreateNotification(ctx context.Context, n *models.Notification) error
	CreateNotifications(ctx context.Context, ns []*models.Notification) error
	NotificationsForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
}
