package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m-sameh0/go-relay/internal/event"
	"github.com/m-sameh0/go-relay/internal/metrics"
	"github.com/m-sameh0/go-relay/internal/models"
	"github.com/m-sameh0/go-relay/internal/store"
	"github.com/m-sameh0/go-relay/pkg/state"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

const (
	fallbackPrivateText = "New message received"
	fallbackGroupText   = "New group message"
)

var errMissingCorrelationID = errors.New("message payload missing sender or receiver id")

// NotificationRoom names the per-user notification channel.
func NotificationRoom(userID string) string {
	return "notifications_" + userID
}

// Service delivers chat content to its audience and guarantees every
// recipient gets a durable notification record before any fan-out happens.
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
		logger: logger.With(slog.String("component", "chat")),
	}
}

// RoutePrivateMessage handles the private_message event. The notification
// write is the durability guarantee; if it fails the delivery is aborted,
// never degraded to fan-out-only. Delivery to an offline receiver succeeds
// silently: the notification is durable and the client pulls it on its next
// login.
func (s *Service) RoutePrivateMessage(ctx context.Context, origin uuid.UUID, payload json.RawMessage) error {
	receiverID := gjson.GetBytes(payload, "receiverId").String()
	message := gjson.GetBytes(payload, "message")
	senderID := message.Get("senderId").String()
	if receiverID == "" || senderID == "" {
		return errMissingCorrelationID
	}

	text := message.Get("message").String()
	if text == "" {
		text = fallbackPrivateText
	}

	notification := &models.Notification{
		ID:         models.NewNotificationID(),
		UserID:     receiverID,
		ChatID:     message.Get("_id").String(),
		SenderID:   senderID,
		SenderType: message.Get("senderType").String(),
		Message:    text,
		Type:       models.NotificationPrivate,
		CreatedAt:  time.Now(),
	}
	if err := s.store.CreateNotification(ctx, notification); err != nil {
		metrics.StoreWriteFailures.WithLabelValues("notification").Inc()
		return fmt.Errorf("failed to persist notification: %w", err)
	}
	metrics.NotificationsCreated.Inc()

	rawMessage := json.RawMessage(message.Raw)
	s.hub.ToRoom(receiverID, event.ReceiveMessage, rawMessage, uuid.Nil)
	s.hub.ToRoom(NotificationRoom(receiverID), event.NewNotification, notification, uuid.Nil)
	s.hub.ToConn(origin, event.MessageSent, rawMessage)

	metrics.MessagesDelivered.WithLabelValues("private").Inc()
	return nil
}

// RouteGroupMessage handles the group_message event: one notification per
// member excluding the sender, bulk-persisted, then one new_notification per
// member plus a single receive_group_message broadcast to the group room.
// The sender stays in the room for the broadcast itself.
func (s *Service) RouteGroupMessage(ctx context.Context, origin uuid.UUID, payload json.RawMessage) error {
	groupID := gjson.GetBytes(payload, "groupId").String()
	senderID := gjson.GetBytes(payload, "senderId").String()
	if groupID == "" || senderID == "" {
		return errMissingCorrelationID
	}

	senderUserID := gjson.GetBytes(payload, "senderDetails.userId").String()
	if senderUserID == "" {
		senderUserID = senderID
	}

	message := gjson.GetBytes(payload, "message")
	text := message.String()
	if text == "" {
		text = fallbackGroupText
	}
	chatID := gjson.GetBytes(payload, "_id").String()
	senderType := gjson.GetBytes(payload, "senderType").String()

	var notifications []*models.Notification
	now := time.Now()
	gjson.GetBytes(payload, "members").ForEach(func(_, member gjson.Result) bool {
		memberID := member.Get("userId").String()
		if memberID == "" || memberID == senderUserID {
			return true
		}
		notifications = append(notifications, &models.Notification{
			ID:         models.NewNotificationID(),
			UserID:     memberID,
			ChatID:     chatID,
			SenderID:   senderID,
			SenderType: senderType,
			Message:    text,
			Type:       models.NotificationGroup,
			CreatedAt:  now,
		})
		return true
	})

	if err := s.store.CreateNotifications(ctx, notifications); err != nil {
		metrics.StoreWriteFailures.WithLabelValues("notification").Inc()
		return fmt.Errorf("failed to persist group notifications: %w", err)
	}
	metrics.NotificationsCreated.Add(float64(len(notifications)))

	for _, n := range notifications {
		s.hub.ToRoom(NotificationRoom(n.UserID), event.NewNotification, n, uuid.Nil)
	}
	// The room hears only the message content, not the routing envelope
	// (groupId, members, senderDetails).
	broadcastPayload := any(json.RawMessage(message.Raw))
	if !message.Exists() {
		broadcastPayload = text
	}
	s.hub.ToRoom(groupID, event.ReceiveGroupMessage, broadcastPayload, uuid.Nil)

	metrics.MessagesDelivered.WithLabelValues("group").Inc()
	return nil
}

// RouteTypingIndicator relays a typing status to the receiver, excluding the
// typist's own connection. Fire-and-forget: no persistence, no ack, stale
// indicators are simply superseded by newer ones.
func (s *Service) RouteTypingIndicator(origin uuid.UUID, payload json.RawMessage) error {
	receiverID := gjson.GetBytes(payload, "receiverId").String()
	if receiverID == "" {
		return errMissingCorrelationID
	}
	s.hub.ToRoom(receiverID, event.UserTyping, payload, origin)
	return nil
}

// JoinGroup subscribes the connection to a group chat room.
func (s *Service) JoinGroup(connID uuid.UUID, groupID string) error {
	return s.state.Join(connID, groupID)
}

// JoinNotifications subscribes the connection to its notification channel.
func (s *Service) JoinNotifications(connID uuid.UUID, userID string) error {
	return s.state.Join(connID, NotificationRoom(userID))
}

// JoinRoom subscribes the connection to a generic entity room (project,
// task) named by its raw id.
func (s *Service) JoinRoom(connID uuid.UUID, roomID string) error {
	return s.state.Join(connID, roomID)
}

// BroadcastToRoom relays a generic room message (project/task chatter): the
// room id is read from the named payload field and the payload is echoed to
// every member under the same event name.
func (s *Service) BroadcastToRoom(eventName, roomField string, payload json.RawMessage) error {
	roomID := gjson.GetBytes(payload, roomField).String()
	if roomID == "" {
		return fmt.Errorf("payload missing room field %q", roomField)
	}
	s.hub.ToRoom(roomID, eventName, payload, uuid.Nil)
	return nil
}
