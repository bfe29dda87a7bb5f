package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m-sameh0/go-relay/internal/call"
	"github.com/m-sameh0/go-relay/internal/chat"
	"github.com/m-sameh0/go-relay/internal/metrics"
	"github.com/m-sameh0/go-relay/internal/presence"
	"github.com/m-sameh0/go-relay/pkg/state"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

var errUnknownEvent = errors.New("unknown event")

// EventRouter decodes inbound frames once at the transport boundary and
// hands each handler a typed payload. A handler error is logged and the
// loop continues; nothing here may take the process down.
type EventRouter struct {
	logger   *slog.Logger
	presence *presence.Service
	chat     *chat.Service
	call     *call.Service
}

func NewEventRouter(logger *slog.Logger, ps *presence.Service, cs *chat.Service, calls *call.Service) *EventRouter {
	return &EventRouter{
		logger:   logger.With(slog.String("component", "event_router")),
		presence: ps,
		chat:     cs,
		call:     calls,
	}
}

// HandleMessage is the transport's message callback.
func (r *EventRouter) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	var clientMsg ClientMessage
	if err := json.Unmarshal(msg, &clientMsg); err != nil {
		r.logger.Warn("Failed to unmarshal client message", slog.String("connID", connID.String()), slog.Any("error", err))
		return
	}

	err := r.dispatch(ctx, connID, clientMsg)
	if errors.Is(err, errUnknownEvent) {
		r.logger.Warn("Received unknown event", slog.String("event", clientMsg.Event), slog.String("connID", connID.String()))
		return
	}
	metrics.EventsReceived.WithLabelValues(clientMsg.Event).Inc()
	if err != nil {
		r.logger.Error("Event handler failed",
			slog.String("event", clientMsg.Event),
			slog.String("connID", connID.String()),
			slog.Any("error", err),
		)
	}
}

func (r *EventRouter) dispatch(ctx context.Context, connID uuid.UUID, m ClientMessage) error {
	switch m.Event {
	case evJoinChat, evJoinRooms:
		userID, err := requireField(m.Payload, "userId")
		if err != nil {
			return err
		}
		return r.presence.JoinPersonalRoom(connID, userID)
	case evLeaveChat:
		userID, err := requireField(m.Payload, "userId")
		if err != nil {
			return err
		}
		return r.presence.LeavePersonalRoom(connID, userID)
	case evUserConnected:
		userID := stringField(m.Payload, "userId")
		userType := gjson.GetBytes(m.Payload, "userType").String()
		if userID == "" {
			return errors.New("user_connected payload missing userId")
		}
		return r.presence.RegisterIdentity(ctx, connID, userID, state.UserType(userType))
	case evPrivateMessage:
		return r.chat.RoutePrivateMessage(ctx, connID, m.Payload)
	case evTyping:
		return r.chat.RouteTypingIndicator(connID, m.Payload)
	case evJoinGroup:
		groupID, err := requireField(m.Payload, "groupId")
		if err != nil {
			return err
		}
		return r.chat.JoinGroup(connID, groupID)
	case evGroupMessage:
		return r.chat.RouteGroupMessage(ctx, connID, m.Payload)
	case evJoinNotifications:
		userID, err := requireField(m.Payload, "userId")
		if err != nil {
			return err
		}
		return r.chat.JoinNotifications(connID, userID)
	case evCallUser:
		var req call.Request
		if err := decode(m.Payload, &req); err != nil {
			return err
		}
		return r.call.PlaceCall(connID, req)
	case evCallAccepted, evCallAnswered:
		var ans call.Answer
		if err := decode(m.Payload, &ans); err != nil {
			return err
		}
		return r.call.Accept(connID, ans)
	case evCallRejected:
		var ctl call.Control
		if err := decode(m.Payload, &ctl); err != nil {
			return err
		}
		return r.call.Reject(connID, ctl)
	case evEndCall:
		var ctl call.Control
		if err := decode(m.Payload, &ctl); err != nil {
			return err
		}
		return r.call.End(connID, ctl)
	case evIceCandidate:
		var c call.Candidate
		if err := decode(m.Payload, &c); err != nil {
			return err
		}
		return r.call.RelayIceCandidate(connID, c)
	case evJoinProject:
		projectID, err := requireField(m.Payload, "projectId")
		if err != nil {
			return err
		}
		return r.chat.JoinRoom(connID, projectID)
	case evJoinTask:
		taskID, err := requireField(m.Payload, "taskId")
		if err != nil {
			return err
		}
		return r.chat.JoinRoom(connID, taskID)
	case evNewMessage:
		return r.chat.BroadcastToRoom(evNewMessage, "projectId", m.Payload)
	case evNewTaskMessage:
		return r.chat.BroadcastToRoom(evNewTaskMessage, "taskId", m.Payload)
	default:
		return errUnknownEvent
	}
}

func decode(payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	return nil
}

// stringField reads a field from the payload. Older clients send the bare
// id instead of an object, so a plain JSON string resolves to itself.
func stringField(payload json.RawMessage, field string) string {
	parsed := gjson.ParseBytes(payload)
	if parsed.Type == gjson.String {
		return parsed.String()
	}
	return parsed.Get(field).String()
}

func requireField(payload json.RawMessage, field string) (string, error) {
	v := stringField(payload, field)
	if v == "" {
		return "", fmt.Errorf("payload missing required field %q", field)
	}
	return v, nil
}
