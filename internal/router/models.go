package router

import "encoding/json"

// ClientMessage is the envelope every inbound frame must carry.
type ClientMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Inbound event names. Dispatch is a closed set: anything else is logged
// and dropped.
const (
	evJoinChat          = "join_chat"
	evJoinRooms         = "join_rooms"
	evLeaveChat         = "leave_chat"
	evUserConnected     = "user_connected"
	evPrivateMessage    = "private_message"
	evTyping            = "typing"
	evJoinGroup         = "join_group"
	evGroupMessage      = "group_message"
	evJoinNotifications = "join_notifications"
	evCallUser          = "call-user"
	evCallAccepted      = "call-accepted"
	evCallAnswered      = "call-answered" // legacy alias for call-accepted
	evCallRejected      = "call-rejected"
	evEndCall           = "end-call"
	evIceCandidate      = "ice-candidate"
	evJoinProject       = "join project"
	evJoinTask          = "join task"
	evNewMessage        = "new message"
	evNewTaskMessage    = "new task message"
)
