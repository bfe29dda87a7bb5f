package event

import "encoding/json"

// Outbound event names. The set is closed: handlers emit only these.
const (
	UserStatusChanged   = "user_status_changed"
	ReceiveMessage      = "receive_message"
	NewNotification     = "new_notification"
	MessageSent         = "message_sent"
	UserTyping          = "user_typing"
	ReceiveGroupMessage = "receive_group_message"
	IncomingCall        = "incoming-call"
	CallAccepted        = "call-accepted"
	CallRejected        = "call-rejected"
	CallEnded           = "call-ended"
	CallFailed          = "call-failed"
	IceCandidate        = "ice-candidate"
)

// ServerMessage is the envelope written to clients.
type ServerMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}
