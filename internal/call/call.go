package call

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/m-sameh0/go-relay/internal/event"
	"github.com/m-sameh0/go-relay/internal/metrics"
	"github.com/m-sameh0/go-relay/pkg/state"
	"github.com/google/uuid"
)

// SessionState tracks where a call attempt is in its lifecycle. Rejected,
// ended, failed and timed-out sessions are deleted rather than kept in a
// terminal state, so a dead callRoomId can never transition again.
type SessionState int

const (
	StateRinging SessionState = iota
	StateActive
)

// Session is the in-memory record of one call-signaling handshake between
// exactly two parties. Never persisted; destroyed on any terminal event.
type Session struct {
	CallerID   string
	ReceiverID string
	RoomID     string
	State      SessionState

	ringTimer *time.Timer
}

// pairKey identifies a session by its unordered participant pair.
type pairKey struct {
	a, b string
}

func keyFor(userA, userB string) pairKey {
	if userA > userB {
		userA, userB = userB, userA
	}
	return pairKey{a: userA, b: userB}
}

// CallRoom names the ad hoc room shared by one call attempt.
func CallRoom(callerID, receiverID string) string {
	return "call_" + callerID + "_" + receiverID
}

// --- wire payloads ---

type Request struct {
	CallerID   string          `json:"callerId"`
	ReceiverID string          `json:"receiverId"`
	CallerName string          `json:"callerName,omitempty"`
	Offer      json.RawMessage `json:"offer,omitempty"`
	// Media tag (audio/video) for front ends that negotiate the offer
	// out of band.
	Type string `json:"type,omitempty"`
}

type Invite struct {
	CallerID   string          `json:"callerId"`
	CallerName string          `json:"callerName,omitempty"`
	Offer      json.RawMessage `json:"offer,omitempty"`
	Type       string          `json:"type,omitempty"`
	CallRoomID string          `json:"callRoomId"`
}

type Answer struct {
	CallerID   string          `json:"callerId"`
	ReceiverID string          `json:"receiverId"`
	CallRoomID string          `json:"callRoomId"`
	Answer     json.RawMessage `json:"answer,omitempty"`
}

type Control struct {
	CallerID   string `json:"callerId"`
	ReceiverID string `json:"receiverId"`
	CallRoomID string `json:"callRoomId,omitempty"`
}

type Candidate struct {
	Candidate  json.RawMessage `json:"candidate"`
	SenderID   string          `json:"senderId"`
	ReceiverID string          `json:"receiverId,omitempty"`
	To         string          `json:"to,omitempty"`
}

type Failure struct {
	Message string `json:"message"`
}

var errMissingParticipant = errors.New("call payload missing callerId or receiverId")

// Service brokers two-party call handshakes. It only relays signaling
// payloads; media never passes through here.
type Service struct {
	state       state.Manager
	hub         event.Emitter
	logger      *slog.Logger
	ringTimeout time.Duration

	mu       sync.Mutex
	sessions map[pairKey]*Session
	byUser   map[string]map[pairKey]*Session
}

func NewService(sm state.Manager, hub event.Emitter, ringTimeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		state:       sm,
		hub:         hub,
		logger:      logger.With(slog.String("component", "call_signaling")),
		ringTimeout: ringTimeout,
		sessions:    make(map[pairKey]*Session),
		byUser:      make(map[string]map[pairKey]*Session),
	}
}

// PlaceCall drives Idle → Ringing. The caller's connection joins the call
// room; the receiver is invited via their personal room. An offline
// receiver or a pair with a live session answers call-failed to the caller
// only, and no session is created.
func (s *Service) PlaceCall(origin uuid.UUID, req Request) error {
	if req.CallerID == "" || req.ReceiverID == "" {
		return errMissingParticipant
	}
	key := keyFor(req.CallerID, req.ReceiverID)

	s.mu.Lock()
	if _, exists := s.sessions[key]; exists {
		s.mu.Unlock()
		s.hub.ToConn(origin, event.CallFailed, Failure{Message: "Call already in progress"})
		metrics.CallsCompleted.WithLabelValues("failed").Inc()
		return nil
	}

	count, err := s.state.GetUserConnectionCount(req.ReceiverID)
	if err != nil || count == 0 {
		s.mu.Unlock()
		s.hub.ToConn(origin, event.CallFailed, Failure{Message: "User is not available"})
		metrics.CallsCompleted.WithLabelValues("failed").Inc()
		return nil
	}

	roomID := CallRoom(req.CallerID, req.ReceiverID)
	if err := s.state.Join(origin, roomID); err != nil {
		s.mu.Unlock()
		return err
	}

	sess := &Session{
		CallerID:   req.CallerID,
		ReceiverID: req.ReceiverID,
		RoomID:     roomID,
		State:      StateRinging,
	}
	if s.ringTimeout > 0 {
		sess.ringTimer = time.AfterFunc(s.ringTimeout, func() { s.expire(key) })
	}
	s.index(key, sess)
	s.mu.Unlock()

	s.hub.ToRoom(req.ReceiverID, event.IncomingCall, Invite{
		CallerID:   req.CallerID,
		CallerName: req.CallerName,
		Offer:      req.Offer,
		Type:       req.Type,
		CallRoomID: roomID,
	}, uuid.Nil)

	metrics.CallsInitiated.Inc()
	s.logger.Info("Call placed", slog.String("callerID", req.CallerID), slog.String("receiverID", req.ReceiverID))
	return nil
}

// Accept drives Ringing → Active: the receiver's connection joins the call
// room and everyone already in it (the caller) gets the answer.
func (s *Service) Accept(origin uuid.UUID, ans Answer) error {
	if ans.CallerID == "" || ans.ReceiverID == "" {
		return errMissingParticipant
	}
	key := keyFor(ans.CallerID, ans.ReceiverID)

	s.mu.Lock()
	sess, ok := s.sessions[key]
	if !ok || sess.State != StateRinging {
		s.mu.Unlock()
		// Late accept after a terminal event; the session is gone.
		s.logger.Debug("Dropping accept for unknown or non-ringing call",
			slog.String("callerID", ans.CallerID), slog.String("receiverID", ans.ReceiverID))
		return nil
	}
	if err := s.state.Join(origin, sess.RoomID); err != nil {
		// Still Ringing; the ring timer keeps running and will expire the
		// session if no other accept lands.
		s.mu.Unlock()
		return err
	}
	sess.stopRingTimer()
	sess.State = StateActive
	roomID := sess.RoomID
	s.mu.Unlock()

	s.hub.ToRoom(roomID, event.CallAccepted, ans, origin)
	s.logger.Info("Call accepted", slog.String("callerID", ans.CallerID), slog.String("receiverID", ans.ReceiverID))
	return nil
}

// Reject is terminal from Ringing. The room is broadcast to and then torn
// down; nothing can transition this callRoomId afterwards.
func (s *Service) Reject(origin uuid.UUID, ctl Control) error {
	if ctl.CallerID == "" || ctl.ReceiverID == "" {
		return errMissingParticipant
	}
	key := keyFor(ctl.CallerID, ctl.ReceiverID)

	s.mu.Lock()
	sess, ok := s.sessions[key]
	if !ok || sess.State != StateRinging {
		s.mu.Unlock()
		s.logger.Debug("Dropping reject for unknown or non-ringing call",
			slog.String("callerID", ctl.CallerID), slog.String("receiverID", ctl.ReceiverID))
		return nil
	}
	s.remove(key, sess)
	s.mu.Unlock()

	s.hub.ToRoom(sess.RoomID, event.CallRejected, ctl, uuid.Nil)
	s.clearRoom(sess.RoomID)

	metrics.CallsCompleted.WithLabelValues("rejected").Inc()
	s.logger.Info("Call rejected", slog.String("callerID", ctl.CallerID), slog.String("receiverID", ctl.ReceiverID))
	return nil
}

// End is terminal: either party hangs up, the room hears call-ended, and the
// emitting connection leaves. The peer leaves on receipt of call-ended
// (client-driven); their membership is otherwise reclaimed on disconnect.
func (s *Service) End(origin uuid.UUID, ctl Control) error {
	if ctl.CallerID == "" || ctl.ReceiverID == "" {
		return errMissingParticipant
	}
	key := keyFor(ctl.CallerID, ctl.ReceiverID)

	s.mu.Lock()
	sess, ok := s.sessions[key]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("Dropping end-call for unknown call",
			slog.String("callerID", ctl.CallerID), slog.String("receiverID", ctl.ReceiverID))
		return nil
	}
	s.remove(key, sess)
	s.mu.Unlock()

	s.hub.ToRoom(sess.RoomID, event.CallEnded, Control{
		CallerID:   sess.CallerID,
		ReceiverID: sess.ReceiverID,
		CallRoomID: sess.RoomID,
	}, uuid.Nil)
	s.state.Leave(origin, sess.RoomID)

	metrics.CallsCompleted.WithLabelValues("accepted_end").Inc()
	s.logger.Info("Call ended", slog.String("callerID", ctl.CallerID), slog.String("receiverID", ctl.ReceiverID))
	return nil
}

// RelayIceCandidate forwards a candidate point-to-point to the target's
// personal room, excluding the origin connection. Not a state transition; a
// gone target means the candidate is silently dropped.
func (s *Service) RelayIceCandidate(origin uuid.UUID, c Candidate) error {
	target := c.To
	if target == "" {
		target = c.ReceiverID
	}
	if target == "" {
		return errMissingParticipant
	}
	s.hub.ToRoom(target, event.IceCandidate, Candidate{
		Candidate: c.Candidate,
		SenderID:  c.SenderID,
	}, origin)
	return nil
}

// HandleDisconnect closes the orphaned-session gap: when the last live
// connection of a participant drops, every session referencing them gets a
// synthetic call-ended and is destroyed. Invoked from the transport close
// hook before the connection is deregistered.
func (s *Service) HandleDisconnect(connID uuid.UUID) {
	conn, ok := s.state.GetConnection(connID)
	if !ok || conn.User == nil {
		return
	}
	userID := conn.User.ID

	// The disconnecting connection is still registered here; another
	// remaining device keeps the user's calls alive.
	if count, err := s.state.GetUserConnectionCount(userID); err != nil || count > 1 {
		return
	}

	s.mu.Lock()
	var dropped []*Session
	for key, sess := range s.byUser[userID] {
		s.remove(key, sess)
		dropped = append(dropped, sess)
	}
	s.mu.Unlock()

	for _, sess := range dropped {
		s.hub.ToRoom(sess.RoomID, event.CallEnded, Control{
			CallerID:   sess.CallerID,
			ReceiverID: sess.ReceiverID,
			CallRoomID: sess.RoomID,
		}, uuid.Nil)
		s.clearRoom(sess.RoomID)
		metrics.CallsCompleted.WithLabelValues("disconnected").Inc()
		s.logger.Info("Call torn down by disconnect",
			slog.String("userID", userID),
			slog.String("callRoomID", sess.RoomID),
		)
	}
}

// SessionFor reports the live session for a participant pair, if any.
func (s *Service) SessionFor(userA, userB string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[keyFor(userA, userB)]
	return sess, ok
}

// expire fires when a Ringing session outlives the ring timeout.
func (s *Service) expire(key pairKey) {
	s.mu.Lock()
	sess, ok := s.sessions[key]
	if !ok || sess.State != StateRinging {
		s.mu.Unlock()
		return
	}
	s.remove(key, sess)
	s.mu.Unlock()

	s.hub.ToRoom(sess.RoomID, event.CallFailed, Failure{Message: "Call was not answered"}, uuid.Nil)
	s.clearRoom(sess.RoomID)

	metrics.CallsCompleted.WithLabelValues("timeout").Inc()
	s.logger.Info("Ringing call timed out", slog.String("callRoomID", sess.RoomID))
}

// index and remove maintain the pair index and the per-user index together.
// Callers hold s.mu.
func (s *Service) index(key pairKey, sess *Session) {
	s.sessions[key] = sess
	for _, userID := range []string{sess.CallerID, sess.ReceiverID} {
		if s.byUser[userID] == nil {
			s.byUser[userID] = make(map[pairKey]*Session)
		}
		s.byUser[userID][key] = sess
	}
}

func (s *Service) remove(key pairKey, sess *Session) {
	sess.stopRingTimer()
	delete(s.sessions, key)
	for _, userID := range []string{sess.CallerID, sess.ReceiverID} {
		delete(s.byUser[userID], key)
		if len(s.byUser[userID]) == 0 {
			delete(s.byUser, userID)
		}
	}
}

// clearRoom detaches every remaining member so the empty room is reclaimed.
func (s *Service) clearRoom(roomID string) {
	conns, err := s.state.GetRoomConnections(roomID)
	if err != nil {
		return
	}
	for _, conn := range conns {
		s.state.Leave(conn.ID, roomID)
	}
}

func (sess *Session) stopRingTimer() {
	if sess.ringTimer != nil {
		sess.ringTimer.Stop()
		sess.ringTimer = nil
	}
}
