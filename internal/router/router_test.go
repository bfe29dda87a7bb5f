package router_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/m-sameh0/go-relay/internal/call"
	"github.com/m-sameh0/go-relay/internal/chat"
	"github.com/m-sameh0/go-relay/internal/event"
	"github.com/m-sameh0/go-relay/internal/models"
	"github.com/m-sameh0/go-relay/internal/presence"
	"github.com/m-sameh0/go-relay/internal/router"
	"github.com/m-sameh0/go-relay/internal/store"
	"github.com/m-sameh0/go-relay/pkg/state"
	"github.com/m-sameh0/go-relay/pkg/state/statemanager"
	"github.com/m-sameh0/go-relay/pkg/transport"
)

// --- Test Suite Setup ---

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

type nullStore struct{}

func (nullStore) Close() error                                                  { return nil }
func (nullStore) Ping(ctx context.Context) error                                { return nil }
func (nullStore) UpsertPresence(ctx context.Context, p *models.Presence) error  { return nil }
func (nullStore) GetPresence(ctx context.Context, userID string) (*models.Presence, error) {
	return nil, store.ErrNotFound
}
func (nullStore) CreateNotification(ctx context.Context, n *models.Notification) error { return nil }
func (nullStore) CreateNotifications(ctx context.Context, ns []*models.Notification) error {
	return nil
}
func (nullStore) NotificationsForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	return nil, nil
}

type fixture struct {
	manager state.Manager
	router  *router.EventRouter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := newTestLogger()
	manager := statemanager.NewInMemoryManager(logger)
	hub := event.NewHub(manager, logger)
	ps := presence.NewService(manager, nullStore{}, hub, logger)
	cs := chat.NewService(manager, nullStore{}, hub, logger)
	calls := call.NewService(manager, hub, time.Minute, logger)
	return &fixture{
		manager: manager,
		router:  router.NewEventRouter(logger, ps, cs, calls),
	}
}

func (f *fixture) connect(t *testing.T) uuid.UUID {
	t.Helper()
	var wg sync.WaitGroup
	conn := transport.NewConnection(context.Background(), &wg, nil, transport.ConnectionConfig{}, newTestLogger())
	if _, err := f.manager.RegisterConnection(conn, "127.0.0.1"); err != nil {
		t.Fatalf("RegisterConnection failed: %v", err)
	}
	return conn.ID()
}

// --- Tests ---

func TestMalformedFrameIsIgnored(t *testing.T) {
	f := newFixture(t)
	connID := f.connect(t)

	// Must not panic and must not mutate any state.
	f.router.HandleMessage(context.Background(), connID, []byte(`{not json`))
	f.router.HandleMessage(context.Background(), connID, []byte(``))

	conn, _ := f.manager.GetConnection(connID)
	if len(conn.Rooms) != 0 {
		t.Errorf("Expected no room membership after garbage frames, got %d", len(conn.Rooms))
	}
}

func TestUnknownEventIsIgnored(t *testing.T) {
	f := newFixture(t)
	connID := f.connect(t)

	f.router.HandleMessage(context.Background(), connID, []byte(`{"event":"self_destruct","payload":{}}`))

	conn, _ := f.manager.GetConnection(connID)
	if len(conn.Rooms) != 0 {
		t.Errorf("Expected no side effects for an unknown event, got %d rooms", len(conn.Rooms))
	}
}

func TestUserConnectedAssociatesIdentity(t *testing.T) {
	f := newFixture(t)
	connID := f.connect(t)

	f.router.HandleMessage(context.Background(), connID,
		[]byte(`{"event":"user_connected","payload":{"userId":"alice","userType":"employee"}}`))

	user, ok := f.manager.FindUser("alice")
	if !ok {
		t.Fatal("Expected alice to be registered after user_connected")
	}
	if user.Type != state.UserTypeEmployee {
		t.Errorf("Expected employee type, got %q", user.Type)
	}
	count, _ := f.manager.GetUserConnectionCount("alice")
	if count != 1 {
		t.Errorf("Expected 1 connection for alice, got %d", count)
	}
}

func TestJoinChatAcceptsBareStringPayload(t *testing.T) {
	f := newFixture(t)
	connID := f.connect(t)

	// Older clients emit the raw user id instead of an object.
	f.router.HandleMessage(context.Background(), connID, []byte(`{"event":"join_chat","payload":"alice"}`))

	conns, err := f.manager.GetRoomConnections("alice")
	if err != nil || len(conns) != 1 {
		t.Fatalf("Expected the connection in alice's personal room, got %d (err=%v)", len(conns), err)
	}
	if conns[0].ID != connID {
		t.Error("Wrong connection joined the personal room")
	}
}

func TestJoinGroupRequiresGroupID(t *testing.T) {
	f := newFixture(t)
	connID := f.connect(t)

	f.router.HandleMessage(context.Background(), connID, []byte(`{"event":"join_group","payload":{}}`))

	conn, _ := f.manager.GetConnection(connID)
	if len(conn.Rooms) != 0 {
		t.Errorf("Expected no membership without a groupId, got %d rooms", len(conn.Rooms))
	}

	f.router.HandleMessage(context.Background(), connID, []byte(`{"event":"join_group","payload":{"groupId":"g-1"}}`))
	if conns, err := f.manager.GetRoomConnections("g-1"); err != nil || len(conns) != 1 {
		t.Errorf("Expected the connection in the group room, got %d (err=%v)", len(conns), err)
	}
}

func TestCallAnsweredAliasDispatchesAccept(t *testing.T) {
	f := newFixture(t)
	callerID := f.connect(t)
	receiverID := f.connect(t)

	f.router.HandleMessage(context.Background(), callerID,
		[]byte(`{"event":"user_connected","payload":{"userId":"alice","userType":"employee"}}`))
	f.router.HandleMessage(context.Background(), callerID, []byte(`{"event":"join_chat","payload":"alice"}`))
	f.router.HandleMessage(context.Background(), receiverID,
		[]byte(`{"event":"user_connected","payload":{"userId":"bob","userType":"client"}}`))
	f.router.HandleMessage(context.Background(), receiverID, []byte(`{"event":"join_chat","payload":"bob"}`))

	f.router.HandleMessage(context.Background(), callerID,
		[]byte(`{"event":"call-user","payload":{"callerId":"alice","receiverId":"bob"}}`))
	f.router.HandleMessage(context.Background(), receiverID,
		[]byte(`{"event":"call-answered","payload":{"callerId":"alice","receiverId":"bob"}}`))

	roomID := call.CallRoom("alice", "bob")
	conns, err := f.manager.GetRoomConnections(roomID)
	if err != nil || len(conns) != 2 {
		t.Fatalf("Expected both parties in the call room after the legacy accept, got %d (err=%v)", len(conns), err)
	}
}
