package statemanager_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/m-sameh0/go-relay/pkg/state"
	"github.com/m-sameh0/go-relay/pkg/state/statemanager"
	"github.com/m-sameh0/go-relay/pkg/transport"
)

// --- Test Suite Setup ---

func newTestLogger() *slog.Logger {
	// Discard logger output during tests by setting a high level
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestManager() *statemanager.InMemoryManager {
	return statemanager.NewInMemoryManager(newTestLogger())
}

func newTransportConn() *transport.Connection {
	// We never pump the actual socket in these tests, so the underlying
	// conn can be nil.
	var wg sync.WaitGroup
	return transport.NewConnection(context.Background(), &wg, nil, transport.ConnectionConfig{}, newTestLogger())
}

// --- Connection and User Management Tests ---

func TestConnectionLifecycle(t *testing.T) {
	m := newTestManager()
	conn := newTransportConn()

	// 1. Register
	stateConn, err := m.RegisterConnection(conn, "127.0.0.1")
	if err != nil {
		t.Fatalf("RegisterConnection failed: %v", err)
	}
	if stateConn.ID != conn.ID() {
		t.Errorf("Registered connection ID mismatch")
	}

	// 2. Get
	retrievedConn, found := m.GetConnection(conn.ID())
	if !found {
		t.Fatal("GetConnection failed to find registered connection")
	}
	if retrievedConn.ID != conn.ID() {
		t.Errorf("Retrieved connection ID mismatch")
	}

	// 3. Deregister
	err = m.DeregisterConnection(conn.ID())
	if err != nil {
		t.Fatalf("DeregisterConnection failed: %v", err)
	}
	_, found = m.GetConnection(conn.ID())
	if found {
		t.Error("Found connection after it should have been deregistered")
	}
}

func TestRegisterConnectionTwice(t *testing.T) {
	m := newTestManager()
	conn := newTransportConn()

	if _, err := m.RegisterConnection(conn, "127.0.0.1"); err != nil {
		t.Fatalf("RegisterConnection failed: %v", err)
	}
	if _, err := m.RegisterConnection(conn, "127.0.0.1"); err == nil {
		t.Error("Expected error when registering the same connection twice")
	}
}

func TestUserAssociationAndConnectionCount(t *testing.T) {
	m := newTestManager()
	userID := "user-1"
	conn1 := newTransportConn()
	conn2 := newTransportConn()

	m.RegisterConnection(conn1, "1.1.1.1")
	m.RegisterConnection(conn2, "2.2.2.2")

	// Associate first connection
	user, err := m.AssociateUser(conn1.ID(), userID, state.UserTypeEmployee)
	if err != nil {
		t.Fatalf("AssociateUser (1) failed: %v", err)
	}
	if user.ID != userID {
		t.Errorf("Expected user ID %s, got %s", userID, user.ID)
	}

	count, _ := m.GetUserConnectionCount(userID)
	if count != 1 {
		t.Errorf("Expected connection count 1, got %d", count)
	}

	// Associate second connection to the same user
	_, err = m.AssociateUser(conn2.ID(), userID, state.UserTypeEmployee)
	if err != nil {
		t.Fatalf("AssociateUser (2) failed: %v", err)
	}

	count, _ = m.GetUserConnectionCount(userID)
	if count != 2 {
		t.Errorf("Expected connection count 2, got %d", count)
	}

	// Deregister one connection: the other device must stay attached.
	m.DeregisterConnection(conn1.ID())
	count, _ = m.GetUserConnectionCount(userID)
	if count != 1 {
		t.Errorf("Expected connection count 1 after deregister, got %d", count)
	}

	// Deregister the last connection: the user session is reclaimed.
	m.DeregisterConnection(conn2.ID())
	if _, found := m.FindUser(userID); found {
		t.Error("Expected user to be removed after last connection deregistered")
	}
}

func TestFindOldestUserConnection(t *testing.T) {
	m := newTestManager()
	userID := "user-cycle"
	conn1 := newTransportConn()
	time.Sleep(5 * time.Millisecond) // Ensure timestamps are different
	conn2 := newTransportConn()

	m.RegisterConnection(conn1, "1.1.1.1")
	m.RegisterConnection(conn2, "2.2.2.2")
	m.AssociateUser(conn1.ID(), userID, state.UserTypeClient)
	m.AssociateUser(conn2.ID(), userID, state.UserTypeClient)

	oldest, found := m.FindOldestUserConnection(userID)
	if !found {
		t.Fatal("Expected to find oldest connection, but did not")
	}
	if oldest.ID != conn1.ID() {
		t.Errorf("Expected oldest connection ID to be %s, got %s", conn1.ID(), oldest.ID)
	}
}

// --- Room Management Tests ---

func TestRoomMembership(t *testing.T) {
	m := newTestManager()
	roomID := "test-room"
	conn1, conn2 := newTransportConn(), newTransportConn()
	m.RegisterConnection(conn1, "1.1.1.1")
	m.RegisterConnection(conn2, "2.2.2.2")

	// Join
	if err := m.Join(conn1.ID(), roomID); err != nil {
		t.Fatalf("Conn1 failed to join room: %v", err)
	}
	if err := m.Join(conn2.ID(), roomID); err != nil {
		t.Fatalf("Conn2 failed to join room: %v", err)
	}

	// Get members
	members, err := m.GetRoomConnections(roomID)
	if err != nil {
		t.Fatalf("GetRoomConnections failed: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("Expected 2 members in room, got %d", len(members))
	}

	// Leave
	if err := m.Leave(conn1.ID(), roomID); err != nil {
		t.Fatalf("Conn1 failed to leave room: %v", err)
	}

	members, _ = m.GetRoomConnections(roomID)
	if len(members) != 1 {
		t.Fatalf("Expected 1 member after leave, got %d", len(members))
	}
	if members[0].ID != conn2.ID() {
		t.Errorf("Expected remaining member to be %s, got %s", conn2.ID(), members[0].ID)
	}

	// Test empty room cleanup
	m.Leave(conn2.ID(), roomID)
	_, found := m.FindRoom(roomID)
	if found {
		t.Error("Expected room to be deleted after last member left, but it was found")
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	m := newTestManager()
	roomID := "idempotent-room"
	conn := newTransportConn()
	m.RegisterConnection(conn, "1.1.1.1")

	if err := m.Join(conn.ID(), roomID); err != nil {
		t.Fatalf("First join failed: %v", err)
	}
	if err := m.Join(conn.ID(), roomID); err != nil {
		t.Fatalf("Second join failed: %v", err)
	}

	members, err := m.GetRoomConnections(roomID)
	if err != nil {
		t.Fatalf("GetRoomConnections failed: %v", err)
	}
	if len(members) != 1 {
		t.Errorf("Expected exactly 1 membership entry after double join, got %d", len(members))
	}
}

func TestDeregisterLeavesAllRooms(t *testing.T) {
	m := newTestManager()
	conn1, conn2 := newTransportConn(), newTransportConn()
	m.RegisterConnection(conn1, "1.1.1.1")
	m.RegisterConnection(conn2, "2.2.2.2")

	m.Join(conn1.ID(), "room-a")
	m.Join(conn1.ID(), "room-b")
	m.Join(conn2.ID(), "room-b")

	m.DeregisterConnection(conn1.ID())

	// room-a had only conn1, so it is reclaimed.
	if _, found := m.FindRoom("room-a"); found {
		t.Error("Expected room-a to be deleted after its only member deregistered")
	}

	// room-b keeps conn2.
	members, err := m.GetRoomConnections("room-b")
	if err != nil {
		t.Fatalf("GetRoomConnections failed: %v", err)
	}
	if len(members) != 1 || members[0].ID != conn2.ID() {
		t.Errorf("Expected room-b to contain only conn2 after deregister")
	}
}

func TestLeaveUnknownRoomIsNoOp(t *testing.T) {
	m := newTestManager()
	conn := newTransportConn()
	m.RegisterConnection(conn, "1.1.1.1")

	if err := m.Leave(conn.ID(), "no-such-room"); err != nil {
		t.Errorf("Leave of unknown room should be a no-op, got: %v", err)
	}
}
