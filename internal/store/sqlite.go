package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/m-sameh0/go-relay/internal/models"
)

// SQLiteStore handles SQLite database operations. This is the default
// backend for single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/gorelay.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/gorelay.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}

	// Initialize schema
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS presence (
		user_id TEXT PRIMARY KEY,
		user_type TEXT NOT NULL DEFAULT '',
		is_online INTEGER NOT NULL DEFAULT 0,
		last_seen DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		chat_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_type TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertPresence writes the latest known online state for a user.
func (s *SQLiteStore) UpsertPresence(ctx context.Context, p *models.Presence) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO presence (user_id, user_type, is_online, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			user_type = excluded.user_type,
			is_online = excluded.is_online,
			last_seen = excluded.last_seen
	`, p.UserID, p.UserType, boolToInt(p.IsOnline), p.LastSeen)
	return err
}

// GetPresence retrieves the durable presence record for a user.
func (s *SQLiteStore) GetPresence(ctx context.Context, userID string) (*models.Presence, error) {
	p := &models.Presence{}
	var online int
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, user_type, is_online, last_seen
		FROM presence WHERE user_id = ?
	`, userID).Scan(&p.UserID, &p.UserType, &online, &p.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.IsOnline = online != 0
	return p, nil
}

// CreateNotification inserts a single notification record.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, chat_id, sender_id, sender_type, message, type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.UserID, n.ChatID, n.SenderID, n.SenderType, n.Message, n.Type, n.CreatedAt)
	return err
}

// CreateNotifications inserts a batch of notifications in one transaction.
func (s *SQLiteStore) CreateNotifications(ctx context.Context, ns []*models.Notification) error {
	if len(ns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO notifications (id, user_id, chat_id, sender_id, sender_type, message, type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, n := range ns {
		if _, err := stmt.ExecContext(ctx, n.ID, n.UserID, n.ChatID, n.SenderID, n.SenderType, n.Message, n.Type, n.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// NotificationsForUser lists a user's notifications, newest first. This is
// the pull interface a client uses after reconnecting.
func (s *SQLiteStore) NotificationsForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, chat_id, sender_id, sender_type, message, type, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.ChatID, &n.SenderID, &n.SenderType, &n.Message, &n.Type, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
