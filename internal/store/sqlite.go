package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stihelp/orchestrator/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite. The reserved_ids table doubles
// as the cross-process used-set for the id registry: SQLite's write lock is
// the exclusion mechanism, and a primary-key conflict signals a collision.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS reserved_ids (
			conversation_id TEXT PRIMARY KEY,
			reserved_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			conversation_id TEXT PRIMARY KEY,
			locale TEXT NOT NULL,
			user_ref TEXT,
			status TEXT NOT NULL,
			feedback TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES reserved_ids(conversation_id)
		)`,
		`CREATE TABLE IF NOT EXISTS transcript_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			type TEXT NOT NULL,
			ts INTEGER NOT NULL,
			payload TEXT,
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_conversation ON transcript_events(conversation_id, seq)`,
		`CREATE TABLE IF NOT EXISTS tickets (
			ticket_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			summary TEXT NOT NULL,
			reason TEXT NOT NULL,
			contact_email TEXT,
			contact_phone TEXT,
			payload TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ReserveConversationID inserts the id into the durable used-set. A unique
// constraint violation means another reservation got there first.
func (s *SQLiteStore) ReserveConversationID(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reserved_ids (conversation_id) VALUES (?)`, conversationID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrIDReserved
		}
		return err
	}
	return nil
}

// CreateConversation creates a new conversation record.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (conversation_id, locale, user_ref, status, feedback, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conv.ConversationID, conv.Locale, conv.UserRef, conv.Status, conv.Feedback, conv.CreatedAt, conv.UpdatedAt)
	return err
}

// GetConversation retrieves a conversation by id, or nil when absent.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	var userRef, feedback sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, locale, user_ref, status, feedback, created_at, updated_at
		 FROM conversations WHERE conversation_id = ?`,
		conversationID).Scan(&conv.ConversationID, &conv.Locale, &userRef, &conv.Status, &feedback, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if userRef.Valid {
		conv.UserRef = userRef.String
	}
	if feedback.Valid {
		conv.Feedback = domain.Feedback(feedback.String)
	}
	return &conv, nil
}

// UpdateConversationStatus updates the lifecycle status.
func (s *SQLiteStore) UpdateConversationStatus(ctx context.Context, conversationID string, status domain.ConversationStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = ?, updated_at = ? WHERE conversation_id = ?`,
		status, time.Now(), conversationID)
	return err
}

// UpdateConversationLocale records the locale chosen at the language stage.
func (s *SQLiteStore) UpdateConversationLocale(ctx context.Context, conversationID, locale string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET locale = ?, updated_at = ? WHERE conversation_id = ?`,
		locale, time.Now(), conversationID)
	return err
}

// SetConversationFeedback records the feedback outcome.
func (s *SQLiteStore) SetConversationFeedback(ctx context.Context, conversationID string, fb domain.Feedback) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET feedback = ?, updated_at = ? WHERE conversation_id = ?`,
		fb, time.Now(), conversationID)
	return err
}

// TouchConversation bumps updated_at.
func (s *SQLiteStore) TouchConversation(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE conversation_id = ?`,
		time.Now(), conversationID)
	return err
}

// AppendEvent appends one transcript event and fills in its Seq. Callers
// hold the conversation lock, so AUTOINCREMENT order is acquisition order.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *domain.TranscriptEvent) error {
	payload := ""
	if event.Payload != nil {
		payload = string(event.Payload)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transcript_events (event_id, conversation_id, role, type, ts, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		event.EventID, event.ConversationID, event.Role, event.Type, event.Ts, payload)
	if err != nil {
		return err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return err
	}
	event.Seq = seq
	return nil
}

// GetEvents retrieves transcript events for a conversation in append order.
func (s *SQLiteStore) GetEvents(ctx context.Context, conversationID string, afterSeq int64, types []string, limit int) ([]domain.TranscriptEvent, error) {
	query := `SELECT seq, event_id, conversation_id, role, type, ts, payload FROM transcript_events WHERE conversation_id = ?`
	args := []interface{}{conversationID}

	if afterSeq > 0 {
		query += ` AND seq > ?`
		args = append(args, afterSeq)
	}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ","))
	}

	query += ` ORDER BY seq ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.TranscriptEvent
	for rows.Next() {
		var event domain.TranscriptEvent
		var payload sql.NullString
		if err := rows.Scan(&event.Seq, &event.EventID, &event.ConversationID, &event.Role, &event.Type, &event.Ts, &payload); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// CreateTicket stores the immutable handoff record.
func (s *SQLiteStore) CreateTicket(ctx context.Context, ticket *domain.Ticket) error {
	payload := ""
	if ticket.Payload != nil {
		payload = string(ticket.Payload)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tickets (ticket_id, conversation_id, summary, reason, contact_email, contact_phone, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ticket.TicketID, ticket.ConversationID, ticket.Summary, ticket.Reason, ticket.ContactEmail, ticket.ContactPhone, payload, ticket.CreatedAt)
	return err
}

// GetTicket retrieves a ticket by id, or nil when absent.
func (s *SQLiteStore) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	var ticket domain.Ticket
	var email, phone, payload sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT ticket_id, conversation_id, summary, reason, contact_email, contact_phone, payload, created_at
		 FROM tickets WHERE ticket_id = ?`,
		ticketID).Scan(&ticket.TicketID, &ticket.ConversationID, &ticket.Summary, &ticket.Reason, &email, &phone, &payload, &ticket.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if email.Valid {
		ticket.ContactEmail = email.String
	}
	if phone.Valid {
		ticket.ContactPhone = phone.String
	}
	if payload.Valid && payload.String != "" {
		ticket.Payload = json.RawMessage(payload.String)
	}
	return &ticket, nil
}
