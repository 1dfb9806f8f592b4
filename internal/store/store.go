package store

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotifyChannel is the Postgres channel carrying ids of newly inserted user messages.
const NotifyChannel = "billing_agent_new_message"

// Message is a single conversation entry as stored in Postgres.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Text           string
	Status         string
	Meta           map[string]any
	CreatedAt      time.Time
}

// ReplyRecord is a previously emitted assistant reply, used by the fallback scan.
type ReplyRecord struct {
	Text string
	Meta map[string]any
}

// Store provides access to the conversation message history.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool, logger: logger.With("component", "store")}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS messages (
	id              UUID PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	role            TEXT NOT NULL,
	text            TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'sent',
	meta            JSONB,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_conv_created
	ON messages (conversation_id, created_at DESC);

CREATE OR REPLACE FUNCTION billing_agent_notify_message() RETURNS trigger AS $$
BEGIN
	IF NEW.role = 'user' AND NEW.status = 'sent' THEN
		PERFORM pg_notify('` + NotifyChannel + `', NEW.id::text);
	END IF;
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_billing_agent_notify ON messages;
CREATE TRIGGER trg_billing_agent_notify
	AFTER INSERT ON messages
	FOR EACH ROW EXECUTE FUNCTION billing_agent_notify_message();
`

// EnsureSchema creates the messages table and its notify trigger.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// GetMessage loads a single message by id.
func (s *Store) GetMessage(ctx context.Context, id string) (*Message, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, conversation_id, role, text, status, COALESCE(meta, '{}'::jsonb), created_at
		FROM messages WHERE id = $1`, id)

	var msg Message
	if err := row.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Text, &msg.Status, &msg.Meta, &msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("load message %s: %w", id, err)
	}
	return &msg, nil
}

// Pending lists unprocessed user messages for a conversation, oldest first.
// Used once at startup to drain messages that arrived while the worker was down.
func (s *Store) Pending(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, text, status, COALESCE(meta, '{}'::jsonb), created_at
		FROM messages
		WHERE conversation_id = $1 AND role = 'user' AND status = 'sent'
		ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Text, &msg.Status, &msg.Meta, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// MarkProcessed flips a message status so redeliveries are ignored.
func (s *Store) MarkProcessed(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `UPDATE messages SET status = 'processed' WHERE id = $1`, id); err != nil {
		return fmt.Errorf("mark processed %s: %w", id, err)
	}
	return nil
}

// InsertReply appends an assistant reply to the conversation.
func (s *Store) InsertReply(ctx context.Context, conversationID, text string, meta map[string]any) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, role, text, status, meta)
		VALUES ($1, $2, 'assistant', $3, 'sent', $4)`,
		uuid.NewString(), conversationID, text, meta)
	if err != nil {
		return fmt.Errorf("insert reply: %w", err)
	}
	return nil
}

// RecentAssistantReplies returns the newest assistant replies first, bounded by limit.
func (s *Store) RecentAssistantReplies(ctx context.Context, conversationID string, limit int) ([]ReplyRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT text, COALESCE(meta, '{}'::jsonb)
		FROM messages
		WHERE conversation_id = $1 AND role = 'assistant'
		ORDER BY created_at DESC
		LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	defer rows.Close()

	var out []ReplyRecord
	for rows.Next() {
		var rec ReplyRecord
		if err := rows.Scan(&rec.Text, &rec.Meta); err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Listen blocks on the message notify channel and forwards new message ids.
// ready is closed once the LISTEN registration is active; callers must not
// snapshot the backlog before then, or inserts landing in between are lost.
// It returns nil once ctx is cancelled.
func (s *Store) Listen(ctx context.Context, out chan<- string, ready chan<- struct{}) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}
	close(ready)
	s.logger.Info("listening for messages", "channel", NotifyChannel)

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait notification: %w", err)
		}
		select {
		case out <- notification.Payload:
		case <-ctx.Done():
			return nil
		}
	}
}
