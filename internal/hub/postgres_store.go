package hub

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx used by PostgresStore.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const pgForeignKeyViolation = "23503"

// PostgresStore persists the ledger in Postgres. Uniqueness lives in the
// indexes created by the migrations; every upsert goes through ON CONFLICT.
type PostgresStore struct {
	db Querier
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore initializes a store backed by pgxpool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("hub: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithQuerier(q Querier) *PostgresStore {
	if q == nil {
		panic("hub: querier required")
	}
	return &PostgresStore{db: q}
}

func (s *PostgresStore) FindOrCreateContact(ctx context.Context, channel Channel, externalID string, hints ContactHints) (Contact, error) {
	query := `
		INSERT INTO contacts (id, channel, external_id, display_name)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		ON CONFLICT (channel, external_id)
		DO UPDATE SET display_name = COALESCE(EXCLUDED.display_name, contacts.display_name),
			updated_at = CASE WHEN EXCLUDED.display_name IS NULL THEN contacts.updated_at ELSE now() END
		RETURNING id, channel, external_id, COALESCE(display_name, ''), created_at, updated_at
	`
	var c Contact
	err := s.db.QueryRow(ctx, query, uuid.NewString(), string(channel), externalID, hints.DisplayName).
		Scan(&c.ID, &c.Channel, &c.ExternalID, &c.DisplayName, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, fmt.Errorf("hub: upsert contact: %w", ErrIntegrity)
		}
		return Contact{}, fmt.Errorf("hub: upsert contact: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) GetContact(ctx context.Context, id string) (Contact, error) {
	query := `
		SELECT id, channel, external_id, COALESCE(display_name, ''), created_at, updated_at
		FROM contacts
		WHERE id = $1
	`
	var c Contact
	err := s.db.QueryRow(ctx, query, id).
		Scan(&c.ID, &c.Channel, &c.ExternalID, &c.DisplayName, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, fmt.Errorf("hub: get contact: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) FindOrCreateConversation(ctx context.Context, contactID string, channel Channel) (Conversation, error) {
	// The no-op update makes RETURNING yield the existing row on conflict.
	query := `
		INSERT INTO conversations (id, contact_id, channel)
		VALUES ($1, $2, $3)
		ON CONFLICT (contact_id, channel)
		DO UPDATE SET channel = EXCLUDED.channel
		RETURNING id, contact_id, channel, created_at, last_message_at
	`
	row := s.db.QueryRow(ctx, query, uuid.NewString(), contactID, string(channel))
	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, fmt.Errorf("hub: upsert conversation: %w", ErrIntegrity)
		}
		if isForeignKeyViolation(err) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, fmt.Errorf("hub: upsert conversation: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	query := `
		SELECT id, contact_id, channel, created_at, last_message_at
		FROM conversations
		WHERE id = $1
	`
	c, err := scanConversation(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, fmt.Errorf("hub: get conversation: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = DefaultConversationLimit
	}
	query := `
		SELECT id, contact_id, channel, created_at, last_message_at
		FROM conversations
		ORDER BY COALESCE(last_message_at, created_at) DESC, id
		LIMIT $1
	`
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("hub: list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("hub: scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Touch(ctx context.Context, conversationID string, ts time.Time) error {
	query := `
		UPDATE conversations
		SET last_message_at = GREATEST(COALESCE(last_message_at, $2), $2)
		WHERE id = $1
	`
	tag, err := s.db.Exec(ctx, query, conversationID, ts)
	if err != nil {
		return fmt.Errorf("hub: touch conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, msg Message) (Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	var attachments []byte
	if len(msg.Attachments) > 0 {
		raw, err := json.Marshal(msg.Attachments)
		if err != nil {
			return Message{}, fmt.Errorf("hub: marshal attachments: %w", err)
		}
		attachments = raw
	}

	query := `
		INSERT INTO messages (
			id, conversation_id, contact_id, channel, direction,
			text, external_message_id, attachments, ts
		)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9)
		ON CONFLICT (conversation_id, external_message_id) WHERE direction = 'in'
		DO NOTHING
		RETURNING created_at
	`
	err := s.db.QueryRow(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.ContactID,
		string(msg.Channel),
		string(msg.Direction),
		msg.Text,
		msg.ExternalMessageID,
		attachments,
		msg.Timestamp,
	).Scan(&msg.CreatedAt)
	if err == nil {
		return msg, nil
	}
	if isForeignKeyViolation(err) {
		return Message{}, ErrNotFound
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Message{}, fmt.Errorf("hub: insert message: %w", err)
	}

	existing, lookupErr := s.findInbound(ctx, msg.ConversationID, msg.ExternalMessageID)
	if lookupErr != nil {
		return Message{}, fmt.Errorf("hub: load duplicate message: %w", lookupErr)
	}
	return existing, ErrDuplicateMessage
}

func (s *PostgresStore) findInbound(ctx context.Context, conversationID, externalMessageID string) (Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1 AND external_message_id = $2 AND direction = 'in'
	`
	return scanMessage(s.db.QueryRow(ctx, query, conversationID, externalMessageID))
}

const messageColumns = `id, conversation_id, contact_id, channel, direction,
			COALESCE(text, ''), COALESCE(external_message_id, ''), attachments, ts, created_at`

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		ORDER BY ts ASC, seq ASC
	`
	rows, err := s.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("hub: list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("hub: scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) LastMessages(ctx context.Context, conversationIDs []string) (map[string]Message, error) {
	out := make(map[string]Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return out, nil
	}
	query := `
		SELECT DISTINCT ON (conversation_id) ` + messageColumns + `
		FROM messages
		WHERE conversation_id = ANY($1)
		ORDER BY conversation_id, ts DESC, seq DESC
	`
	rows, err := s.db.Query(ctx, query, conversationIDs)
	if err != nil {
		return nil, fmt.Errorf("hub: last messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("hub: scan message: %w", err)
		}
		out[m.ConversationID] = m
	}
	return out, rows.Err()
}

func (s *PostgresStore) LinkBooking(ctx context.Context, link BookingLink) (BookingLink, error) {
	query := `
		INSERT INTO booking_links (id, contact_id, conversation_id, booking_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (contact_id, conversation_id, booking_id)
		DO UPDATE SET booking_id = EXCLUDED.booking_id
		RETURNING id, created_at
	`
	id := link.ID
	if id == "" {
		id = uuid.NewString()
	}
	err := s.db.QueryRow(ctx, query, id, link.ContactID, link.ConversationID, link.BookingID).
		Scan(&link.ID, &link.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BookingLink{}, fmt.Errorf("hub: link booking: %w", ErrIntegrity)
		}
		if isForeignKeyViolation(err) {
			return BookingLink{}, ErrNotFound
		}
		return BookingLink{}, fmt.Errorf("hub: link booking: %w", err)
	}
	return link, nil
}

func (s *PostgresStore) ListBookingLinks(ctx context.Context, conversationID string) ([]BookingLink, error) {
	query := `
		SELECT id, contact_id, conversation_id, booking_id, created_at
		FROM booking_links
		WHERE conversation_id = $1
		ORDER BY created_at
	`
	rows, err := s.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("hub: list booking links: %w", err)
	}
	defer rows.Close()

	out := []BookingLink{}
	for rows.Next() {
		var l BookingLink
		if err := rows.Scan(&l.ID, &l.ContactID, &l.ConversationID, &l.BookingID, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("hub: scan booking link: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (Conversation, error) {
	var (
		c    Conversation
		last sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.ContactID, &c.Channel, &c.CreatedAt, &last); err != nil {
		return Conversation{}, err
	}
	if last.Valid {
		ts := last.Time
		c.LastMessageAt = &ts
	}
	return c, nil
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		m           Message
		attachments []byte
	)
	if err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&m.ContactID,
		&m.Channel,
		&m.Direction,
		&m.Text,
		&m.ExternalMessageID,
		&attachments,
		&m.Timestamp,
		&m.CreatedAt,
	); err != nil {
		return Message{}, err
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
			return Message{}, fmt.Errorf("decode attachments: %w", err)
		}
	}
	return m, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}
