// Package store implements the Conversation Store (C7): a durable,
// indexed log of conversations and messages with full-text search and
// JSON import/export, backed by an embedded SQLite file.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// EventKind identifies the event passed to a registered Observer.
type EventKind string

const (
	EventConversationCreated EventKind = "conversation-created"
	EventMessageAppended     EventKind = "message-appended"
	EventConversationDeleted EventKind = "conversation-deleted"
	EventTitleChanged        EventKind = "title-changed"
)

// Event is delivered synchronously to every Observer after a write
// commits.
type Event struct {
	Kind           EventKind
	ConversationID string
}

// Observer receives store events. A panicking observer must not bring
// down the writer — Store recovers and logs instead.
type Observer func(Event)

// Store is the embedded conversation log. Writers are serialized by mu;
// readers proceed in parallel against the underlying *sql.DB, which
// SQLite itself allows to run concurrently with a single writer.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *slog.Logger

	obsMu     sync.RWMutex
	observers []Observer
}

// Open opens (creating if necessary) the SQLite file at path and
// brings its schema up to date via the embedded migrations.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(wal)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one connection avoids writer/reader lock contention surprises
	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Subscribe registers an observer, returned as an unsubscribe func.
func (s *Store) Subscribe(obs Observer) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, obs)
	idx := len(s.observers) - 1
	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		s.observers[idx] = nil
	}
}

func (s *Store) notify(ev Event) {
	s.obsMu.RLock()
	obs := append([]Observer(nil), s.observers...)
	s.obsMu.RUnlock()
	for _, o := range obs {
		if o == nil {
			continue
		}
		s.safeNotify(o, ev)
	}
}

// safeNotify isolates an observer panic so a buggy subscriber cannot
// take down the writer goroutine.
func (s *Store) safeNotify(o Observer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("store observer panicked", "event", ev.Kind, "recover", r)
		}
	}()
	o(ev)
}

// CreateConversation inserts a new conversation, materializing topicName
// into a topics row if it does not already exist (reusing an existing
// row with the same name rather than erroring).
func (s *Store) CreateConversation(ctx context.Context, title string, topicName string) (coretypes.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	conv := coretypes.Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		Status:    coretypes.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return coretypes.Conversation{}, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	var topicID *string
	if topicName != "" {
		id, err := s.resolveTopic(ctx, tx, topicName)
		if err != nil {
			return coretypes.Conversation{}, err
		}
		topicID = &id
	}
	conv.TopicID = topicID

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (id, title, topic_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.Title, conv.TopicID, conv.Status, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return coretypes.Conversation{}, fmt.Errorf("store: insert conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return coretypes.Conversation{}, fmt.Errorf("store: commit: %w", err)
	}

	s.notify(Event{Kind: EventConversationCreated, ConversationID: conv.ID})
	return conv, nil
}

// resolveTopic returns the id of the topic named name, creating it if
// absent. Must run inside tx so concurrent creators serialize on s.mu.
func (s *Store) resolveTopic(ctx context.Context, tx *sql.Tx, name string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM topics WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("store: lookup topic: %w", err)
	}
	id = uuid.NewString()
	_, err = tx.ExecContext(ctx, `INSERT INTO topics (id, name, created_at) VALUES (?, ?, ?)`, id, name, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("store: create topic: %w", err)
	}
	return id, nil
}

// AppendMessage appends msg to conversationID, updating the parent
// conversation's updated_at via the schema's trigger. Assistant
// messages without a ModelRef are rejected; messages against an
// unknown conversation are rejected as orphans.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, msg coretypes.Message) (coretypes.Message, error) {
	if msg.Role == coretypes.RoleAssistant && msg.ModelRef == nil {
		return coretypes.Message{}, ErrMissingModelRef
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, conversationID).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return coretypes.Message{}, ErrOrphanMessage
		}
		return coretypes.Message{}, fmt.Errorf("store: check conversation: %w", err)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, model_ref, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, conversationID, msg.Role, msg.Content, msg.ModelRef, msg.Timestamp)
	if err != nil {
		return coretypes.Message{}, fmt.Errorf("store: insert message: %w", err)
	}

	s.notify(Event{Kind: EventMessageAppended, ConversationID: conversationID})
	return msg, nil
}

// GetConversation returns a conversation with its messages in insertion
// order.
func (s *Store) GetConversation(ctx context.Context, id string) (coretypes.Conversation, error) {
	conv, err := s.getConversationRow(ctx, s.db, id)
	if err != nil {
		return coretypes.Conversation{}, err
	}
	msgs, err := s.getMessages(ctx, id)
	if err != nil {
		return coretypes.Conversation{}, err
	}
	conv.Messages = msgs
	return conv, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getConversationRow(ctx context.Context, q queryer, id string) (coretypes.Conversation, error) {
	var conv coretypes.Conversation
	var topicID sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT id, title, topic_id, status, created_at, updated_at FROM conversations WHERE id = ?`, id).
		Scan(&conv.ID, &conv.Title, &topicID, &conv.Status, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return coretypes.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return coretypes.Conversation{}, fmt.Errorf("store: get conversation: %w", err)
	}
	if topicID.Valid {
		conv.TopicID = &topicID.String
	}
	return conv, nil
}

func (s *Store) getMessages(ctx context.Context, conversationID string) ([]coretypes.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, model_ref, timestamp FROM messages WHERE conversation_id = ? ORDER BY timestamp ASC, rowid ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var out []coretypes.Message
	for rows.Next() {
		var m coretypes.Message
		var modelRef sql.NullString
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &modelRef, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		if modelRef.Valid {
			m.ModelRef = &modelRef.String
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListConversations returns conversations ordered by most-recently
// updated, optionally filtered by topic name.
func (s *Store) ListConversations(ctx context.Context, topicName string) ([]coretypes.Conversation, error) {
	query := `SELECT c.id, c.title, c.topic_id, c.status, c.created_at, c.updated_at FROM conversations c`
	args := []any{}
	if topicName != "" {
		query += ` JOIN topics t ON t.id = c.topic_id WHERE t.name = ?`
		args = append(args, topicName)
	}
	query += ` ORDER BY c.updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}
	defer rows.Close()

	var out []coretypes.Conversation
	for rows.Next() {
		var conv coretypes.Conversation
		var topicID sql.NullString
		if err := rows.Scan(&conv.ID, &conv.Title, &topicID, &conv.Status, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan conversation: %w", err)
		}
		if topicID.Valid {
			conv.TopicID = &topicID.String
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

// DeleteConversation removes a conversation and cascades to its
// messages via the schema's ON DELETE CASCADE.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete conversation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrConversationNotFound
	}
	s.notify(Event{Kind: EventConversationDeleted, ConversationID: id})
	return nil
}

// UpdateTitle renames a conversation, firing EventTitleChanged.
func (s *Store) UpdateTitle(ctx context.Context, id string, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return fmt.Errorf("store: update title: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrConversationNotFound
	}
	s.notify(Event{Kind: EventTitleChanged, ConversationID: id})
	return nil
}

// SearchFilter narrows SearchConversations.
type SearchFilter struct {
	TopicName string
	DateFrom  *time.Time
	DateTo    *time.Time
	Status    *coretypes.ConversationStatus
}

// SearchConversations ranks conversations whose title or any message's
// content matches query (fts5 MATCH over messages, LIKE over title),
// honoring the invariant searchConversations(word) ⊇ {C : any message
// in C contains word}.
func (s *Store) SearchConversations(ctx context.Context, query string, filter SearchFilter) ([]coretypes.Conversation, error) {
	sqlQuery := `
		SELECT DISTINCT c.id, c.title, c.topic_id, c.status, c.created_at, c.updated_at
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		LEFT JOIN messages_fts f ON f.rowid = m.rowid
		LEFT JOIN topics t ON t.id = c.topic_id
		WHERE (c.title LIKE ? OR f MATCH ?)`
	args := []any{"%" + query + "%", ftsQuery(query)}

	if filter.TopicName != "" {
		sqlQuery += ` AND t.name = ?`
		args = append(args, filter.TopicName)
	}
	if filter.Status != nil {
		sqlQuery += ` AND c.status = ?`
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		sqlQuery += ` AND c.updated_at >= ?`
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		sqlQuery += ` AND c.updated_at <= ?`
		args = append(args, *filter.DateTo)
	}
	sqlQuery += ` ORDER BY c.updated_at DESC`

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("store: search conversations: %w", err)
	}
	defer rows.Close()

	var out []coretypes.Conversation
	for rows.Next() {
		var conv coretypes.Conversation
		var topicID sql.NullString
		if err := rows.Scan(&conv.ID, &conv.Title, &topicID, &conv.Status, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan search result: %w", err)
		}
		if topicID.Valid {
			conv.TopicID = &topicID.String
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

// ftsQuery escapes query for use as an fts5 MATCH argument by quoting
// it as a single phrase, so punctuation in the search text can't be
// misread as fts5 query syntax.
func ftsQuery(query string) string {
	return `"` + query + `"`
}
