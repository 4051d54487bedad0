package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/studyctl/internal/models"
	"github.com/desertthunder/studyctl/internal/shared"
)

// ConversationRepository implements models.Repository[*models.Conversation] for saved chat transcripts.
//
// Messages live in their own table and are always returned in transcript order.
type ConversationRepository struct {
	db *sql.DB
}

// NewConversationRepository creates a new ConversationRepository with the given database connection
func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create inserts a conversation and its messages with generated ID and sequence
func (r *ConversationRepository) Create(conv *models.Conversation) error {
	sequence, err := NextSequence(r.db, "conversations")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	conv.SetID(id)
	conv.SetSequence(sequence)

	if err := conv.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO conversations (id, sequence, session_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	if _, err := tx.Exec(query, id, sequence, conv.SessionID(), conv.Title(), conv.CreatedAt(), conv.UpdatedAt()); err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}

	if err := insertMessages(tx, id, 0, conv.Messages()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit conversation: %w", err)
	}
	return nil
}

// Get retrieves a conversation with its messages, excluding soft-deleted conversations
func (r *ConversationRepository) Get(id string) (*models.Conversation, error) {
	query := `
		SELECT id, sequence, session_id, title, created_at, updated_at, deleted_at
		FROM conversations
		WHERE id = ? AND deleted_at IS NULL
	`

	conv, err := r.scan(r.db.QueryRow(query, id))
	if err != nil {
		return nil, err
	}

	if err := r.loadMessages(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// Update modifies the title and session id of an existing conversation. Messages are only added through AppendMessages.
func (r *ConversationRepository) Update(conv *models.Conversation) error {
	if err := conv.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	conv.SetUpdatedAt(now)

	query := `
		UPDATE conversations
		SET title = ?, session_id = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, conv.Title(), conv.SessionID(), now, conv.ID())
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}

	return expectRow(result, shared.ErrConversationNotFound, conv.ID())
}

// AppendMessages adds messages after the last stored message of the conversation
func (r *ConversationRepository) AppendMessages(id string, messages ...models.ChatMessage) error {
	for i, m := range messages {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("validation failed: message %d: %w", i, err)
		}
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if err := expectRow(result, shared.ErrConversationNotFound, id); err != nil {
		return err
	}

	var next int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(position) + 1, 0) FROM messages WHERE conversation_id = ?`, id).Scan(&next); err != nil {
		return fmt.Errorf("failed to get message position: %w", err)
	}

	if err := insertMessages(tx, id, next, messages); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit messages: %w", err)
	}
	return nil
}

// Delete soft-deletes a conversation by ID
func (r *ConversationRepository) Delete(id string) error {
	query := `
		UPDATE conversations
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	return expectRow(result, shared.ErrConversationNotFound, id)
}

// List retrieves conversations matching the given criteria, newest first, excluding soft-deleted conversations.
//
// Supported criteria: "session_id" (string) and "limit" (int).
func (r *ConversationRepository) List(criteria map[string]any) ([]*models.Conversation, error) {
	query := `
		SELECT id, sequence, session_id, title, created_at, updated_at, deleted_at
		FROM conversations
		WHERE deleted_at IS NULL
	`

	args := []any{}

	if sessionID, ok := criteria["session_id"].(string); ok && sessionID != "" {
		query += " AND session_id = ?"
		args = append(args, sessionID)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}

	var conversations []*models.Conversation
	for rows.Next() {
		conv, err := r.scan(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	rows.Close()

	// Messages are loaded after the cursor is closed; in-memory databases use a single connection.
	for _, conv := range conversations {
		if err := r.loadMessages(conv); err != nil {
			return nil, err
		}
	}

	return conversations, nil
}

func (r *ConversationRepository) loadMessages(conv *models.Conversation) error {
	rows, err := r.db.Query(`SELECT role, content FROM messages WHERE conversation_id = ? ORDER BY position ASC`, conv.ID())
	if err != nil {
		return fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, models.ChatMessage{Role: models.Role(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}

	conv.AppendMessages(messages...)
	return nil
}

// scan reads a conversation row without its messages
func (r *ConversationRepository) scan(row scanner) (*models.Conversation, error) {
	var (
		id        string
		sequence  int
		sessionID string
		title     string
		createdAt time.Time
		updatedAt time.Time
		deletedAt sql.NullTime
	)

	err := row.Scan(&id, &sequence, &sessionID, &title, &createdAt, &updatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}

	conv := models.NewConversation(sequence, sessionID, title, nil)
	conv.SetID(id)
	conv.SetCreatedAt(createdAt)
	conv.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		conv.SetDeletedAt(&deletedAt.Time)
	}

	return conv, nil
}

func insertMessages(tx *sql.Tx, conversationID string, start int, messages []models.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(`
		INSERT INTO messages (id, conversation_id, position, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for i, m := range messages {
		if _, err := stmt.Exec(shared.GenerateID(), conversationID, start+i, string(m.Role), m.Content, now); err != nil {
			return fmt.Errorf("failed to insert message %d: %w", start+i, err)
		}
	}
	return nil
}
