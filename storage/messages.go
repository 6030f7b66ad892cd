package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/richinex/clonr/model"
)

// AddMessage appends a message to its conversation and updates the
// conversation preview and the clone's message count.
func (s *SqliteStorage) AddMessage(ctx context.Context, m NewMessage) (model.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var userID, cloneID string
	err = tx.QueryRowContext(ctx,
		"SELECT user_id, clone_id FROM conversations WHERE id = ?", m.ConversationID).
		Scan(&userID, &cloneID)
	if err == sql.ErrNoRows {
		return model.Message{}, fmt.Errorf("conversation %s: %w", m.ConversationID, ErrNotFound)
	}
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to read conversation: %w", err)
	}
	if m.UserID == "" {
		m.UserID = userID
	}

	msg, err := s.insertMessage(ctx, tx, m, cloneID)
	if err != nil {
		return model.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Message{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return msg, nil
}

func (s *SqliteStorage) insertMessage(ctx context.Context, tx *sql.Tx, m NewMessage, cloneID string) (model.Message, error) {
	msg := model.Message{
		ID:             uuid.NewString(),
		Content:        m.Content,
		SenderName:     m.SenderName,
		IsClone:        m.IsClone,
		IsActive:       true,
		IsMain:         true,
		ParentID:       m.ParentID,
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		CloneID:        cloneID,
		Timestamp:      s.now().UTC(),
	}
	ts := unixNano(msg.Timestamp)
	msg.Timestamp = fromUnixNano(ts)

	_, err := tx.ExecContext(ctx, `
		INSERT INTO messages
		(id, conversation_id, user_id, clone_id, sender_name, content, is_clone, is_active, is_main, parent_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, 1, ?, ?)`,
		msg.ID, msg.ConversationID, msg.UserID, cloneID, msg.SenderName, msg.Content,
		msg.IsClone, msg.ParentID, ts)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE conversations
		SET last_message = ?, updated_at = ?, num_messages_ever = num_messages_ever + 1
		WHERE id = ?`,
		msg.Content, ts, msg.ConversationID)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to update conversation: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE clones SET num_messages = num_messages + 1 WHERE id = ?", cloneID); err != nil {
		return model.Message{}, fmt.Errorf("failed to count message: %w", err)
	}
	return msg, nil
}

// ListMessages lists messages of a conversation, newest first.
func (s *SqliteStorage) ListMessages(ctx context.Context, conversationID string, f MessageFilter, offset, limit int) ([]model.Message, error) {
	query := `
		SELECT id, content, sender_name, is_clone, is_active, is_main, parent_id,
			conversation_id, user_id, clone_id, timestamp
		FROM messages WHERE conversation_id = ?`
	if f.OnlyActive {
		query += " AND is_active = 1"
	}
	if f.OnlyMain {
		query += " AND is_main = 1"
	}
	query += " ORDER BY seq DESC LIMIT ? OFFSET ?"

	rows, err := s.db.QueryContext(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		var m model.Message
		var ts int64
		if err := rows.Scan(&m.ID, &m.Content, &m.SenderName, &m.IsClone, &m.IsActive, &m.IsMain,
			&m.ParentID, &m.ConversationID, &m.UserID, &m.CloneID, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Timestamp = fromUnixNano(ts)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// RetireLatestReply deactivates the newest active main-thread message so
// that a revision can take its place. It reports ErrNotFound unless that
// message is a clone reply: a user message still waiting for its answer
// is never skipped over.
func (s *SqliteStorage) RetireLatestReply(ctx context.Context, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seq int64
	var isClone bool
	err = tx.QueryRowContext(ctx, `
		SELECT seq, is_clone FROM messages
		WHERE conversation_id = ? AND is_active = 1 AND is_main = 1
		ORDER BY seq DESC LIMIT 1`,
		conversationID).Scan(&seq, &isClone)
	if err == sql.ErrNoRows || (err == nil && !isClone) {
		return fmt.Errorf("reply in conversation %s: %w", conversationID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to find reply: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE messages SET is_active = 0 WHERE seq = ?", seq); err != nil {
		return fmt.Errorf("failed to retire reply: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
