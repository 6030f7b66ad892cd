package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/richinex/clonr/model"
)

const conversationColumns = `v.id, v.name, v.user_id, v.clone_id, c.name, v.memory_strategy,
	v.information_strategy, v.is_active, v.num_messages_ever, v.last_message,
	v.created_at, v.updated_at`

func scanConversation(row scanner) (model.Conversation, error) {
	var v model.Conversation
	var created, updated int64
	err := row.Scan(&v.ID, &v.Name, &v.UserID, &v.CloneID, &v.CloneName, &v.MemoryStrategy,
		&v.InformationStrategy, &v.IsActive, &v.NumMessages, &v.LastMessage,
		&created, &updated)
	if err != nil {
		return model.Conversation{}, err
	}
	v.CreatedAt = fromUnixNano(created)
	v.UpdatedAt = fromUnixNano(updated)
	return v, nil
}

// CreateConversation starts a conversation between userID and cloneID.
// The clone's greeting, if any, becomes the first message.
func (s *SqliteStorage) CreateConversation(ctx context.Context, userID, cloneID, name string) (model.Conversation, error) {
	clone, err := s.GetClone(ctx, cloneID)
	if err != nil {
		return model.Conversation{}, err
	}
	if name == "" {
		name = clone.Name
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id := uuid.NewString()
	now := unixNano(s.now())
	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, clone_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, cloneID, name, now, now)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("failed to insert conversation: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE clones SET num_conversations = num_conversations + 1 WHERE id = ?", cloneID); err != nil {
		return model.Conversation{}, fmt.Errorf("failed to count conversation: %w", err)
	}

	if clone.Greeting != "" {
		_, err := s.insertMessage(ctx, tx, NewMessage{
			ConversationID: id,
			UserID:         userID,
			SenderName:     clone.Name,
			Content:        clone.Greeting,
			IsClone:        true,
		}, cloneID)
		if err != nil {
			return model.Conversation{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Conversation{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return s.GetConversation(ctx, id)
}

// GetConversation returns one conversation.
func (s *SqliteStorage) GetConversation(ctx context.Context, id string) (model.Conversation, error) {
	v, err := scanConversation(s.db.QueryRowContext(ctx,
		"SELECT "+conversationColumns+" FROM conversations v JOIN clones c ON c.id = v.clone_id WHERE v.id = ?", id))
	if err == sql.ErrNoRows {
		return model.Conversation{}, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Conversation{}, fmt.Errorf("failed to read conversation: %w", err)
	}
	return v, nil
}

// ListConversations lists conversations of userID, most recently updated
// first. An empty cloneID lists conversations with every clone.
func (s *SqliteStorage) ListConversations(ctx context.Context, userID, cloneID string, offset, limit int) ([]model.Conversation, error) {
	query := "SELECT " + conversationColumns + " FROM conversations v JOIN clones c ON c.id = v.clone_id WHERE v.user_id = ?"
	args := []any{userID}
	if cloneID != "" {
		query += " AND v.clone_id = ?"
		args = append(args, cloneID)
	}
	query += " ORDER BY v.updated_at DESC, v.rowid DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	out := []model.Conversation{}
	for rows.Next() {
		v, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return out, nil
}

// Sidebar lists active conversations of userID grouped by clone. Groups
// are ordered by their most recent conversation; f.ConvoLimit caps the
// conversations shown per clone.
func (s *SqliteStorage) Sidebar(ctx context.Context, userID string, f SidebarFilter, offset, limit int) ([]model.SidebarConversation, error) {
	inner := `
		SELECT v.id, v.name, v.clone_id, c.name AS clone_name, c.avatar_uri, v.last_message,
			v.updated_at, v.rowid AS rid,
			MAX(v.updated_at) OVER (PARTITION BY v.clone_id) AS group_updated_at,
			COUNT(*) OVER (PARTITION BY v.clone_id) AS num_with,
			ROW_NUMBER() OVER (PARTITION BY v.clone_id ORDER BY v.updated_at DESC, v.rowid DESC) AS rn
		FROM conversations v JOIN clones c ON c.id = v.clone_id
		WHERE v.user_id = ? AND v.is_active = 1`
	args := []any{userID}
	if f.Name != "" {
		inner += ` AND c.name LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(f.Name)+"%")
	}

	query := `
		SELECT id, name, clone_id, clone_name, avatar_uri, last_message, updated_at, group_updated_at, num_with
		FROM (` + inner + `)
		WHERE ? = 0 OR rn <= ?
		ORDER BY group_updated_at DESC, clone_id ASC, updated_at DESC, rid DESC
		LIMIT ? OFFSET ?`
	args = append(args, f.ConvoLimit, f.ConvoLimit, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sidebar: %w", err)
	}
	defer rows.Close()

	out := []model.SidebarConversation{}
	for rows.Next() {
		var sc model.SidebarConversation
		var updated, group int64
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.CloneID, &sc.CloneName, &sc.AvatarURI,
			&sc.LastMessage, &updated, &group, &sc.NumConversationsWith); err != nil {
			return nil, fmt.Errorf("failed to scan sidebar entry: %w", err)
		}
		sc.LastUpdatedAt = fromUnixNano(updated)
		sc.GroupUpdatedAt = fromUnixNano(group)
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sidebar: %w", err)
	}
	return out, nil
}
