package storage

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/richinex/clonr/model"
)

const cloneColumns = `c.id, c.creator_id, c.name, c.short_description, c.long_description,
	c.greeting, c.avatar_uri, c.is_public, c.num_messages, c.num_conversations,
	c.created_at, c.updated_at`

func scanClone(row scanner) (model.Clone, error) {
	var c model.Clone
	var created, updated int64
	err := row.Scan(&c.ID, &c.CreatorID, &c.Name, &c.ShortDescription, &c.LongDescription,
		&c.Greeting, &c.AvatarURI, &c.IsPublic, &c.NumMessages, &c.NumConversations,
		&created, &updated)
	if err != nil {
		return model.Clone{}, err
	}
	c.CreatedAt = fromUnixNano(created)
	c.UpdatedAt = fromUnixNano(updated)
	c.Tags = []model.Tag{}
	return c, nil
}

// CreateTag creates a tag, or returns the existing tag with that name.
func (s *SqliteStorage) CreateTag(ctx context.Context, name, color string) (model.Tag, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Tag{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id, err := s.tagID(ctx, tx, name, color)
	if err != nil {
		return model.Tag{}, err
	}
	var t model.Tag
	var created int64
	err = tx.QueryRowContext(ctx,
		"SELECT id, name, color_code, created_at FROM tags WHERE id = ?", id).
		Scan(&t.ID, &t.Name, &t.ColorCode, &created)
	if err != nil {
		return model.Tag{}, fmt.Errorf("failed to read tag: %w", err)
	}
	t.CreatedAt = fromUnixNano(created)

	if err := tx.Commit(); err != nil {
		return model.Tag{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return t, nil
}

func (s *SqliteStorage) tagID(ctx context.Context, tx *sql.Tx, name, color string) (string, error) {
	_, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO tags (id, name, color_code, created_at) VALUES (?, ?, ?, ?)",
		uuid.NewString(), name, color, unixNano(s.now()))
	if err != nil {
		return "", fmt.Errorf("failed to insert tag: %w", err)
	}
	var id string
	if err := tx.QueryRowContext(ctx, "SELECT id FROM tags WHERE name = ?", name).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to look up tag: %w", err)
	}
	return id, nil
}

// ListTags lists all tags by name.
func (s *SqliteStorage) ListTags(ctx context.Context) ([]model.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, color_code, created_at FROM tags ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	tags := []model.Tag{}
	for rows.Next() {
		var t model.Tag
		var created int64
		if err := rows.Scan(&t.ID, &t.Name, &t.ColorCode, &created); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		t.CreatedAt = fromUnixNano(created)
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}
	return tags, nil
}

// CreateClone creates a clone and any tags it names.
func (s *SqliteStorage) CreateClone(ctx context.Context, nc NewClone) (model.Clone, error) {
	if strings.TrimSpace(nc.Name) == "" {
		return model.Clone{}, fmt.Errorf("clone name is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Clone{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id := uuid.NewString()
	now := unixNano(s.now())
	_, err = tx.ExecContext(ctx, `
		INSERT INTO clones
		(id, creator_id, name, short_description, long_description, greeting, avatar_uri, is_public, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, nc.CreatorID, nc.Name, nc.ShortDescription, nc.LongDescription, nc.Greeting,
		nc.AvatarURI, !nc.Private, now, now)
	if err != nil {
		return model.Clone{}, fmt.Errorf("failed to insert clone: %w", err)
	}

	for _, name := range nc.Tags {
		tagID, err := s.tagID(ctx, tx, name, "")
		if err != nil {
			return model.Clone{}, err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO clone_tags (clone_id, tag_id) VALUES (?, ?)", id, tagID); err != nil {
			return model.Clone{}, fmt.Errorf("failed to tag clone: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Clone{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return s.GetClone(ctx, id)
}

// GetClone returns one clone with its tags.
func (s *SqliteStorage) GetClone(ctx context.Context, id string) (model.Clone, error) {
	c, err := scanClone(s.db.QueryRowContext(ctx,
		"SELECT "+cloneColumns+" FROM clones c WHERE c.id = ?", id))
	if err == sql.ErrNoRows {
		return model.Clone{}, fmt.Errorf("clone %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Clone{}, fmt.Errorf("failed to read clone: %w", err)
	}
	clones := []model.Clone{c}
	if err := s.attachTags(ctx, clones); err != nil {
		return model.Clone{}, err
	}
	return clones[0], nil
}

// ListClones searches public clones.
//
// Sort orders: top (most messages), trending (most conversations), newest,
// oldest, alphabetical, and similarity (names closest to f.Similar, or to
// f.Name when Similar is empty). Ties fall back to insertion order so that
// offset windows are stable.
func (s *SqliteStorage) ListClones(ctx context.Context, f CloneFilter, offset, limit int) ([]model.Clone, error) {
	where := []string{"c.is_public = 1"}
	var args []any

	if f.Name != "" {
		where = append(where, `c.name LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.Name)+"%")
	}

	tags := slices.Clone(f.Tags)
	slices.Sort(tags)
	tags = slices.Compact(tags)
	if len(tags) > 0 {
		where = append(where, fmt.Sprintf(`c.id IN (
			SELECT clone_id FROM clone_tags WHERE tag_id IN (%s)
			GROUP BY clone_id HAVING COUNT(DISTINCT tag_id) = ?)`, placeholders(len(tags))))
		for _, t := range tags {
			args = append(args, t)
		}
		args = append(args, len(tags))
	}

	var order string
	switch f.Sort {
	case "", "top":
		order = "c.num_messages DESC, c.rowid DESC"
	case "trending":
		order = "c.num_conversations DESC, c.updated_at DESC, c.rowid DESC"
	case "newest":
		order = "c.created_at DESC, c.rowid DESC"
	case "oldest":
		order = "c.created_at ASC, c.rowid ASC"
	case "alphabetical":
		order = "c.name COLLATE NOCASE ASC, c.rowid ASC"
	case "similarity":
		target := f.Similar
		if target == "" {
			target = f.Name
		}
		target = escapeLike(target)
		order = `CASE
			WHEN c.name LIKE ? ESCAPE '\' THEN 0
			WHEN c.name LIKE ? ESCAPE '\' THEN 1
			WHEN c.short_description LIKE ? ESCAPE '\' THEN 2
			ELSE 3 END, c.name COLLATE NOCASE ASC, c.rowid ASC`
		args = append(args, target, target+"%", "%"+target+"%")
	default:
		return nil, fmt.Errorf("unknown sort order %q", f.Sort)
	}

	query := "SELECT " + cloneColumns + " FROM clones c WHERE " + strings.Join(where, " AND ") +
		" ORDER BY " + order + " LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clones: %w", err)
	}
	defer rows.Close()

	clones := []model.Clone{}
	for rows.Next() {
		c, err := scanClone(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan clone: %w", err)
		}
		clones = append(clones, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clones: %w", err)
	}

	if err := s.attachTags(ctx, clones); err != nil {
		return nil, err
	}
	return clones, nil
}

// attachTags fills Tags of every clone in one query.
func (s *SqliteStorage) attachTags(ctx context.Context, clones []model.Clone) error {
	if len(clones) == 0 {
		return nil
	}
	index := make(map[string]int, len(clones))
	args := make([]any, len(clones))
	for i, c := range clones {
		index[c.ID] = i
		args[i] = c.ID
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT ct.clone_id, t.id, t.name, t.color_code, t.created_at
		FROM clone_tags ct JOIN tags t ON t.id = ct.tag_id
		WHERE ct.clone_id IN (%s)
		ORDER BY t.name ASC`, placeholders(len(clones))), args...)
	if err != nil {
		return fmt.Errorf("failed to query clone tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cloneID string
		var t model.Tag
		var created int64
		if err := rows.Scan(&cloneID, &t.ID, &t.Name, &t.ColorCode, &created); err != nil {
			return fmt.Errorf("failed to scan clone tag: %w", err)
		}
		t.CreatedAt = fromUnixNano(created)
		i := index[cloneID]
		clones[i].Tags = append(clones[i].Tags, t)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating clone tags: %w", err)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
