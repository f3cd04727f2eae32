package convos

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Conversation struct {
	ID        int64
	UserID    int64
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	ID             int64
	ConversationID int64
	Role           string // user, assistant, tool
	Content        string
	Model          string
	ToolName       string
	CreatedAt      time.Time
}

// Insert creates a conversation and sets its ID.
func (c *Conversation) Insert(ctx context.Context, d *sql.DB) error {
	res, err := d.ExecContext(ctx,
		"INSERT INTO conversations (user_id, title) VALUES (?, ?)",
		c.UserID, c.Title)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	c.ID, err = res.LastInsertId()
	return err
}

// Touch bumps the conversation's updated_at so it sorts to the top of the list.
func (c *Conversation) Touch(ctx context.Context, d *sql.DB) error {
	_, err := d.ExecContext(ctx,
		"UPDATE conversations SET updated_at = CURRENT_TIMESTAMP WHERE id = ?", c.ID)
	return err
}

// GetByID loads a conversation, scoped to the owning user.
func GetByID(ctx context.Context, d *sql.DB, userID, id int64) (Conversation, error) {
	var c Conversation
	err := d.QueryRowContext(ctx,
		"SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE id = ? AND user_id = ?",
		id, userID).Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	return c, nil
}

// List returns the user's conversations newest-first. The cursor is the ID of
// the last conversation from the previous page; zero means the first page.
// It fetches one extra row to report whether another page exists.
func List(ctx context.Context, d *sql.DB, userID int64, limit int, cursor int64) (convos []Conversation, hasMore bool, err error) {
	q := `SELECT id, user_id, title, created_at, updated_at FROM conversations
		WHERE user_id = ?`
	args := []any{userID}
	if cursor > 0 {
		q += " AND id < ?"
		args = append(args, cursor)
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit+1)
	rows, err := d.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, false, err
		}
		convos = append(convos, c)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if len(convos) > limit {
		convos = convos[:limit]
		hasMore = true
	}
	return convos, hasMore, nil
}

// Insert appends a message to its conversation.
func (m *Message) Insert(ctx context.Context, d *sql.DB) error {
	res, err := d.ExecContext(ctx,
		"INSERT INTO messages (conversation_id, role, content, model, tool_name) VALUES (?, ?, ?, ?, ?)",
		m.ConversationID, m.Role, m.Content, m.Model, m.ToolName)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	m.ID, err = res.LastInsertId()
	return err
}

// Messages returns a conversation's messages oldest-first.
func Messages(ctx context.Context, d *sql.DB, conversationID int64) ([]Message, error) {
	rows, err := d.QueryContext(ctx,
		"SELECT id, conversation_id, role, content, model, tool_name, created_at FROM messages WHERE conversation_id = ? ORDER BY id ASC",
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()
	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Model, &m.ToolName, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
