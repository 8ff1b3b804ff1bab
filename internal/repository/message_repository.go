package repository

import (
	"context"

	"bnbconcierge/internal/entities"

	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Append(ctx context.Context, sessionID int64, role, content string) error {
	_, err := r.db.Exec(ctx,
		"INSERT INTO chat_messages (session_id, role, content) VALUES ($1, $2, $3)",
		sessionID, role, content)
	return err
}

// Recent returns the last `limit` turns in chronological order.
func (r *MessageRepository) Recent(ctx context.Context, sessionID int64, limit int) ([]entities.ChatMessage, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, session_id, role, content, created_at
		FROM chat_messages WHERE session_id=$1
		ORDER BY id DESC LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []entities.ChatMessage{}
	for rows.Next() {
		var m entities.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
