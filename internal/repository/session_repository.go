package repository

import (
	"context"

	"bnbconcierge/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionRepository struct {
	db *pgxpool.Pool
}

func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

// GetOrCreate returns the durable session for a contact, inserting one
// on first sight.
func (r *SessionRepository) GetOrCreate(ctx context.Context, contact string) (*entities.ChatSession, error) {
	sess, err := r.getByContact(ctx, contact)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}

	var s entities.ChatSession
	err = r.db.QueryRow(ctx, `
		INSERT INTO chat_sessions (contact) VALUES ($1)
		ON CONFLICT (contact) DO UPDATE SET updated_at = NOW()
		RETURNING id, contact, COALESCE(booking_id,''), COALESCE(property_id,''),
		          COALESCE(guest_last_name,''), COALESCE(memory_summary,''), created_at, updated_at
	`, contact).Scan(&s.ID, &s.Contact, &s.BookingID, &s.PropertyID,
		&s.GuestLastName, &s.MemorySummary, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) getByContact(ctx context.Context, contact string) (*entities.ChatSession, error) {
	var s entities.ChatSession
	err := r.db.QueryRow(ctx, `
		SELECT id, contact, COALESCE(booking_id,''), COALESCE(property_id,''),
		       COALESCE(guest_last_name,''), COALESCE(memory_summary,''), created_at, updated_at
		FROM chat_sessions WHERE contact = $1
	`, contact).Scan(&s.ID, &s.Contact, &s.BookingID, &s.PropertyID,
		&s.GuestLastName, &s.MemorySummary, &s.CreatedAt, &s.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveBookingContext persists the resolved reservation on the session.
func (r *SessionRepository) SaveBookingContext(ctx context.Context, contact string, guest *entities.GuestContext) error {
	if guest == nil {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		UPDATE chat_sessions
		SET booking_id=$1, property_id=$2, guest_last_name=$3, updated_at=NOW()
		WHERE contact=$4
	`, guest.BookingID, guest.PropertyID, guest.GuestLastName, contact)
	return err
}

func (r *SessionRepository) UpdateMemory(ctx context.Context, contact, summary string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE chat_sessions SET memory_summary=$1, updated_at=NOW() WHERE contact=$2
	`, summary, contact)
	return err
}

func (r *SessionRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM chat_sessions").Scan(&n)
	return n, err
}
