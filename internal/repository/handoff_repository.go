package repository

import (
	"context"

	"bnbconcierge/internal/entities"

	"github.com/jackc/pgx/v5/pgxpool"
)

type HandoffRepository struct {
	db *pgxpool.Pool
}

func NewHandoffRepository(db *pgxpool.Pool) *HandoffRepository {
	return &HandoffRepository{db: db}
}

func (r *HandoffRepository) Create(ctx context.Context, h *entities.HandoffRequest) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO handoff_requests (contact, guest_last_name, property_id, booking_id, user_message, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, h.Contact, h.GuestLastName, h.PropertyID, h.BookingID, h.UserMessage, h.Reason).
		Scan(&h.ID, &h.CreatedAt)
}

func (r *HandoffRepository) Recent(ctx context.Context, limit int) ([]entities.HandoffRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, contact, COALESCE(guest_last_name,''), COALESCE(property_id,''),
		       COALESCE(booking_id,''), user_message, reason, created_at
		FROM handoff_requests ORDER BY id DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []entities.HandoffRequest{}
	for rows.Next() {
		var h entities.HandoffRequest
		if err := rows.Scan(&h.ID, &h.Contact, &h.GuestLastName, &h.PropertyID,
			&h.BookingID, &h.UserMessage, &h.Reason, &h.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, h)
	}
	return items, rows.Err()
}

func (r *HandoffRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM handoff_requests").Scan(&n)
	return n, err
}
