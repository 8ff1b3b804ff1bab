package entities

import "time"

// ChatSession is the durable per-contact conversation record.
type ChatSession struct {
	ID            int64
	Contact       string
	BookingID     string
	PropertyID    string
	GuestLastName string
	MemorySummary string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ChatMessage is a single stored conversation turn.
type ChatMessage struct {
	ID        int64
	SessionID int64
	Role      string // "user" | "assistant"
	Content   string
	CreatedAt time.Time
}

// HandoffRequest records a conversation escalated to the host.
type HandoffRequest struct {
	ID            int64
	Contact       string
	GuestLastName string
	PropertyID    string
	BookingID     string
	UserMessage   string
	Reason        string
	CreatedAt     time.Time
}

// PromptMessage is one turn of a generation request.
type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Answer statuses.
const (
	StatusOK      = "ok"
	StatusHandoff = "handoff"
)

// Answer is the composed reply returned upstream.
type Answer struct {
	Text         string  `json:"assistant_message"`
	Status       string  `json:"status"`
	BookingFound bool    `json:"booking_found"`
	KBUsed       bool    `json:"kb_used"`
	BestScore    float64 `json:"kb_best_score"`
}
