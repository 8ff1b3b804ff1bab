package interfaces

import (
	"context"

	"bnbconcierge/internal/entities"
)

// BookingResolver resolves an identifying signal to a reservation.
// Implementations: the CiaoBooking HTTP client and the fixture-backed
// mock; selected once at startup, never per request.
type BookingResolver interface {
	// Resolve returns nil (not an error) when no booking matches.
	Resolve(ctx context.Context, signal string) (*entities.GuestContext, error)
}

// Embedder generates vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces a chat completion from a prompt transcript.
type Generator interface {
	ChatCompletion(ctx context.Context, messages []entities.PromptMessage) (string, error)
}

// Retriever ranks candidate entries against a query. It never fails:
// when nothing is relevant it returns an empty slice.
type Retriever interface {
	Rank(ctx context.Context, query string, entries []entities.KBEntry) []entities.ScoredEntry
}

// SessionStore persists per-contact conversation records.
type SessionStore interface {
	GetOrCreate(ctx context.Context, contact string) (*entities.ChatSession, error)
	SaveBookingContext(ctx context.Context, contact string, guest *entities.GuestContext) error
	UpdateMemory(ctx context.Context, contact, summary string) error
	Count(ctx context.Context) (int, error)
}

// MessageStore persists conversation turns.
type MessageStore interface {
	Append(ctx context.Context, sessionID int64, role, content string) error
	Recent(ctx context.Context, sessionID int64, limit int) ([]entities.ChatMessage, error)
}

// HandoffStore records conversations escalated to the host.
type HandoffStore interface {
	Create(ctx context.Context, h *entities.HandoffRequest) error
	Recent(ctx context.Context, limit int) ([]entities.HandoffRequest, error)
	Count(ctx context.Context) (int, error)
}

// HandoffNotifier pushes a handoff to the host, best-effort.
type HandoffNotifier interface {
	Notify(ctx context.Context, h *entities.HandoffRequest)
}
