package usecases

import (
	"context"
	"errors"
	"testing"

	"bnbconcierge/internal/entities"
	"bnbconcierge/internal/infrastructure"
	"bnbconcierge/internal/repository"
)

// mockResolver implements interfaces.BookingResolver for testing
type mockResolver struct {
	guest *entities.GuestContext
	err   error
	calls int
}

func (m *mockResolver) Resolve(ctx context.Context, signal string) (*entities.GuestContext, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.guest, nil
}

// mockHandoffs implements interfaces.HandoffStore for testing
type mockHandoffs struct {
	items []entities.HandoffRequest
}

func (m *mockHandoffs) Create(ctx context.Context, h *entities.HandoffRequest) error {
	m.items = append(m.items, *h)
	return nil
}

func (m *mockHandoffs) Recent(ctx context.Context, limit int) ([]entities.HandoffRequest, error) {
	return m.items, nil
}

func (m *mockHandoffs) Count(ctx context.Context) (int, error) {
	return len(m.items), nil
}

// mockNotifier implements interfaces.HandoffNotifier for testing
type mockNotifier struct {
	calls int
}

func (m *mockNotifier) Notify(ctx context.Context, h *entities.HandoffRequest) {
	m.calls++
}

func testKB() *entities.KnowledgeBase {
	return &entities.KnowledgeBase{
		Entries: []entities.KBEntry{
			{Row: 0, Category: "Wi-Fi", Description: "password del wifi", Answer: "La password del WiFi è 1234"},
			{Row: 1, Category: "Parcheggio", Unit: "Suite Mare", Description: "dove parcheggiare", Answer: "Il parcheggio della Suite Mare è in via Roma 3"},
		},
	}
}

func newTestPipeline(resolver *mockResolver, handoffs *mockHandoffs, notifier *mockNotifier) *ConversationPipeline {
	kb := repository.NewKnowledgeStore(nil)
	kb.Replace(testKB())
	retriever := NewHybridRetriever(nil, 6, 0.30)
	composer := NewAnswerComposer(nil)
	sessions := infrastructure.NewSessionManager(0)
	return NewConversationPipeline(kb, resolver, retriever, composer, sessions, nil, nil, handoffs, notifier)
}

func TestHandleMessage_ResolvesBookingOnce(t *testing.T) {
	resolver := &mockResolver{guest: &entities.GuestContext{
		BookingID:     "BK-1",
		PropertyID:    "Suite Mare",
		GuestLastName: "Rossi",
	}}
	p := newTestPipeline(resolver, &mockHandoffs{}, &mockNotifier{})

	a1 := p.HandleMessage(context.Background(), "+393331112233", "qual è la password del wifi?")
	a2 := p.HandleMessage(context.Background(), "+393331112233", "e dove posso parcheggiare?")

	if resolver.calls != 1 {
		t.Errorf("expected one resolver call for the session, got %d", resolver.calls)
	}
	if !a1.BookingFound || !a2.BookingFound {
		t.Error("booking should be found on both turns")
	}
}

func TestHandleMessage_UnitScopedEntryForResolvedGuest(t *testing.T) {
	resolver := &mockResolver{guest: &entities.GuestContext{
		BookingID:  "BK-1",
		PropertyID: "Suite Mare",
	}}
	p := newTestPipeline(resolver, &mockHandoffs{}, &mockNotifier{})

	a := p.HandleMessage(context.Background(), "+393331112233", "dove posso parcheggiare?")

	if a.Status != entities.StatusOK {
		t.Fatalf("expected ok, got %s (%q)", a.Status, a.Text)
	}
	if a.Text != "Il parcheggio della Suite Mare è in via Roma 3" {
		t.Errorf("unexpected answer: %q", a.Text)
	}
}

func TestHandleMessage_UnidentifiedGuestGetsGeneralAnswers(t *testing.T) {
	resolver := &mockResolver{}
	p := newTestPipeline(resolver, &mockHandoffs{}, &mockNotifier{})

	a := p.HandleMessage(context.Background(), "web:abc", "qual è la password del wifi?")

	if resolver.calls != 0 {
		t.Errorf("no signal available, resolver should not be called, got %d", resolver.calls)
	}
	if a.BookingFound {
		t.Error("no booking should be found")
	}
	if a.Text != "La password del WiFi è 1234" {
		t.Errorf("general entry should still answer, got %q", a.Text)
	}
}

func TestHandleMessage_UnidentifiedGuestExcludedFromUnitEntries(t *testing.T) {
	handoffs := &mockHandoffs{}
	notifier := &mockNotifier{}
	p := newTestPipeline(&mockResolver{}, handoffs, notifier)

	a := p.HandleMessage(context.Background(), "web:abc", "dove posso parcheggiare?")

	if a.Status != entities.StatusHandoff {
		t.Fatalf("unit-scoped knowledge must not leak, got status %s (%q)", a.Status, a.Text)
	}
	if len(handoffs.items) != 1 {
		t.Fatalf("expected one handoff record, got %d", len(handoffs.items))
	}
	if handoffs.items[0].Reason != ReasonNoAnswer {
		t.Errorf("expected reason %q, got %q", ReasonNoAnswer, handoffs.items[0].Reason)
	}
	if notifier.calls != 1 {
		t.Errorf("expected one webhook notification, got %d", notifier.calls)
	}
}

func TestHandleMessage_NotFoundSignalNotRetried(t *testing.T) {
	resolver := &mockResolver{} // resolves to nil: no booking
	p := newTestPipeline(resolver, &mockHandoffs{}, &mockNotifier{})

	p.HandleMessage(context.Background(), "+393339998877", "ciao")
	p.HandleMessage(context.Background(), "+393339998877", "wifi?")

	if resolver.calls != 1 {
		t.Errorf("failed lookup for the same signal should be cached, got %d calls", resolver.calls)
	}
}

func TestHandleMessage_ResolverErrorDowngradesAndRetries(t *testing.T) {
	resolver := &mockResolver{err: errors.New("ciaobooking down")}
	p := newTestPipeline(resolver, &mockHandoffs{}, &mockNotifier{})

	a := p.HandleMessage(context.Background(), "+393331112233", "qual è la password del wifi?")
	p.HandleMessage(context.Background(), "+393331112233", "wifi password?")

	if a.BookingFound {
		t.Error("resolver failure must downgrade to unidentified")
	}
	if a.Text != "La password del WiFi è 1234" {
		t.Errorf("general knowledge should still answer, got %q", a.Text)
	}
	if resolver.calls != 2 {
		t.Errorf("errors should be retried next turn, got %d calls", resolver.calls)
	}
}

func TestHandleMessage_NewSignalTriggersReResolution(t *testing.T) {
	resolver := &mockResolver{guest: &entities.GuestContext{BookingID: "BK-1", PropertyID: "Suite Mare"}}
	p := newTestPipeline(resolver, &mockHandoffs{}, &mockNotifier{})

	p.HandleMessage(context.Background(), "tg:42", "il mio numero è +393331112233")
	p.HandleMessage(context.Background(), "tg:42", "anzi, usa +447700900123")

	if resolver.calls != 2 {
		t.Errorf("a new in-text signal should re-resolve, got %d calls", resolver.calls)
	}
}

func TestHandleMessage_PhoneExtractedFromText(t *testing.T) {
	resolver := &mockResolver{guest: &entities.GuestContext{BookingID: "BK-2", PropertyID: "Trilo Giardino"}}
	p := newTestPipeline(resolver, &mockHandoffs{}, &mockNotifier{})

	a := p.HandleMessage(context.Background(), "tg:99887", "Ciao, il mio numero è +39 333 111 2233")

	if resolver.calls != 1 {
		t.Errorf("expected phone in text to trigger a lookup, got %d calls", resolver.calls)
	}
	if !a.BookingFound {
		t.Error("booking should be resolved from the in-text phone number")
	}
}
