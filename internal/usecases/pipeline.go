package usecases

import (
	"context"
	"errors"
	"log"
	"regexp"

	"bnbconcierge/internal/entities"
	"bnbconcierge/internal/infrastructure"
	"bnbconcierge/internal/interfaces"
	"bnbconcierge/internal/repository"
)

// Handoff reasons recorded with escalations.
const (
	ReasonNoAnswer              = "no_kb_answer"
	ReasonModelHandoff          = "model_handoff"
	ReasonGenerationUnavailable = "generation_unavailable"
)

// ConversationPipeline is the end-to-end message path: identify the
// guest, scope and rank the knowledge, compose a reply, persist the
// turn and escalate when grounding fails. Channels (HTTP, Telegram,
// WhatsApp) all funnel into HandleMessage.
type ConversationPipeline struct {
	kb        *repository.KnowledgeStore
	resolver  interfaces.BookingResolver
	retriever interfaces.Retriever
	composer  *AnswerComposer
	sessions  *infrastructure.SessionManager

	// Durable stores are optional: without a database the concierge
	// still answers, it just forgets.
	store    interfaces.SessionStore
	messages interfaces.MessageStore
	handoffs interfaces.HandoffStore
	notifier interfaces.HandoffNotifier

	memoryEvery  int
	historyLimit int
}

func NewConversationPipeline(
	kb *repository.KnowledgeStore,
	resolver interfaces.BookingResolver,
	retriever interfaces.Retriever,
	composer *AnswerComposer,
	sessions *infrastructure.SessionManager,
	store interfaces.SessionStore,
	messages interfaces.MessageStore,
	handoffs interfaces.HandoffStore,
	notifier interfaces.HandoffNotifier,
) *ConversationPipeline {
	return &ConversationPipeline{
		kb:           kb,
		resolver:     resolver,
		retriever:    retriever,
		composer:     composer,
		sessions:     sessions,
		store:        store,
		messages:     messages,
		handoffs:     handoffs,
		notifier:     notifier,
		memoryEvery:  4,
		historyLimit: 10,
	}
}

// phonePattern finds a phone-looking run inside free text, for channels
// whose contact identifier is not itself a phone number.
var phonePattern = regexp.MustCompile(`\+?\d[\d\s\-.]{6,}\d`)

// extractSignal picks the identifying signal for a turn: the contact
// itself when it is phone-shaped, otherwise the first phone-looking run
// in the message text.
func extractSignal(contact, text string) string {
	if s := entities.NormalizeSignal(contact); len(s) >= 8 {
		return s
	}
	if m := phonePattern.FindString(text); m != "" {
		return entities.NormalizeSignal(m)
	}
	return ""
}

// HandleMessage processes one guest turn and returns the composed
// answer. It never fails the guest: every backend problem downgrades to
// the fallback reply with a handoff.
func (p *ConversationPipeline) HandleMessage(ctx context.Context, contact, text string) *entities.Answer {
	conv := p.sessions.GetOrCreate(contact)

	var session *entities.ChatSession
	if p.store != nil {
		var err error
		session, err = p.store.GetOrCreate(ctx, contact)
		if err != nil {
			log.Printf("[pipeline] session load failed for %s: %v", contact, err)
			session = nil
		}
	}

	guest := p.resolveGuest(ctx, conv, contact, text)

	unit := ""
	if guest != nil {
		unit = guest.PropertyID
	}
	kb := p.kb.Active()
	candidates := kb.EntriesForUnit(unit)
	ranked := p.retriever.Rank(ctx, text, candidates)
	registry := kb.RegistryFor(unit)

	var memory string
	var history []entities.ChatMessage
	if session != nil {
		memory = session.MemorySummary
		if p.messages != nil {
			var err error
			history, err = p.messages.Recent(ctx, session.ID, p.historyLimit)
			if err != nil {
				log.Printf("[pipeline] history load failed for %s: %v", contact, err)
			}
		}
	}

	reply, handoff, err := p.composer.Compose(ctx, guest, registry, memory, history, text, ranked)
	reason := ""
	switch {
	case errors.Is(err, ErrGenerationUnavailable):
		log.Printf("[pipeline] generation failed for %s: %v", contact, err)
		reply = p.composer.fallbackReply(guest)
		handoff = true
		reason = ReasonGenerationUnavailable
	case err != nil:
		log.Printf("[pipeline] compose failed for %s: %v", contact, err)
		reply = p.composer.fallbackReply(guest)
		handoff = true
		reason = ReasonGenerationUnavailable
	case handoff && len(ranked) == 0:
		reason = ReasonNoAnswer
	case handoff:
		reason = ReasonModelHandoff
	}

	if handoff {
		p.recordHandoff(ctx, contact, guest, text, reason)
	}

	if session != nil && p.messages != nil {
		if err := p.messages.Append(ctx, session.ID, "user", text); err != nil {
			log.Printf("[pipeline] persist user turn failed: %v", err)
		}
		if err := p.messages.Append(ctx, session.ID, "assistant", reply); err != nil {
			log.Printf("[pipeline] persist assistant turn failed: %v", err)
		}
	}

	turns := conv.Bump()
	if session != nil && p.memoryEvery > 0 && turns%p.memoryEvery == 0 {
		p.refreshMemory(ctx, contact, session, memory)
	}

	answer := &entities.Answer{
		Text:         reply,
		Status:       entities.StatusOK,
		BookingFound: guest != nil,
		KBUsed:       len(ranked) > 0 && !handoff,
	}
	if handoff {
		answer.Status = entities.StatusHandoff
	}
	if len(ranked) > 0 {
		answer.BestScore = ranked[0].Score
	}
	return answer
}

// resolveGuest returns the guest context for this turn, resolving at
// most once per distinct signal. A cached context is reused until a new
// signal shows up; a resolver failure downgrades to whatever is cached
// and is retried on the next turn.
func (p *ConversationPipeline) resolveGuest(ctx context.Context, conv *infrastructure.Conversation, contact, text string) *entities.GuestContext {
	guest, cachedSignal := conv.Guest()
	signal := extractSignal(contact, text)
	if signal == "" || signal == cachedSignal {
		return guest
	}

	resolved, err := p.resolver.Resolve(ctx, signal)
	if err != nil {
		log.Printf("[pipeline] booking lookup failed for %s: %v", contact, err)
		return guest
	}

	// A miss on a new signal caches the signal but keeps any context
	// already resolved for this conversation.
	if resolved == nil && guest != nil {
		resolved = guest
	}
	conv.SetGuest(resolved, signal)

	if resolved != nil && resolved != guest && p.store != nil {
		if err := p.store.SaveBookingContext(ctx, contact, resolved); err != nil {
			log.Printf("[pipeline] persist booking context failed: %v", err)
		}
	}
	return resolved
}

func (p *ConversationPipeline) recordHandoff(ctx context.Context, contact string, guest *entities.GuestContext, text, reason string) {
	h := &entities.HandoffRequest{
		Contact:     contact,
		UserMessage: text,
		Reason:      reason,
	}
	if guest != nil {
		h.GuestLastName = guest.GuestLastName
		h.PropertyID = guest.PropertyID
		h.BookingID = guest.BookingID
	}

	if p.handoffs != nil {
		if err := p.handoffs.Create(ctx, h); err != nil {
			log.Printf("[pipeline] persist handoff failed: %v", err)
		}
	}
	if p.notifier != nil {
		p.notifier.Notify(ctx, h)
	}
}

// refreshMemory rebuilds the rolling conversation summary. Best-effort:
// the old summary survives any failure.
func (p *ConversationPipeline) refreshMemory(ctx context.Context, contact string, session *entities.ChatSession, previous string) {
	if p.messages == nil || p.store == nil {
		return
	}
	history, err := p.messages.Recent(ctx, session.ID, p.historyLimit)
	if err != nil {
		return
	}
	summary, err := p.composer.SummarizeMemory(ctx, previous, history)
	if err != nil {
		log.Printf("[pipeline] memory summary failed for %s: %v", contact, err)
		return
	}
	if summary != previous {
		if err := p.store.UpdateMemory(ctx, contact, summary); err != nil {
			log.Printf("[pipeline] persist memory failed: %v", err)
		}
	}
}
