package usecases

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bnbconcierge/internal/entities"
)

// mockGenerator implements interfaces.Generator for testing
type mockGenerator struct {
	response string
	err      error
	calls    int
	prompts  []entities.PromptMessage
}

func (m *mockGenerator) ChatCompletion(ctx context.Context, messages []entities.PromptMessage) (string, error) {
	m.calls++
	m.prompts = messages
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func scoredWifi() []entities.ScoredEntry {
	return []entities.ScoredEntry{
		{Entry: entities.KBEntry{Category: "Wi-Fi", Answer: "La password del WiFi è 1234"}, Score: 1.0},
	}
}

func TestCompose_NoEntriesNeverCallsModel(t *testing.T) {
	gen := &mockGenerator{response: "should not appear"}
	c := NewAnswerComposer(gen)

	reply, handoff, err := c.Compose(context.Background(), nil, nil, "", nil, "domanda impossibile", nil)

	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if gen.calls != 0 {
		t.Errorf("model must not be called without grounding, got %d calls", gen.calls)
	}
	if !handoff {
		t.Error("empty grounding must trigger a handoff")
	}
	if !strings.Contains(reply, "host") {
		t.Errorf("fallback reply should mention the host, got %q", reply)
	}
}

func TestCompose_FallbackUsesGuestLastName(t *testing.T) {
	c := NewAnswerComposer(nil)
	guest := &entities.GuestContext{GuestLastName: "Rossi"}

	reply, _, err := c.Compose(context.Background(), guest, nil, "", nil, "boh", nil)

	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if !strings.Contains(reply, "Rossi") {
		t.Errorf("expected personalized fallback, got %q", reply)
	}
}

func TestCompose_NilGeneratorReturnsCannedAnswer(t *testing.T) {
	c := NewAnswerComposer(nil)

	reply, handoff, err := c.Compose(context.Background(), nil, nil, "", nil, "password wifi?", scoredWifi())

	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if handoff {
		t.Error("grounded answer should not hand off")
	}
	if reply != "La password del WiFi è 1234" {
		t.Errorf("expected canned answer, got %q", reply)
	}
}

func TestCompose_GeneratorReplyPassedThrough(t *testing.T) {
	gen := &mockGenerator{response: "La password è 1234, buona giornata!"}
	c := NewAnswerComposer(gen)

	reply, handoff, err := c.Compose(context.Background(), nil, nil, "", nil, "password wifi?", scoredWifi())

	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if handoff {
		t.Error("unexpected handoff")
	}
	if reply != "La password è 1234, buona giornata!" {
		t.Errorf("unexpected reply: %q", reply)
	}
	if gen.calls != 1 {
		t.Errorf("expected 1 model call, got %d", gen.calls)
	}
}

func TestCompose_SentinelBecomesFallback(t *testing.T) {
	gen := &mockGenerator{response: HandoffSentinel}
	c := NewAnswerComposer(gen)

	reply, handoff, err := c.Compose(context.Background(), nil, nil, "", nil, "voglio parlare con una persona", scoredWifi())

	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if !handoff {
		t.Error("sentinel must trigger a handoff")
	}
	if strings.Contains(reply, "HANDOFF") {
		t.Errorf("sentinel leaked to guest: %q", reply)
	}
}

func TestCompose_GeneratorErrorIsUnavailable(t *testing.T) {
	gen := &mockGenerator{err: errors.New("upstream 500")}
	c := NewAnswerComposer(gen)

	_, _, err := c.Compose(context.Background(), nil, nil, "", nil, "password wifi?", scoredWifi())

	if !errors.Is(err, ErrGenerationUnavailable) {
		t.Errorf("expected ErrGenerationUnavailable, got %v", err)
	}
}

func TestCompose_PromptCarriesKnowledgeAndHistory(t *testing.T) {
	gen := &mockGenerator{response: "ok"}
	c := NewAnswerComposer(gen)
	history := []entities.ChatMessage{
		{Role: "user", Content: "ciao"},
		{Role: "assistant", Content: "Benvenuto!"},
	}

	_, _, err := c.Compose(context.Background(), nil, nil, "ospite già salutato", history, "password wifi?", scoredWifi())

	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if len(gen.prompts) != 4 {
		t.Fatalf("expected system + 2 history + user, got %d", len(gen.prompts))
	}
	if !strings.Contains(gen.prompts[0].Content, "La password del WiFi è 1234") {
		t.Error("system prompt missing knowledge entry")
	}
	if !strings.Contains(gen.prompts[0].Content, "ospite già salutato") {
		t.Error("system prompt missing memory summary")
	}
	if gen.prompts[3].Content != "password wifi?" {
		t.Errorf("last prompt should be the user turn, got %q", gen.prompts[3].Content)
	}
}

func TestCompose_PromptCarriesRegistryRecord(t *testing.T) {
	gen := &mockGenerator{response: "ok"}
	c := NewAnswerComposer(gen)
	registry := map[string]string{"Indirizzo": "Via Roma 3", "Citofono": "interno 2"}

	_, _, err := c.Compose(context.Background(), nil, registry, "", nil, "dove siete?", scoredWifi())

	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if !strings.Contains(gen.prompts[0].Content, "Indirizzo: Via Roma 3") {
		t.Error("system prompt missing registry facts")
	}
}

func TestSummarizeMemory_NilGeneratorKeepsPrevious(t *testing.T) {
	c := NewAnswerComposer(nil)

	summary, err := c.SummarizeMemory(context.Background(), "vecchio riassunto", []entities.ChatMessage{{Role: "user", Content: "ciao"}})

	if err != nil {
		t.Fatalf("summarize failed: %v", err)
	}
	if summary != "vecchio riassunto" {
		t.Errorf("expected previous summary, got %q", summary)
	}
}
