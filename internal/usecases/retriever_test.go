package usecases

import (
	"context"
	"errors"
	"testing"

	"bnbconcierge/internal/entities"
)

// mockEmbedder implements interfaces.Embedder for testing
type mockEmbedder struct {
	vec  []float32
	fail bool
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.fail {
		return nil, errors.New("embedding backend down")
	}
	return m.vec, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if m.fail {
		return nil, errors.New("embedding backend down")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = m.vec
	}
	return out, nil
}

func wifiEntry(row int) entities.KBEntry {
	return entities.KBEntry{
		Row:         row,
		Category:    "Wi-Fi",
		Scope:       "rete",
		Description: "Qual è la password del wifi",
		Answer:      "La password del WiFi è 1234, rete CasaBella",
	}
}

func TestRank_MatchesAnswerText(t *testing.T) {
	r := NewHybridRetriever(nil, 6, 0.30)
	entries := []entities.KBEntry{
		wifiEntry(0),
		{Row: 1, Category: "Parcheggio", Description: "Dove posso parcheggiare", Answer: "Il parcheggio è in via Roma 3"},
	}

	ranked := r.Rank(context.Background(), "qual è la password del wifi?", entries)

	if len(ranked) == 0 {
		t.Fatal("expected a match")
	}
	if ranked[0].Entry.Row != 0 {
		t.Errorf("expected wifi entry first, got row %d", ranked[0].Entry.Row)
	}
	if ranked[0].Score < 0.9 {
		t.Errorf("expected near-full overlap, got %f", ranked[0].Score)
	}
}

func TestRank_BelowThresholdIsEmpty(t *testing.T) {
	r := NewHybridRetriever(nil, 6, 0.30)
	entries := []entities.KBEntry{wifiEntry(0)}

	ranked := r.Rank(context.Background(), "dove posso noleggiare una bicicletta", entries)

	if len(ranked) != 0 {
		t.Errorf("expected no matches, got %d", len(ranked))
	}
}

func TestRank_EmptyCandidates(t *testing.T) {
	r := NewHybridRetriever(nil, 6, 0.30)

	if got := r.Rank(context.Background(), "wifi", nil); len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}

func TestRank_TieBreakBySourceOrder(t *testing.T) {
	r := NewHybridRetriever(nil, 6, 0.10)
	entries := []entities.KBEntry{
		{Row: 0, Category: "Colazione", Answer: "La colazione è servita dalle 8"},
		{Row: 1, Category: "Colazione", Answer: "La colazione è inclusa nel prezzo"},
	}

	ranked := r.Rank(context.Background(), "colazione", entries)

	if len(ranked) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(ranked))
	}
	if ranked[0].Entry.Row != 0 || ranked[1].Entry.Row != 1 {
		t.Errorf("tie should preserve source order, got rows %d, %d", ranked[0].Entry.Row, ranked[1].Entry.Row)
	}
}

func TestRank_TopKLimit(t *testing.T) {
	r := NewHybridRetriever(nil, 2, 0.10)
	entries := []entities.KBEntry{
		{Row: 0, Category: "Colazione", Answer: "dalle 8 alle 10"},
		{Row: 1, Category: "Colazione", Answer: "buffet continentale"},
		{Row: 2, Category: "Colazione", Answer: "al piano terra"},
	}

	ranked := r.Rank(context.Background(), "colazione", entries)

	if len(ranked) != 2 {
		t.Errorf("expected topK cap of 2, got %d", len(ranked))
	}
}

func TestRank_EmbeddingBlendBoostsSimilarEntry(t *testing.T) {
	embedder := &mockEmbedder{vec: []float32{1, 0}}
	r := NewHybridRetriever(embedder, 6, 0.10)
	entries := []entities.KBEntry{
		{Row: 0, Category: "Colazione", Answer: "dalle 8 alle 10", Embedding: []float32{0, 1}},
		{Row: 1, Category: "Colazione", Answer: "buffet continentale", Embedding: []float32{1, 0}},
	}

	ranked := r.Rank(context.Background(), "colazione", entries)

	if len(ranked) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(ranked))
	}
	if ranked[0].Entry.Row != 1 {
		t.Errorf("cosine blend should promote row 1, got row %d", ranked[0].Entry.Row)
	}
}

func TestRank_EmbedderFailureFallsBackToLexical(t *testing.T) {
	embedder := &mockEmbedder{fail: true}
	r := NewHybridRetriever(embedder, 6, 0.30)
	entries := []entities.KBEntry{wifiEntry(0)}

	ranked := r.Rank(context.Background(), "password wifi", entries)

	if len(ranked) != 1 {
		t.Fatalf("lexical fallback should still match, got %d", len(ranked))
	}
}
