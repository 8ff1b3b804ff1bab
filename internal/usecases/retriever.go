package usecases

import (
	"context"
	"log"
	"math"
	"sort"
	"strings"
	"unicode"

	"bnbconcierge/internal/entities"
	"bnbconcierge/internal/interfaces"
)

// HybridRetriever ranks knowledge entries against a guest message.
// Lexical token overlap is the mandatory baseline; when an embedding
// backend is configured and the entries carry vectors, cosine
// similarity is blended in. Losing the embedding backend degrades the
// ranking, it never fails it.
type HybridRetriever struct {
	embedder interfaces.Embedder // optional
	topK     int
	minScore float64
}

func NewHybridRetriever(embedder interfaces.Embedder, topK int, minScore float64) *HybridRetriever {
	if topK <= 0 {
		topK = 6
	}
	return &HybridRetriever{
		embedder: embedder,
		topK:     topK,
		minScore: minScore,
	}
}

// Rank returns entries scoring at or above the threshold, best first,
// ties broken by source row order. Candidates must already be scoped to
// the guest's unit. An empty result is the designed "don't know" path.
func (r *HybridRetriever) Rank(ctx context.Context, query string, entries []entities.KBEntry) []entities.ScoredEntry {
	if len(entries) == 0 {
		return nil
	}
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	var queryVec []float32
	if r.embedder != nil {
		vec, err := r.embedder.Embed(ctx, query)
		if err != nil {
			log.Printf("[retriever] query embedding failed, lexical only: %v", err)
		} else {
			queryVec = vec
		}
	}

	scored := make([]entities.ScoredEntry, 0, len(entries))
	for _, e := range entries {
		score := lexicalScore(queryTokens, e)
		if queryVec != nil && len(e.Embedding) > 0 {
			score = (score + cosineSimilarity(queryVec, e.Embedding)) / 2
		}
		if score < r.minScore {
			continue
		}
		scored = append(scored, entities.ScoredEntry{Entry: e, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Entry.Row < scored[j].Entry.Row
	})

	if len(scored) > r.topK {
		scored = scored[:r.topK]
	}
	return scored
}

// tokenize lowercases and splits on non-alphanumerics. Short tokens
// (articles, prepositions) are dropped unless nothing else remains.
func tokenize(text string) []string {
	raw := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if len([]rune(t)) >= 4 {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 {
		return raw
	}
	return tokens
}

// lexicalScore is the fraction of query tokens present in the entry's
// text fields.
func lexicalScore(queryTokens []string, e entities.KBEntry) float64 {
	entryTokens := map[string]bool{}
	for _, field := range []string{e.Category, e.Scope, e.Description, e.Answer} {
		for _, t := range strings.FieldsFunc(strings.ToLower(field), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			entryTokens[t] = true
		}
	}

	matched := 0
	for _, t := range queryTokens {
		if entryTokens[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
