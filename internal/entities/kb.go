package entities

import (
	"strings"
	"time"
)

// KBEntry is one row of the first sheet of the knowledge workbook.
// Entries are immutable once loaded; Row is the position in the source
// sheet and doubles as identity and ranking tie-break.
type KBEntry struct {
	Row         int
	Category    string // Categoria
	Unit        string // Appartamento/stanza; empty or wildcard applies to all units
	Scope       string // ambito
	Description string // descrizione
	Answer      string // risposta
	Embedding   []float32
}

// ScoredEntry pairs an entry with its relevance score.
type ScoredEntry struct {
	Entry KBEntry
	Score float64
}

// PropertyRegistry holds the free-form facts from the second sheet,
// keyed by the first column (the property/unit identifier). Records are
// passed through to generation as-is, never validated.
type PropertyRegistry map[string]map[string]string

// KnowledgeBase is an immutable snapshot of the loaded workbook.
// Replacement is wholesale: a new snapshot is built and swapped in,
// readers keep whatever snapshot they already hold.
type KnowledgeBase struct {
	Entries  []KBEntry
	Registry PropertyRegistry
	LoadedAt time.Time
}

var wildcardUnits = map[string]bool{
	"*":        true,
	"all":      true,
	"tutte":    true,
	"tutti":    true,
	"generale": true,
	"general":  true,
}

// MatchesUnit reports whether an entry scoped to entryUnit applies to a
// guest resolved to guestUnit. An empty or wildcard entry unit applies to
// everyone; without a resolved unit only those general entries apply.
func MatchesUnit(entryUnit, guestUnit string) bool {
	unit := strings.ToLower(strings.TrimSpace(entryUnit))
	if unit == "" || wildcardUnits[unit] {
		return true
	}
	if guestUnit == "" {
		return false
	}
	return unit == strings.ToLower(strings.TrimSpace(guestUnit))
}

// EntriesForUnit returns the entries applicable to the given unit,
// preserving source order. Entries scoped to a different unit are
// excluded outright, not down-ranked.
func (kb *KnowledgeBase) EntriesForUnit(unit string) []KBEntry {
	if kb == nil {
		return nil
	}
	out := make([]KBEntry, 0, len(kb.Entries))
	for _, e := range kb.Entries {
		if MatchesUnit(e.Unit, unit) {
			out = append(out, e)
		}
	}
	return out
}

// RegistryFor returns the sheet-2 record for a unit, nil when absent.
func (kb *KnowledgeBase) RegistryFor(unit string) map[string]string {
	if kb == nil || unit == "" {
		return nil
	}
	return kb.Registry[unit]
}
