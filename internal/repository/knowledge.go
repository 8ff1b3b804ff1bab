package repository

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"bnbconcierge/internal/entities"
	"bnbconcierge/internal/interfaces"

	"github.com/xuri/excelize/v2"
)

// Canonical sheet-1 columns. Matching is name-sensitive but tolerant of
// spacing/punctuation and a few common aliases, the way hosts actually
// label their spreadsheets.
const (
	colCategory    = "Categoria"
	colUnit        = "Appartamento/stanza"
	colScope       = "ambito"
	colDescription = "descrizione"
	colAnswer      = "risposta"
)

var requiredColumns = []string{colCategory, colUnit, colScope, colDescription, colAnswer}

var headerAliases = map[string]string{
	"categoria":          colCategory,
	"category":           colCategory,
	"appartamentostanza": colUnit,
	"appartamentostanze": colUnit,
	"appartamento":       colUnit,
	"stanza":             colUnit,
	"camera":             colUnit,
	"struttura":          colUnit,
	"property":           colUnit,
	"ambito":             colScope,
	"scope":              colScope,
	"descrizione":        colDescription,
	"description":        colDescription,
	"risposta":           colAnswer,
	"answer":             colAnswer,
	"response":           colAnswer,
}

// MalformedKBError reports required columns missing from the first sheet.
// The active knowledge base is never touched when parsing fails.
type MalformedKBError struct {
	Missing []string
}

func (e *MalformedKBError) Error() string {
	return "malformed knowledge base: missing columns: " + strings.Join(e.Missing, ", ")
}

// KnowledgeStore holds the active KnowledgeBase snapshot and parses new
// ones from two-sheet .xlsx workbooks. Replacement is copy-and-swap, so
// concurrent readers never observe a partially loaded table.
type KnowledgeStore struct {
	active   atomic.Pointer[entities.KnowledgeBase]
	embedder interfaces.Embedder // optional; nil means lexical-only retrieval
}

// NewKnowledgeStore creates an empty store. embedder may be nil.
func NewKnowledgeStore(embedder interfaces.Embedder) *KnowledgeStore {
	s := &KnowledgeStore{embedder: embedder}
	s.active.Store(&entities.KnowledgeBase{})
	return s
}

// Active returns the current snapshot. Never nil.
func (s *KnowledgeStore) Active() *entities.KnowledgeBase {
	return s.active.Load()
}

// Replace atomically swaps in a new snapshot. In-flight conversations
// keep their cached guest context; only retrieval sees the new table.
func (s *KnowledgeStore) Replace(kb *entities.KnowledgeBase) {
	if kb == nil {
		kb = &entities.KnowledgeBase{}
	}
	s.active.Store(kb)
}

// LoadFile parses the workbook at path and swaps it in on success.
func (s *KnowledgeStore) LoadFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open kb workbook: %w", err)
	}
	defer f.Close()

	kb, err := s.Parse(ctx, f)
	if err != nil {
		return err
	}
	s.Replace(kb)
	return nil
}

// Parse reads a two-sheet workbook into a new KnowledgeBase without
// touching the active one. Sheet 1 must carry the five KB columns;
// sheet 2, when present, is read as the property registry.
func (s *KnowledgeStore) Parse(ctx context.Context, r io.Reader) (*entities.KnowledgeBase, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("read workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, &MalformedKBError{Missing: requiredColumns}
	}

	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, &MalformedKBError{Missing: requiredColumns}
	}

	idx := buildHeaderIndex(rows[0])
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &MalformedKBError{Missing: missing}
	}

	kb := &entities.KnowledgeBase{
		Registry: entities.PropertyRegistry{},
		LoadedAt: time.Now(),
	}
	for _, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		entry := entities.KBEntry{
			Row:         len(kb.Entries),
			Category:    cell(row, idx[colCategory]),
			Unit:        cell(row, idx[colUnit]),
			Scope:       cell(row, idx[colScope]),
			Description: cell(row, idx[colDescription]),
			Answer:      cell(row, idx[colAnswer]),
		}
		// Rows without a canned answer carry nothing to ground on.
		if entry.Answer == "" {
			continue
		}
		kb.Entries = append(kb.Entries, entry)
	}

	if len(sheets) >= 2 {
		regRows, err := wb.GetRows(sheets[1])
		if err == nil {
			kb.Registry = parseRegistry(regRows)
		}
	}

	s.embedEntries(ctx, kb)
	return kb, nil
}

// Inspect re-reads the workbook on disk and reports how its headers map
// to the canonical columns, for the admin inspect endpoint.
func (s *KnowledgeStore) Inspect(path string) (map[string]interface{}, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open kb workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	var headers []string
	if len(rows) > 0 {
		headers = rows[0]
	}
	idx := buildHeaderIndex(headers)
	headerMap := map[string]string{}
	for col, i := range idx {
		if i < len(headers) {
			headerMap[col] = headers[i]
		}
	}

	valid := 0
	var sample []map[string]string
	for _, row := range rows[1:] {
		if blankRow(row) || cell(row, idx[colAnswer]) == "" {
			continue
		}
		valid++
		if len(sample) < 3 {
			rec := map[string]string{}
			for col, i := range idx {
				rec[col] = cell(row, i)
			}
			sample = append(sample, rec)
		}
	}

	return map[string]interface{}{
		"sheet_names":     sheets,
		"headers":         headers,
		"header_map":      headerMap,
		"row_count_valid": valid,
		"row_count_total": max(len(rows)-1, 0),
		"sample_rows":     sample,
	}, nil
}

// embedEntries enriches entries with embeddings when a backend is
// configured. Failures leave the entries lexical-only; retrieval
// degrades gracefully rather than erroring.
func (s *KnowledgeStore) embedEntries(ctx context.Context, kb *entities.KnowledgeBase) {
	if s.embedder == nil || len(kb.Entries) == 0 {
		return
	}
	texts := make([]string, len(kb.Entries))
	for i, e := range kb.Entries {
		texts[i] = embeddingText(e)
	}
	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil || len(vecs) != len(kb.Entries) {
		log.Printf("[kb] embedding skipped, staying lexical: %v", err)
		return
	}
	for i := range kb.Entries {
		kb.Entries[i].Embedding = vecs[i]
	}
}

func embeddingText(e entities.KBEntry) string {
	parts := []string{}
	add := func(label, v string) {
		if v != "" {
			parts = append(parts, label+": "+v)
		}
	}
	add(colCategory, e.Category)
	add(colUnit, e.Unit)
	add(colScope, e.Scope)
	add(colDescription, e.Description)
	add(colAnswer, e.Answer)
	return strings.Join(parts, "\n")
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	for _, cut := range []string{" ", "/", "\\", "-", "_"} {
		h = strings.ReplaceAll(h, cut, "")
	}
	return h
}

func buildHeaderIndex(headers []string) map[string]int {
	idx := map[string]int{}
	for i, h := range headers {
		if canonical, ok := headerAliases[normalizeHeader(h)]; ok {
			if _, seen := idx[canonical]; !seen {
				idx[canonical] = i
			}
		}
	}
	return idx
}

func parseRegistry(rows [][]string) entities.PropertyRegistry {
	registry := entities.PropertyRegistry{}
	if len(rows) < 2 {
		return registry
	}
	headers := rows[0]
	for _, row := range rows[1:] {
		key := cell(row, 0)
		if key == "" {
			continue
		}
		record := map[string]string{}
		for i, h := range headers {
			h = strings.TrimSpace(h)
			if h == "" {
				continue
			}
			if v := cell(row, i); v != "" {
				record[h] = v
			}
		}
		registry[key] = record
	}
	return registry
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
