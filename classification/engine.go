package classification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
)

// ErrNoMatch is returned when no tariff line shares a single term with
// the item description.
var ErrNoMatch = errors.New("no tariff line matches item description")

// ErrNoReference is returned while the local tariff reference is empty,
// before the first successful sync.
var ErrNoReference = errors.New("tariff reference not loaded")

// ConcessionSearcher resolves a Schedule 4 by-law number into concession
// text. Implementations return empty text when nothing is found.
type ConcessionSearcher interface {
	ConcessionText(ctx context.Context, bylawNumber string) (string, error)
}

// maxAlternates is the number of suggestions returned beyond the best.
const maxAlternates = 2

var bylawPattern = regexp.MustCompile(`(?i)\bby-?law\s+(?:no\.?\s*)?(\d+)`)

// Engine classifies items against the current reference index.
type Engine struct {
	mu          sync.RWMutex
	idx         *Index
	concessions ConcessionSearcher
}

// NewEngine creates an engine. The index may be nil until the first
// reference sync completes. A nil concessions searcher disables
// Schedule 4 lookups.
func NewEngine(idx *Index, concessions ConcessionSearcher) *Engine {
	return &Engine{idx: idx, concessions: concessions}
}

// SetIndex swaps in a new reference index. In-flight classifications
// finish against the index they started with.
func (e *Engine) SetIndex(idx *Index) {
	e.mu.Lock()
	e.idx = idx
	e.mu.Unlock()
}

func (e *Engine) index() *Index {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.idx
}

// ReferenceSize returns the number of tariff lines currently indexed.
func (e *Engine) ReferenceSize() int {
	idx := e.index()
	if idx == nil {
		return 0
	}
	return idx.Size()
}

// Ready reports whether the engine has a non-empty reference index.
func (e *Engine) Ready() bool {
	return e.ReferenceSize() > 0
}

// Classify scores the item against the tariff reference and returns the
// best suggestion plus up to two alternates. Returns ErrNoReference
// before the first sync and ErrNoMatch when nothing overlaps the
// description.
func (e *Engine) Classify(ctx context.Context, item Item) (*Result, error) {
	idx := e.index()
	if idx == nil || idx.Size() == 0 {
		return nil, ErrNoReference
	}

	terms := uniqueTokens(item.Description)
	if len(terms) == 0 {
		return nil, ErrNoMatch
	}

	candidates := idx.search(terms)
	if len(candidates) == 0 {
		return nil, ErrNoMatch
	}

	best := candidates[0]
	bestLine := idx.lines[best.line]

	result := &Result{
		ID:                    item.ID,
		Description:           item.Description,
		BestSuggestedHSCode:   normalizeCode(bestLine.HSCode),
		BestSuggestedStatCode: bestLine.StatCode,
		// Non-nil so an empty list marshals as [] rather than null.
		SuggestedCodes: []SuggestedCode{},
		Reasoning:      buildReasoning(idx, best, len(candidates)),
	}
	if bestLine.TariffOrders {
		if link := TCOLink(bestLine.HSCode); link != "" {
			result.BestSuggestedTCOLink = &link
		}
	}

	for _, c := range candidates[1:] {
		if len(result.SuggestedCodes) == maxAlternates {
			break
		}
		line := idx.lines[c.line]
		sc := SuggestedCode{
			HSCode:   normalizeCode(line.HSCode),
			StatCode: line.StatCode,
		}
		if line.TariffOrders {
			if link := TCOLink(line.HSCode); link != "" {
				sc.TCOLink = &link
			}
		}
		result.SuggestedCodes = append(result.SuggestedCodes, sc)
	}

	e.attachConcession(ctx, item, result)
	return result, nil
}

// attachConcession resolves a "by-law NNNN" mention in the description
// into Schedule 4 concession text. A lookup failure degrades the single
// item instead of failing the classification.
func (e *Engine) attachConcession(ctx context.Context, item Item, result *Result) {
	if e.concessions == nil {
		return
	}
	m := bylawPattern.FindStringSubmatch(item.Description)
	if m == nil {
		return
	}

	text, err := e.concessions.ConcessionText(ctx, m[1])
	if err != nil {
		log.Printf("[classification] Schedule 4 lookup for by-law %s failed: %v", m[1], err)
		return
	}
	if text != "" {
		result.Schedule4ConcessionText = &text
	}
}

// NoMatchResult builds the result recorded for an item no tariff line
// overlaps. Codes stay empty; the reasoning names the terms tried.
func NoMatchResult(item Item) *Result {
	terms := uniqueTokens(item.Description)
	reason := "No tariff line shares a term with the item description."
	if len(terms) > 0 {
		reason = fmt.Sprintf("No tariff line matched terms [%s].", strings.Join(terms, ", "))
	}
	return &Result{
		ID:             item.ID,
		Description:    item.Description,
		SuggestedCodes: []SuggestedCode{},
		Reasoning:      reason,
	}
}

// normalizeCode strips period separators so codes are returned in the
// 8-digit wire form.
func normalizeCode(code string) string {
	return strings.ReplaceAll(code, ".", "")
}

func buildReasoning(idx *Index, best candidate, totalCandidates int) string {
	line := idx.lines[best.line]
	return fmt.Sprintf(
		"Matched terms [%s] against tariff line %s %s (%q) with score %.3f; %d of %d tariff lines shared at least one term.",
		strings.Join(best.matched, ", "), line.HSCode, line.StatCode,
		truncate(line.Description, 120), best.score, totalCandidates, idx.Size(),
	)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
