package classification

import (
	"math"
	"sort"
)

// ReferenceLine is one entry of the tariff schedule the index searches.
type ReferenceLine struct {
	HSCode       string
	StatCode     string
	Description  string
	TariffOrders bool // a tariff concession order exists for this code
}

// candidate pairs an indexed line offset with its match score.
type candidate struct {
	line    int
	score   float64
	matched []string
}

// Index is an immutable inverted index over tariff reference lines.
// Concurrent readers are safe; build a new Index to pick up data changes.
type Index struct {
	lines    []ReferenceLine
	postings map[string][]int // term -> ascending line offsets
}

// NewIndex builds an index over the given tariff lines.
func NewIndex(lines []ReferenceLine) *Index {
	idx := &Index{
		lines:    make([]ReferenceLine, len(lines)),
		postings: make(map[string][]int),
	}
	copy(idx.lines, lines)

	// Lines are held in (HS code, stat code) order so score ties resolve
	// to the lowest code, stable across rebuilds.
	sort.SliceStable(idx.lines, func(i, j int) bool {
		if idx.lines[i].HSCode != idx.lines[j].HSCode {
			return idx.lines[i].HSCode < idx.lines[j].HSCode
		}
		return idx.lines[i].StatCode < idx.lines[j].StatCode
	})

	for i, line := range idx.lines {
		for _, term := range uniqueTokens(line.Description) {
			idx.postings[term] = append(idx.postings[term], i)
		}
	}
	return idx
}

// Size returns the number of indexed tariff lines.
func (idx *Index) Size() int {
	return len(idx.lines)
}

// search scores every line sharing at least one term with the query and
// returns candidates ordered best-first. Rare terms weigh more than
// common ones: weight(t) = ln(1 + N/df(t)) where df(t) is the number of
// lines containing t. A line's score is the sum of its matched term
// weights divided by the query term count.
func (idx *Index) search(terms []string) []candidate {
	if len(terms) == 0 || len(idx.lines) == 0 {
		return nil
	}

	n := float64(len(idx.lines))
	scores := make(map[int]float64)
	matched := make(map[int][]string)

	for _, t := range terms {
		posting := idx.postings[t]
		if len(posting) == 0 {
			continue
		}
		w := math.Log(1 + n/float64(len(posting)))
		for _, li := range posting {
			scores[li] += w
			matched[li] = append(matched[li], t)
		}
	}
	if len(scores) == 0 {
		return nil
	}

	norm := float64(len(terms))
	out := make([]candidate, 0, len(scores))
	for li, s := range scores {
		out = append(out, candidate{line: li, score: s / norm, matched: matched[li]})
	}

	// Offsets follow code order, so the offset tie-break picks the
	// lowest HS code among equally scored lines.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].line < out[j].line
	})
	return out
}
