package odds

import (
	"math"
	"strings"
)

const (
	// DefaultReferenceBook is the sharp book whose line anchors the consensus.
	DefaultReferenceBook = "pinnacle"
	// DefaultReferenceWeight is the reference book's fixed share of the consensus.
	DefaultReferenceWeight = 0.50

	// ConsensusProviderID labels markets built from more than one book.
	ConsensusProviderID = "consensus"
)

// DefaultWeights returns the explicit weight map: reference book fixed, all
// other books unspecified.
func DefaultWeights(reference string, weight float64) map[string]float64 {
	return map[string]float64{normalizeBookKey(reference): weight}
}

// BuildWeights computes final weights for the books present in a market.
//
// Rules:
//   - books listed in explicit use that weight (negative clamps to 0)
//   - unlisted books share what is left of 1.0 equally
//   - if explicit weights sum to more than 1, they are scaled down to sum to 1
//     and unlisted books get 0
//
// The result sums to 1 whenever any present book has positive weight.
// A book with weight 0 takes no part in WeightedCostToWin1.
func BuildWeights(present []string, explicit map[string]float64) map[string]float64 {
	lookup := make(map[string]float64, len(explicit))
	for k, w := range explicit {
		lookup[normalizeBookKey(k)] = w
	}

	var books []string
	seen := make(map[string]bool)
	for _, b := range present {
		k := normalizeBookKey(b)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		books = append(books, k)
	}
	if len(books) == 0 {
		return map[string]float64{}
	}

	weights := make(map[string]float64, len(books))
	var unspecified []string
	explicitSum := 0.0
	for _, b := range books {
		if w, ok := lookup[b]; ok {
			w = math.Max(0, w)
			weights[b] = w
			explicitSum += w
		} else {
			weights[b] = 0
			unspecified = append(unspecified, b)
		}
	}

	if explicitSum > 1.0 {
		for b := range weights {
			weights[b] /= explicitSum
		}
		return weights
	}

	remaining := 1.0 - explicitSum
	if len(unspecified) > 0 && remaining > 0 {
		per := remaining / float64(len(unspecified))
		for _, b := range unspecified {
			weights[b] = per
		}
	}

	// Only the reference book present, or explicit weights under 1: rescale
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total > 0 {
		for b := range weights {
			weights[b] /= total
		}
	}
	return weights
}

// WeightedCostToWin1 averages one outcome's cost across books.
// Books with weight <= 0 or no quote are skipped; false if none remain.
func WeightedCostToWin1(byBook map[string]float64, weights map[string]float64) (float64, bool) {
	total, totalW := 0.0, 0.0
	for book, cost := range byBook {
		w := weights[normalizeBookKey(book)]
		if w <= 0 || cost <= 0 || math.IsNaN(cost) || math.IsInf(cost, 0) {
			continue
		}
		total += w * cost
		totalW += w
	}
	if totalW == 0 {
		return 0, false
	}
	return total / totalW, true
}

// Consensus merges the same line from several books into one market whose
// per-outcome cost is the weighted average. Devig runs on the result.
func Consensus(books []Market, explicit map[string]float64) (Market, bool) {
	if len(books) == 0 {
		return Market{}, false
	}

	present := make([]string, 0, len(books))
	for _, m := range books {
		present = append(present, m.ProviderID)
	}
	weights := BuildWeights(present, explicit)

	type outcome struct {
		template OddsQuote
		byBook   map[string]float64
	}
	outcomes := make(map[string]*outcome)
	var order []string

	for _, m := range books {
		for _, q := range m.Quotes {
			id := strings.ToLower(q.OutcomeID())
			o, ok := outcomes[id]
			if !ok {
				o = &outcome{template: q, byBook: make(map[string]float64)}
				outcomes[id] = o
				order = append(order, id)
			}
			o.byBook[m.ProviderID] = q.CostToWin1
		}
	}

	merged := Market{
		ProviderID: ConsensusProviderID,
		Kind:       books[0].Kind,
		Line:       books[0].Line,
	}
	for _, id := range order {
		o := outcomes[id]
		cost, ok := WeightedCostToWin1(o.byBook, weights)
		if !ok {
			continue
		}
		q := o.template
		q.ProviderID = ConsensusProviderID
		q.CostToWin1 = cost
		merged.Quotes = append(merged.Quotes, q)
	}

	if !completeMarket(merged) {
		return Market{}, false
	}
	return merged, true
}

func normalizeBookKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}
