package pgsearch

import (
	"fmt"
	"sort"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/search"
)

// MergeRRF performs Reciprocal Rank Fusion over ranked record lists.
// Formula: RRF(d) = sum over rank lists of 1/(k + rank(d))
// where k is the RRF constant (default 60) and rank is 1-based.
// Records are identified by their keyColumn value; the first occurrence wins.
// Ties keep first-seen order.
func MergeRRF(keyColumn string, rrfK int, lists ...[]search.Record) []search.Record {
	scores := rrfScores(keyColumn, rrfK, lists...)

	first := make(map[string]search.Record, len(scores))
	order := make([]string, 0, len(scores))
	for _, list := range lists {
		for _, rec := range list {
			key := fmt.Sprint(rec[keyColumn])
			if _, ok := first[key]; ok {
				continue
			}
			first[key] = rec
			order = append(order, key)
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	results := make([]search.Record, 0, len(order))
	for _, key := range order {
		results = append(results, first[key])
	}
	return results
}

func rrfScores(keyColumn string, rrfK int, lists ...[]search.Record) map[string]float64 {
	scores := make(map[string]float64)
	for _, list := range lists {
		for i, rec := range list {
			scores[fmt.Sprint(rec[keyColumn])] += 1.0 / float64(rrfK+i+1)
		}
	}
	return scores
}
