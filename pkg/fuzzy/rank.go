package fuzzy

import "sort"

type Scored[T any] struct {
	Item  T
	Score float64
}

// Rank scores every item, drops those at or below minScore and sorts the
// survivors by descending score. Ties keep their input order.
func Rank[T any](w Weights, query string, items []T, text func(T) string, minScore float64) []Scored[T] {
	out := make([]Scored[T], 0, len(items))
	for _, item := range items {
		s := w.Score(query, text(item))
		if s <= minScore {
			continue
		}
		out = append(out, Scored[T]{Item: item, Score: s})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
