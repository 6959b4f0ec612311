// Package fuzzy scores free text against a query with an approximate,
// tunable heuristic. Inputs are expected to be normalized already.
package fuzzy

import (
	"strings"
	"unicode/utf8"
)

// Weights tunes the scoring heuristic.
type Weights struct {
	FullMatch      float64
	WordMatch      float64
	WordBoundary   float64
	Subsequence    float64
	Completion     float64
	ContainedChar  float64
	SimilarityCap  float64
	ShortText      float64
	ShortTextRunes int
}

func DefaultWeights() Weights {
	return Weights{
		FullMatch:      100,
		WordMatch:      20,
		WordBoundary:   10,
		Subsequence:    10,
		Completion:     4,
		ContainedChar:  2,
		SimilarityCap:  16,
		ShortText:      5,
		ShortTextRunes: 25,
	}
}

// Score rates how well text answers query. An empty query scores zero.
func (w Weights) Score(query, text string) float64 {
	if query == "" || text == "" {
		return 0
	}

	var score float64
	if strings.Contains(text, query) {
		score += w.FullMatch
	}

	for _, word := range strings.Fields(query) {
		if strings.Contains(text, word) {
			score += w.WordMatch
			if atBoundary(text, word) {
				score += w.WordBoundary
			}
			continue
		}
		score += w.similarity(word, text)
	}

	if utf8.RuneCountInString(text) < w.ShortTextRunes {
		score += w.ShortText
	}
	return score
}

// similarity rewards the characters of word found in order inside text,
// the completion of the whole sequence and the longest contained prefix.
func (w Weights) similarity(word, text string) float64 {
	wr := []rune(word)
	if len(wr) == 0 {
		return 0
	}

	matched := 0
	rest := text
	for _, r := range wr {
		i := strings.IndexRune(rest, r)
		if i < 0 {
			break
		}
		matched++
		rest = rest[i+utf8.RuneLen(r):]
	}
	if matched == 0 {
		return 0
	}

	s := w.Subsequence * float64(matched) / float64(len(wr))
	if matched == len(wr) {
		s += w.Completion
	}
	if n := longestContainedPrefix(wr, text); n > 1 {
		s += w.ContainedChar * float64(n)
	}
	if s > w.SimilarityCap {
		s = w.SimilarityCap
	}
	return s
}

func longestContainedPrefix(word []rune, text string) int {
	for n := len(word); n > 1; n-- {
		if strings.Contains(text, string(word[:n])) {
			return n
		}
	}
	return 0
}

func atBoundary(text, word string) bool {
	offset := 0
	for {
		i := strings.Index(text[offset:], word)
		if i < 0 {
			return false
		}
		pos := offset + i
		if pos == 0 || text[pos-1] == ' ' {
			return true
		}
		offset = pos + len(word)
		if offset >= len(text) {
			return false
		}
	}
}
