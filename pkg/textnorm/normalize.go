// Package textnorm folds Persian and Arabic text variants into one comparable form.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	zwnj    = '\u200c'
	zwj     = '\u200d'
	tatweel = '\u0640'
)

var letterVariants = map[rune]rune{
	'ي': 'ی',
	'ى': 'ی',
	'ئ': 'ی',
	'ك': 'ک',
	'ة': 'ه',
	'ۀ': 'ه',
	'ە': 'ه',
	'أ': 'ا',
	'إ': 'ا',
	'آ': 'ا',
	'ٱ': 'ا',
	'ؤ': 'و',
}

// mapRune unifies letter variants, turns Persian and Arabic-Indic digits into
// ASCII and maps joiners to a plain space.
func mapRune(r rune) rune {
	switch {
	case r >= '۰' && r <= '۹':
		return '0' + (r - '۰')
	case r >= '٠' && r <= '٩':
		return '0' + (r - '٠')
	case r == zwnj || r == zwj:
		return ' '
	}
	if v, ok := letterVariants[r]; ok {
		return v
	}
	return r
}

// chain is rebuilt per call; cases.Caser and transform chains keep state.
func chain() transform.Transformer {
	return transform.Chain(
		norm.NFKD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool { return r == tatweel })),
		norm.NFC,
		runes.Map(mapRune),
		cases.Fold(),
	)
}

// Normalize returns the folded form of s with runs of whitespace collapsed.
// It is applied identically to queries and to searchable text.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	out, _, err := transform.String(chain(), s)
	if err != nil {
		out = strings.ToLower(s)
	}
	return strings.Join(strings.Fields(out), " ")
}

// Digits converts Persian and Arabic-Indic digits in s to ASCII, leaving the rest intact.
func Digits(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '۰' && r <= '۹':
			return '0' + (r - '۰')
		case r >= '٠' && r <= '٩':
			return '0' + (r - '٠')
		case r == '٫':
			return '.'
		}
		return r
	}, s)
}
