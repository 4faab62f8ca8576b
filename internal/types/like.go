package types

import (
	"strings"

	"pgmem/internal/pgerr"
)

type likeTokenKind uint8

const (
	likeLiteral likeTokenKind = iota
	likeAnyOne
	likeAnyMany
)

type likeToken struct {
	kind likeTokenKind
	r    rune
}

// compileLike splits a LIKE pattern into tokens. Backslash escapes the next
// character; a trailing backslash is an error.
func compileLike(pattern string) ([]likeToken, error) {
	var toks []likeToken
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			toks = append(toks, likeToken{kind: likeLiteral, r: r})
			escaped = false
		case r == '\\':
			escaped = true
		case r == '_':
			toks = append(toks, likeToken{kind: likeAnyOne})
		case r == '%':
			// Collapse runs of % into one.
			if n := len(toks); n == 0 || toks[n-1].kind != likeAnyMany {
				toks = append(toks, likeToken{kind: likeAnyMany})
			}
		default:
			toks = append(toks, likeToken{kind: likeLiteral, r: r})
		}
	}
	if escaped {
		return nil, pgerr.New(pgerr.KindEval, pgerr.CodeInvalidEscapeSequence,
			"LIKE pattern must not end with escape character")
	}
	return toks, nil
}

// Like reports whether text matches a SQL LIKE pattern over the whole string.
func Like(text, pattern string, caseless bool) (bool, error) {
	if caseless {
		text, pattern = strings.ToLower(text), strings.ToLower(pattern)
	}
	toks, err := compileLike(pattern)
	if err != nil {
		return false, err
	}
	s := []rune(text)

	// Greedy match with backtracking to the most recent %.
	si, ti := 0, 0
	starTi, starSi := -1, 0
	for si < len(s) {
		if ti < len(toks) {
			switch t := toks[ti]; t.kind {
			case likeAnyMany:
				starTi, starSi = ti, si
				ti++
				continue
			case likeAnyOne:
				si++
				ti++
				continue
			case likeLiteral:
				if t.r == s[si] {
					si++
					ti++
					continue
				}
			}
		}
		if starTi < 0 {
			return false, nil
		}
		starSi++
		si = starSi
		ti = starTi + 1
	}
	for ti < len(toks) && toks[ti].kind == likeAnyMany {
		ti++
	}
	return ti == len(toks), nil
}
