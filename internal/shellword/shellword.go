// Package shellword implements POSIX shell word splitting with single-quote,
// double-quote, and backslash-escape handling (spec.md §4.1.3, §6). No
// third-party shell-lexer package appears anywhere in the retrieved
// reference pack, so this narrow, well-specified concern is implemented
// directly against the standard library (documented in DESIGN.md).
package shellword

import (
	"fmt"
	"strings"
)

// Split tokenizes s the way a POSIX shell would split an unquoted command
// line: runs of unquoted whitespace separate words; single quotes suppress
// all interpretation until the matching quote; double quotes suppress word
// splitting but still honor backslash before ", \, $, and `; outside quotes
// a backslash escapes the following character.
func Split(s string) ([]string, error) {
	var words []string
	var cur strings.Builder
	haveCur := false

	runes := []rune(s)
	i := 0
	n := len(runes)

	flush := func() {
		if haveCur {
			words = append(words, cur.String())
			cur.Reset()
			haveCur = false
		}
	}

	for i < n {
		c := runes[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			flush()
			i++
		case c == '\'':
			haveCur = true
			i++
			closed := false
			for i < n {
				if runes[i] == '\'' {
					closed = true
					i++
					break
				}
				cur.WriteRune(runes[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated single quote")
			}
		case c == '"':
			haveCur = true
			i++
			closed := false
			for i < n {
				if runes[i] == '"' {
					closed = true
					i++
					break
				}
				if runes[i] == '\\' && i+1 < n && isDoubleQuoteEscapable(runes[i+1]) {
					cur.WriteRune(runes[i+1])
					i += 2
					continue
				}
				cur.WriteRune(runes[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated double quote")
			}
		case c == '\\':
			if i+1 >= n {
				return nil, fmt.Errorf("trailing backslash")
			}
			haveCur = true
			cur.WriteRune(runes[i+1])
			i += 2
		default:
			haveCur = true
			cur.WriteRune(c)
			i++
		}
	}
	flush()
	return words, nil
}

func isDoubleQuoteEscapable(r rune) bool {
	switch r {
	case '"', '\\', '$', '`':
		return true
	default:
		return false
	}
}
