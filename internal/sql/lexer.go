package sql

import (
	"strings"
	"unicode"

	"pgmem/internal/pgerr"
)

type tokenKind int

const (
	tkEOF tokenKind = iota
	tkIdent
	tkNumber
	tkString
	tkOp
)

// token is one lexical unit. Unquoted identifiers are folded to lower case,
// quoted ones keep their spelling and have quoted set.
type token struct {
	kind   tokenKind
	text   string
	quoted bool
	pos    int // byte offset into the query
}

// lex splits query into tokens, dropping whitespace and comments.
func lex(query string) ([]token, error) {
	var toks []token
	i := 0
	n := len(query)
	for i < n {
		c := query[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			i++

		case c == '-' && i+1 < n && query[i+1] == '-':
			for i < n && query[i] != '\n' {
				i++
			}

		case c == '/' && i+1 < n && query[i+1] == '*':
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				return nil, syntaxAt(i, "unterminated /* comment at or near %q", query[i:min(n, i+2)])
			}
			i += end + 4

		case c == '\'' || ((c == 'e' || c == 'E') && i+1 < n && query[i+1] == '\''):
			start := i
			escapes := c != '\''
			if escapes {
				i++
			}
			s, next, err := lexString(query, i, escapes)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tkString, text: s, pos: start})
			i = next

		case c == '"':
			start := i
			var sb strings.Builder
			i++
			closed := false
			for i < n {
				if query[i] == '"' {
					if i+1 < n && query[i+1] == '"' {
						sb.WriteByte('"')
						i += 2
						continue
					}
					closed = true
					i++
					break
				}
				sb.WriteByte(query[i])
				i++
			}
			if !closed {
				return nil, syntaxAt(start, "unterminated quoted identifier at or near %q", query[start:])
			}
			if sb.Len() == 0 {
				return nil, syntaxAt(start, "zero-length delimited identifier at or near \"\"\"\"")
			}
			toks = append(toks, token{kind: tkIdent, text: sb.String(), quoted: true, pos: start})

		case isDigit(c) || (c == '.' && i+1 < n && isDigit(query[i+1])):
			start := i
			for i < n && isDigit(query[i]) {
				i++
			}
			if i < n && query[i] == '.' && !(i+1 < n && query[i+1] == '.') {
				i++
				for i < n && isDigit(query[i]) {
					i++
				}
			}
			if i < n && (query[i] == 'e' || query[i] == 'E') {
				j := i + 1
				if j < n && (query[j] == '+' || query[j] == '-') {
					j++
				}
				if j < n && isDigit(query[j]) {
					i = j
					for i < n && isDigit(query[i]) {
						i++
					}
				}
			}
			toks = append(toks, token{kind: tkNumber, text: query[start:i], pos: start})

		case isIdentStart(rune(c)) || c >= 0x80:
			start := i
			for i < n && (isIdentPart(rune(query[i])) || query[i] >= 0x80) {
				i++
			}
			toks = append(toks, token{kind: tkIdent, text: strings.ToLower(query[start:i]), pos: start})

		default:
			op, ok := lexOperator(query[i:])
			if !ok {
				return nil, syntaxAt(i, "syntax error at or near %q", string(c))
			}
			toks = append(toks, token{kind: tkOp, text: op, pos: i})
			i += len(op)
		}
	}
	toks = append(toks, token{kind: tkEOF, pos: n})
	return toks, nil
}

// lexString reads a single-quoted literal starting at the quote at i.
// Doubled quotes are literal quotes; with escapes set (E'...') backslash
// sequences are interpreted.
func lexString(query string, i int, escapes bool) (string, int, error) {
	start := i
	n := len(query)
	var sb strings.Builder
	i++
	for i < n {
		c := query[i]
		if c == '\'' {
			if i+1 < n && query[i+1] == '\'' {
				sb.WriteByte('\'')
				i += 2
				continue
			}
			return sb.String(), i + 1, nil
		}
		if escapes && c == '\\' && i+1 < n {
			i++
			switch query[i] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			default:
				sb.WriteByte(query[i])
			}
			i++
			continue
		}
		sb.WriteByte(c)
		i++
	}
	return "", 0, syntaxAt(start, "unterminated quoted string at or near %q", query[start:])
}

var operators = []string{
	"::", "<>", "!=", "<=", ">=", "||", "!~~*", "!~~", "~~*", "~~",
	"=", "<", ">", "+", "-", "*", "/", "%", "^", "(", ")", ",", ".", ";", "[", "]",
}

func lexOperator(s string) (string, bool) {
	for _, op := range operators {
		if strings.HasPrefix(s, op) {
			if op == "!=" {
				return "<>", true
			}
			return op, true
		}
	}
	return "", false
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// syntaxAt builds a syntax error carrying a 1-based cursor position.
func syntaxAt(pos int, format string, args ...any) *pgerr.Error {
	e := pgerr.Syntax(format, args...)
	e.PG.Position = int32(pos + 1)
	return e
}

func featureAt(pos int, format string, args ...any) *pgerr.Error {
	e := pgerr.FeatureNotSupported(format, args...)
	e.PG.Position = int32(pos + 1)
	return e
}
