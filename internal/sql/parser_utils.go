package sql

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"pgmem/internal/types"
)

// reserved lists the keywords that cannot be used as bare column labels or
// table aliases.
var reserved = map[string]bool{
	"all": true, "and": true, "any": true, "as": true, "asc": true, "between": true,
	"by": true, "case": true, "cast": true, "check": true, "constraint": true,
	"create": true, "cross": true, "default": true, "delete": true, "desc": true,
	"distinct": true, "drop": true, "else": true, "end": true, "except": true,
	"exists": true, "false": true, "fetch": true, "for": true, "foreign": true,
	"from": true, "full": true, "group": true, "having": true, "ilike": true,
	"in": true, "inner": true, "insert": true, "intersect": true, "into": true,
	"is": true, "isnull": true, "join": true, "left": true, "like": true,
	"limit": true, "natural": true, "not": true, "notnull": true, "null": true,
	"nulls": true, "offset": true, "on": true, "or": true, "order": true,
	"outer": true, "primary": true, "references": true, "returning": true,
	"right": true, "select": true, "set": true, "table": true, "then": true,
	"true": true, "union": true, "unique": true, "update": true, "using": true,
	"values": true, "when": true, "where": true, "with": true, "window": true,
}

// parser is a recursive-descent parser over a token slice.
type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(k int) token {
	if p.pos+k >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+k]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tkEOF {
		p.pos++
	}
	return t
}

func (p *parser) atEnd() bool {
	t := p.peek()
	return t.kind == tkEOF || (t.kind == tkOp && t.text == ";")
}

func isKeywordToken(t token, kw string) bool {
	return t.kind == tkIdent && !t.quoted && t.text == kw
}

// isKeyword reports whether the next token is the (lower-case) keyword kw.
func (p *parser) isKeyword(kw string) bool {
	return isKeywordToken(p.peek(), kw)
}

// acceptKeyword consumes the keyword sequence kws if it is next in full.
func (p *parser) acceptKeyword(kws ...string) bool {
	for i, kw := range kws {
		if !isKeywordToken(p.peekAt(i), kw) {
			return false
		}
	}
	p.pos += len(kws)
	return true
}

func (p *parser) expectKeyword(kws ...string) error {
	if !p.acceptKeyword(kws...) {
		return p.unexpected()
	}
	return nil
}

func (p *parser) isOp(op string) bool {
	t := p.peek()
	return t.kind == tkOp && t.text == op
}

func (p *parser) acceptOp(op string) bool {
	if p.isOp(op) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectOp(op string) error {
	if !p.acceptOp(op) {
		return p.unexpected()
	}
	return nil
}

// unexpected reports a syntax error at the current token.
func (p *parser) unexpected() error {
	t := p.peek()
	if t.kind == tkEOF {
		return syntaxAt(t.pos, "syntax error at end of input")
	}
	text := t.text
	if t.kind == tkString {
		text = "'" + t.text + "'"
	}
	return syntaxAt(t.pos, "syntax error at or near %q", text)
}

// parseIdent reads an identifier. Unquoted reserved words are rejected.
func (p *parser) parseIdent() (string, error) {
	t := p.peek()
	if t.kind != tkIdent || (!t.quoted && reserved[t.text]) {
		return "", p.unexpected()
	}
	p.pos++
	return t.text, nil
}

// parseColLabel reads an identifier in a position where PostgreSQL accepts
// any keyword (after AS, after a dot).
func (p *parser) parseColLabel() (string, error) {
	t := p.peek()
	if t.kind != tkIdent {
		return "", p.unexpected()
	}
	p.pos++
	return t.text, nil
}

// parseIdentList reads "(a, b, c)".
func (p *parser) parseIdentList() ([]string, error) {
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	var out []string
	for {
		name, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		out = append(out, name)
		if !p.acceptOp(",") {
			break
		}
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return out, nil
}

// parseQualifiedName reads name or schema.name.
func (p *parser) parseQualifiedName() (TableName, error) {
	first, err := p.parseIdent()
	if err != nil {
		return TableName{}, err
	}
	if !p.acceptOp(".") {
		return TableName{Name: first}, nil
	}
	second, err := p.parseColLabel()
	if err != nil {
		return TableName{}, err
	}
	return TableName{Schema: first, Name: second}, nil
}

// parseQualifiedNameList reads "a, s.b, c".
func (p *parser) parseQualifiedNameList() ([]TableName, error) {
	var out []TableName
	for {
		n, err := p.parseQualifiedName()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
		if !p.acceptOp(",") {
			return out, nil
		}
	}
}

// parseOptAlias reads "[AS] alias" if present.
func (p *parser) parseOptAlias() (string, error) {
	if p.acceptKeyword("as") {
		return p.parseColLabel()
	}
	t := p.peek()
	if t.kind == tkIdent && (t.quoted || !reserved[t.text]) {
		p.pos++
		return t.text, nil
	}
	return "", nil
}

// parseIntLiteral reads a non-negative integer constant.
func (p *parser) parseIntLiteral() (int, error) {
	t := p.peek()
	if t.kind != tkNumber {
		return 0, p.unexpected()
	}
	n, err := strconv.Atoi(t.text)
	if err != nil {
		return 0, syntaxAt(t.pos, "invalid integer %q", t.text)
	}
	p.pos++
	return n, nil
}

// numberLiteral converts a numeric token into the narrowest fitting value:
// integer, then bigint, then numeric.
func numberLiteral(text string) (types.Value, error) {
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		if i >= -1<<31 && i < 1<<31 {
			return types.Int(i), nil
		}
		return types.BigInt(i), nil
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return types.Value{}, fmt.Errorf("cannot parse number %q: %w", text, err)
	}
	return types.Numeric(d), nil
}
