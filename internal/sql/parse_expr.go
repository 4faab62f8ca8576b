package sql

import (
	"strings"

	"pgmem/internal/types"
)

// Expression grammar, loosest binding first:
//
//	OR
//	AND
//	NOT
//	IS [NOT] NULL/TRUE/FALSE/UNKNOWN
//	= <> < <= > >=
//	[NOT] BETWEEN, [NOT] IN, [NOT] LIKE/ILIKE
//	|| (and any other operator)
//	+ -
//	* / %
//	^
//	unary + -
//	::
//	primary

func (p *parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: types.OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("and") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: types.OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.acceptKeyword("not") {
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: types.OpNot, Operand: operand}, nil
	}
	return p.parseIs()
}

func (p *parser) parseIs() (Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.acceptKeyword("isnull"):
			left = &IsExpr{Expr: left, Test: IsNull}
			continue
		case p.acceptKeyword("notnull"):
			left = &IsExpr{Expr: left, Test: IsNull, Not: true}
			continue
		case !p.acceptKeyword("is"):
			return left, nil
		}
		not := p.acceptKeyword("not")
		var test IsTest
		switch {
		case p.acceptKeyword("null"):
			test = IsNull
		case p.acceptKeyword("true"):
			test = IsTrue
		case p.acceptKeyword("false"):
			test = IsFalse
		case p.acceptKeyword("unknown"):
			test = IsUnknown
		case p.acceptKeyword("distinct", "from"):
			right, err := p.parseComparison()
			if err != nil {
				return nil, err
			}
			left = distinctFrom(left, right, not)
			continue
		default:
			return nil, p.unexpected()
		}
		left = &IsExpr{Expr: left, Test: test, Not: not}
	}
}

// distinctFrom rewrites "a IS [NOT] DISTINCT FROM b" into plain operators:
// a null-safe comparison that never yields NULL.
func distinctFrom(a, b Expr, not bool) Expr {
	bothNull := &BinaryExpr{Op: types.OpAnd,
		Left:  &IsExpr{Expr: a, Test: IsNull},
		Right: &IsExpr{Expr: b, Test: IsNull}}
	bothSet := &BinaryExpr{Op: types.OpAnd,
		Left:  &IsExpr{Expr: a, Test: IsNull, Not: true},
		Right: &IsExpr{Expr: b, Test: IsNull, Not: true}}
	equal := &BinaryExpr{Op: types.OpOr, Left: bothNull,
		Right: &IsExpr{Expr: &BinaryExpr{Op: types.OpAnd, Left: bothSet,
			Right: &BinaryExpr{Op: types.OpEq, Left: a, Right: b}}, Test: IsTrue}}
	if not {
		return equal
	}
	return &UnaryExpr{Op: types.OpNot, Operand: equal}
}

var comparisonOps = map[string]types.Op{
	"=": types.OpEq, "<>": types.OpNe, "<": types.OpLt,
	"<=": types.OpLe, ">": types.OpGt, ">=": types.OpGe,
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parsePredicate()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind != tkOp {
		return left, nil
	}
	op, ok := comparisonOps[t.text]
	if !ok {
		return left, nil
	}
	p.next()
	right, err := p.parsePredicate()
	if err != nil {
		return nil, err
	}
	return &BinaryExpr{Op: op, Left: left, Right: right}, nil
}

var likeOps = map[string]types.Op{
	"~~": types.OpLike, "!~~": types.OpNotLike,
	"~~*": types.OpILike, "!~~*": types.OpNotILike,
}

// parsePredicate handles BETWEEN, IN and LIKE/ILIKE, each optionally
// preceded by NOT.
func (p *parser) parsePredicate() (Expr, error) {
	left, err := p.parseOther()
	if err != nil {
		return nil, err
	}
	for {
		if t := p.peek(); t.kind == tkOp {
			if op, ok := likeOps[t.text]; ok {
				p.next()
				right, err := p.parseOther()
				if err != nil {
					return nil, err
				}
				left = &BinaryExpr{Op: op, Left: left, Right: right}
				continue
			}
		}

		not := false
		if p.isKeyword("not") {
			nt := p.peekAt(1)
			if !isKeywordToken(nt, "between") && !isKeywordToken(nt, "in") &&
				!isKeywordToken(nt, "like") && !isKeywordToken(nt, "ilike") {
				return left, nil
			}
			p.next()
			not = true
		}

		switch {
		case p.acceptKeyword("between"):
			low, err := p.parseOther()
			if err != nil {
				return nil, err
			}
			if err := p.expectKeyword("and"); err != nil {
				return nil, err
			}
			high, err := p.parseOther()
			if err != nil {
				return nil, err
			}
			left = &BetweenExpr{Expr: left, Low: low, High: high, Not: not}

		case p.acceptKeyword("in"):
			in, err := p.parseInTail(left, not)
			if err != nil {
				return nil, err
			}
			left = in

		case p.isKeyword("like") || p.isKeyword("ilike"):
			caseless := p.next().text == "ilike"
			right, err := p.parseOther()
			if err != nil {
				return nil, err
			}
			if p.isKeyword("escape") {
				return nil, featureAt(p.peek().pos, "LIKE ... ESCAPE is not supported")
			}
			op := types.OpLike
			switch {
			case caseless && not:
				op = types.OpNotILike
			case caseless:
				op = types.OpILike
			case not:
				op = types.OpNotLike
			}
			left = &BinaryExpr{Op: op, Left: left, Right: right}

		default:
			return left, nil
		}
	}
}

func (p *parser) parseInTail(left Expr, not bool) (Expr, error) {
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	if p.isKeyword("select") || p.isKeyword("values") {
		sub, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return &InExpr{Expr: left, Subquery: sub, Not: not}, nil
	}
	list, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return &InExpr{Expr: left, List: list, Not: not}, nil
}

func (p *parser) parseOther() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.acceptOp("||") {
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: types.OpConcat, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op types.Op
		switch {
		case p.acceptOp("+"):
			op = types.OpAdd
		case p.acceptOp("-"):
			op = types.OpSub
		default:
			return left, nil
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseExponent()
	if err != nil {
		return nil, err
	}
	for {
		var op types.Op
		switch {
		case p.acceptOp("*"):
			op = types.OpMul
		case p.acceptOp("/"):
			op = types.OpDiv
		case p.acceptOp("%"):
			op = types.OpMod
		default:
			return left, nil
		}
		right, err := p.parseExponent()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
}

// parseExponent is left associative, as in PostgreSQL: 2^3^2 = 64.
func (p *parser) parseExponent() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.acceptOp("^") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: types.OpPow, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	switch {
	case p.acceptOp("-"):
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		// Fold the sign into numeric constants so -2147483648 is an integer.
		if lit, ok := operand.(*Literal); ok && lit.Value.Type.IsNumeric() {
			if v, err := negateLiteral(lit.Value); err == nil {
				return &Literal{Value: v}, nil
			}
		}
		return &UnaryExpr{Op: types.OpNeg, Operand: operand}, nil
	case p.acceptOp("+"):
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: types.OpPlus, Operand: operand}, nil
	}
	return p.parsePostfix()
}

// negateLiteral negates a numeric constant, narrowing a bigint back to an
// integer when it fits.
func negateLiteral(v types.Value) (types.Value, error) {
	if v.Type == types.TypeBigInt && v.I64 == 1<<31 {
		return types.Int(-1 << 31), nil
	}
	return types.Negate(v)
}

func (p *parser) parsePostfix() (Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.acceptOp("::") {
		tn, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		e = &CastExpr{Expr: e, Type: tn}
	}
	if p.isOp("[") {
		return nil, featureAt(p.peek().pos, "array subscripts are not supported")
	}
	return e, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.peek()
	switch t.kind {
	case tkNumber:
		p.next()
		v, err := numberLiteral(t.text)
		if err != nil {
			return nil, syntaxAt(t.pos, "invalid number %q", t.text)
		}
		return &Literal{Value: v}, nil

	case tkString:
		p.next()
		return &Literal{Value: types.Text(t.text)}, nil

	case tkOp:
		if t.text != "(" {
			return nil, p.unexpected()
		}
		p.next()
		if p.isKeyword("select") || p.isKeyword("values") {
			sub, err := p.parseSelect()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return &SubqueryExpr{Select: sub}, nil
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.isOp(",") {
			return nil, featureAt(p.peek().pos, "row constructors are not supported")
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return e, nil

	case tkIdent:
		if !t.quoted {
			if e, ok, err := p.parseKeywordExpr(); ok || err != nil {
				return e, err
			}
		}
		return p.parseNameExpr()
	}
	return nil, p.unexpected()
}

// parseKeywordExpr handles primaries introduced by a keyword. ok is false
// when the next token starts no such form.
func (p *parser) parseKeywordExpr() (Expr, bool, error) {
	t := p.peek()
	switch t.text {
	case "null":
		p.next()
		return &Literal{Value: types.Null()}, true, nil
	case "true":
		p.next()
		return &Literal{Value: types.Bool(true)}, true, nil
	case "false":
		p.next()
		return &Literal{Value: types.Bool(false)}, true, nil
	case "default":
		p.next()
		return &DefaultExpr{}, true, nil
	case "case":
		e, err := p.parseCase()
		return e, true, err
	case "cast":
		e, err := p.parseCast()
		return e, true, err
	case "exists":
		p.next()
		if err := p.expectOp("("); err != nil {
			return nil, true, err
		}
		sub, err := p.parseSelect()
		if err != nil {
			return nil, true, err
		}
		if err := p.expectOp(")"); err != nil {
			return nil, true, err
		}
		return &ExistsExpr{Subquery: sub}, true, nil
	case "current_timestamp", "localtimestamp":
		if isOpToken(p.peekAt(1), "(") {
			return nil, false, nil
		}
		p.next()
		return &FuncCall{Name: "now"}, true, nil
	case "array":
		return nil, true, featureAt(t.pos, "arrays are not supported")
	}

	// Typed literal: timestamp '2020-01-01', int '5'.
	if nt := p.peekAt(1); nt.kind == tkString && !reserved[t.text] {
		if _, ok := types.LookupType(t.text); ok {
			p.next()
			p.next()
			return &CastExpr{Expr: &Literal{Value: types.Text(nt.text)}, Type: TypeName{Name: t.text}}, true, nil
		}
	}
	return nil, false, nil
}

func isOpToken(t token, op string) bool {
	return t.kind == tkOp && t.text == op
}

// parseNameExpr reads a column reference, t.*, or a function call.
func (p *parser) parseNameExpr() (Expr, error) {
	t := p.peek()
	var parts []string

	// Function names like left() and right() are reserved as bare words.
	if isOpToken(p.peekAt(1), "(") {
		p.next()
		return p.parseFuncCall("", t.text)
	}
	first, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	parts = append(parts, first)
	for p.acceptOp(".") {
		if p.acceptOp("*") {
			switch len(parts) {
			case 1:
				return &Star{Table: parts[0]}, nil
			case 2:
				return &Star{Schema: parts[0], Table: parts[1]}, nil
			}
			return nil, syntaxAt(t.pos, "improper qualified name (too many dotted names): %s", strings.Join(parts, "."))
		}
		part, err := p.parseColLabel()
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}

	if p.isOp("(") {
		if len(parts) != 2 {
			return nil, syntaxAt(t.pos, "improper qualified name (too many dotted names): %s", strings.Join(parts, "."))
		}
		return p.parseFuncCall(parts[0], parts[1])
	}

	switch len(parts) {
	case 1:
		return &ColumnRef{Column: parts[0]}, nil
	case 2:
		return &ColumnRef{Table: parts[0], Column: parts[1]}, nil
	case 3:
		return &ColumnRef{Schema: parts[0], Table: parts[1], Column: parts[2]}, nil
	}
	return nil, syntaxAt(t.pos, "improper qualified name (too many dotted names): %s", strings.Join(parts, "."))
}

// parseFuncCall reads "(args)" after a function name.
func (p *parser) parseFuncCall(schema, name string) (Expr, error) {
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	fc := &FuncCall{Schema: schema, Name: name}
	if p.acceptOp(")") {
		return fc, nil
	}
	if p.isOp("*") && isOpToken(p.peekAt(1), ")") {
		p.pos += 2
		fc.Star = true
		return fc, nil
	}
	if p.acceptKeyword("distinct") {
		fc.Distinct = true
	} else {
		p.acceptKeyword("all")
	}

	switch {
	case name == "substring" && schema == "":
		return p.parseSubstringArgs(fc)
	case name == "position" && schema == "":
		return p.parsePositionArgs(fc)
	}

	args, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	fc.Args = args
	if p.isKeyword("order") {
		return nil, featureAt(p.peek().pos, "ORDER BY inside aggregate calls is not supported")
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	if p.isKeyword("over") || p.isKeyword("filter") {
		return nil, featureAt(p.peek().pos, "window functions and FILTER are not supported")
	}
	return fc, nil
}

// parseSubstringArgs accepts both substring(s, from, for) and
// substring(s FROM from FOR for).
func (p *parser) parseSubstringArgs(fc *FuncCall) (Expr, error) {
	s, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	fc.Args = []Expr{s}
	switch {
	case p.acceptKeyword("from"):
		from, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		fc.Args = append(fc.Args, from)
		if p.acceptKeyword("for") {
			n, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			fc.Args = append(fc.Args, n)
		}
	case p.acceptKeyword("for"):
		n, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		fc.Args = append(fc.Args, &Literal{Value: types.Int(1)}, n)
	case p.acceptOp(","):
		rest, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		fc.Args = append(fc.Args, rest...)
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return fc, nil
}

// parsePositionArgs rewrites position(a IN b) to strpos(b, a).
func (p *parser) parsePositionArgs(fc *FuncCall) (Expr, error) {
	needle, err := p.parseOther()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("in"); err != nil {
		return nil, err
	}
	haystack, err := p.parseOther()
	if err != nil {
		return nil, err
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	fc.Name = "strpos"
	fc.Args = []Expr{haystack, needle}
	return fc, nil
}

func (p *parser) parseExprList() ([]Expr, error) {
	var out []Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		if !p.acceptOp(",") {
			return out, nil
		}
	}
}

func (p *parser) parseCase() (Expr, error) {
	p.next()
	ce := &CaseExpr{}
	if !p.isKeyword("when") {
		operand, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ce.Operand = operand
	}
	for p.acceptKeyword("when") {
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("then"); err != nil {
			return nil, err
		}
		result, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ce.Whens = append(ce.Whens, WhenClause{Cond: cond, Result: result})
	}
	if len(ce.Whens) == 0 {
		return nil, p.unexpected()
	}
	if p.acceptKeyword("else") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ce.Else = e
	}
	if err := p.expectKeyword("end"); err != nil {
		return nil, err
	}
	return ce, nil
}

func (p *parser) parseCast() (Expr, error) {
	p.next()
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("as"); err != nil {
		return nil, err
	}
	tn, err := p.parseTypeName()
	if err != nil {
		return nil, err
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return &CastExpr{Expr: e, Type: tn}, nil
}

// multiWordTypes are type names spelled with more than one word.
var multiWordTypes = [][]string{
	{"double", "precision"},
	{"character", "varying"},
	{"timestamp", "without", "time", "zone"},
	{"timestamp", "with", "time", "zone"},
}

// parseTypeName reads a type name with optional modifiers. The name is not
// validated here; unknown types are reported when the statement is bound.
func (p *parser) parseTypeName() (TypeName, error) {
	var tn TypeName
	for _, words := range multiWordTypes {
		if p.acceptKeyword(words...) {
			tn.Name = strings.Join(words, " ")
			break
		}
	}
	if tn.Name == "" {
		name, err := p.parseColLabel()
		if err != nil {
			return TypeName{}, err
		}
		tn.Name = name
		if name == "pg_catalog" && p.acceptOp(".") {
			if tn, err = p.parseTypeName(); err != nil {
				return TypeName{}, err
			}
			return tn, nil
		}
	}
	if p.acceptOp("(") {
		for {
			n, err := p.parseIntLiteral()
			if err != nil {
				return TypeName{}, err
			}
			tn.Args = append(tn.Args, n)
			if !p.acceptOp(",") {
				break
			}
		}
		if err := p.expectOp(")"); err != nil {
			return TypeName{}, err
		}
		// timestamp(3) without time zone
		if tn.Name == "timestamp" {
			if !p.acceptKeyword("without", "time", "zone") && p.acceptKeyword("with", "time", "zone") {
				tn.Name = "timestamp with time zone"
			}
		}
	}
	if p.isOp("[") {
		return TypeName{}, featureAt(p.peek().pos, "array types are not supported")
	}
	return tn, nil
}
