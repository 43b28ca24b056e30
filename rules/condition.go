package rules

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// compareOp is one of the whitelisted comparison operators.
type compareOp string

const (
	opGT       compareOp = ">"
	opLT       compareOp = "<"
	opGTE      compareOp = ">="
	opLTE      compareOp = "<="
	opEQ       compareOp = "=="
	opNE       compareOp = "!="
	opContains compareOp = "contains"
)

type litKind int

const (
	litNumber litKind = iota
	litString
	litBool
)

type literal struct {
	kind litKind
	num  float64
	str  string
	b    bool
}

// clause is a single atomic comparison: field OP literal.
type clause struct {
	field string
	op    compareOp
	lit   literal
}

// Condition is a parsed boolean expression over expense fields: a conjunction
// of atomic comparisons joined by &&. Conditions are immutable once parsed
// and safe for concurrent evaluation.
type Condition struct {
	raw     string
	clauses []clause
}

// Raw returns the original condition text.
func (c *Condition) Raw() string { return c.raw }

// ClauseCount returns the number of &&-joined clauses. A condition with more
// clauses is considered more specific when selecting a winning rule.
func (c *Condition) ClauseCount() int { return len(c.clauses) }

// ParseCondition parses a condition expression into a Condition. The grammar
// is deliberately restricted: identifiers resolve only against expense
// fields, operators come from a fixed whitelist, and no code is executed.
func ParseCondition(input string) (*Condition, error) {
	toks, err := lexCondition(input)
	if err != nil {
		return nil, err
	}

	p := &condParser{toks: toks}
	var clauses []clause
	for {
		cl, err := p.parseClause()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, cl)

		if p.peek().kind != tokAnd {
			break
		}
		p.next()
	}

	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q after clause", tok.text)
	}

	return &Condition{raw: input, clauses: clauses}, nil
}

// Eval evaluates the condition against an expense. The boolean result is
// false whenever any clause fails; a non-nil error explains why evaluation
// could not complete (unknown field, type mismatch). Errors never abort the
// caller's evaluation pass.
func (c *Condition) Eval(expense Expense) (bool, error) {
	for _, cl := range c.clauses {
		ok, err := cl.eval(expense)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (cl clause) eval(expense Expense) (bool, error) {
	value, exists := expense[cl.field]
	if !exists {
		return false, fmt.Errorf("unknown field %q", cl.field)
	}

	switch cl.lit.kind {
	case litNumber:
		f, ok := toFloat(value)
		if !ok {
			return false, fmt.Errorf("field %q is not numeric", cl.field)
		}
		return compareNumbers(f, cl.op, cl.lit.num)

	case litString:
		s, ok := value.(string)
		if !ok {
			return false, fmt.Errorf("field %q is not a string", cl.field)
		}
		return compareStrings(s, cl.op, cl.lit.str)

	case litBool:
		b, ok := value.(bool)
		if !ok {
			return false, fmt.Errorf("field %q is not a boolean", cl.field)
		}
		switch cl.op {
		case opEQ:
			return b == cl.lit.b, nil
		case opNE:
			return b != cl.lit.b, nil
		default:
			return false, fmt.Errorf("operator %q not supported for booleans", cl.op)
		}
	}

	return false, fmt.Errorf("unsupported literal in clause for field %q", cl.field)
}

func compareNumbers(a float64, op compareOp, b float64) (bool, error) {
	switch op {
	case opGT:
		return a > b, nil
	case opLT:
		return a < b, nil
	case opGTE:
		return a >= b, nil
	case opLTE:
		return a <= b, nil
	case opEQ:
		return a == b, nil
	case opNE:
		return a != b, nil
	default:
		return false, fmt.Errorf("operator %q not supported for numbers", op)
	}
}

func compareStrings(a string, op compareOp, b string) (bool, error) {
	switch op {
	case opEQ:
		return a == b, nil
	case opNE:
		return a != b, nil
	case opContains:
		return strings.Contains(a, b), nil
	case opGT:
		return a > b, nil
	case opLT:
		return a < b, nil
	case opGTE:
		return a >= b, nil
	case opLTE:
		return a <= b, nil
	default:
		return false, fmt.Errorf("operator %q not supported for strings", op)
	}
}

// toFloat widens any numeric value to float64. JSON decoding produces
// float64, but stores and callers may hand us native integer types.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}

// ---------------------------------------------------------------------------
// Lexer and parser
// ---------------------------------------------------------------------------

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokOp
	tokAnd
	tokEOF
)

type token struct {
	kind tokenKind
	text string
}

func lexCondition(input string) ([]token, error) {
	var toks []token
	runes := []rune(input)
	i := 0

	for i < len(runes) {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++

		case r == '&':
			if i+1 < len(runes) && runes[i+1] == '&' {
				toks = append(toks, token{kind: tokAnd, text: "&&"})
				i += 2
			} else {
				return nil, fmt.Errorf("unexpected %q at position %d", string(r), i)
			}

		case r == '>' || r == '<' || r == '=' || r == '!':
			op := string(r)
			if i+1 < len(runes) && runes[i+1] == '=' {
				op += "="
				i++
			}
			if op == "=" || op == "!" {
				return nil, fmt.Errorf("invalid operator %q at position %d", op, i)
			}
			toks = append(toks, token{kind: tokOp, text: op})
			i++

		case r == '"' || r == '\'':
			quote := r
			j := i + 1
			for j < len(runes) && runes[j] != quote {
				j++
			}
			if j >= len(runes) {
				return nil, fmt.Errorf("unterminated string starting at position %d", i)
			}
			toks = append(toks, token{kind: tokString, text: string(runes[i+1 : j])})
			i = j + 1

		case unicode.IsDigit(r) || r == '-' || r == '.':
			j := i
			if runes[j] == '-' {
				j++
			}
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			text := string(runes[i:j])
			if _, err := strconv.ParseFloat(text, 64); err != nil {
				return nil, fmt.Errorf("invalid number %q at position %d", text, i)
			}
			toks = append(toks, token{kind: tokNumber, text: text})
			i = j

		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: string(runes[i:j])})
			i = j

		default:
			return nil, fmt.Errorf("unexpected %q at position %d", string(r), i)
		}
	}

	toks = append(toks, token{kind: tokEOF})
	return toks, nil
}

type condParser struct {
	toks []token
	pos  int
}

func (p *condParser) peek() token {
	return p.toks[p.pos]
}

func (p *condParser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *condParser) parseClause() (clause, error) {
	field := p.next()
	if field.kind != tokIdent {
		return clause{}, fmt.Errorf("expected field name, got %q", field.text)
	}

	opTok := p.next()
	var op compareOp
	switch {
	case opTok.kind == tokOp:
		op = compareOp(opTok.text)
	case opTok.kind == tokIdent && opTok.text == string(opContains):
		op = opContains
	default:
		return clause{}, fmt.Errorf("expected operator after field %q, got %q", field.text, opTok.text)
	}

	litTok := p.next()
	var lit literal
	switch litTok.kind {
	case tokNumber:
		n, err := strconv.ParseFloat(litTok.text, 64)
		if err != nil {
			return clause{}, fmt.Errorf("invalid numeric literal %q", litTok.text)
		}
		lit = literal{kind: litNumber, num: n}
	case tokString:
		lit = literal{kind: litString, str: litTok.text}
	case tokIdent:
		switch litTok.text {
		case "true":
			lit = literal{kind: litBool, b: true}
		case "false":
			lit = literal{kind: litBool, b: false}
		default:
			return clause{}, fmt.Errorf("expected literal after operator, got %q", litTok.text)
		}
	default:
		return clause{}, fmt.Errorf("expected literal after operator, got %q", litTok.text)
	}

	return clause{field: field.text, op: op, lit: lit}, nil
}
