package formula

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// UndefinedVariableError is returned when a formula references a variable
// that is not present in the supplied bag. Missing inputs are never
// substituted with zero because that would understate withholding.
type UndefinedVariableError struct {
	Name string
}

func (e *UndefinedVariableError) Error() string {
	return fmt.Sprintf("formula references undefined variable %q", e.Name)
}

type ParseError struct {
	Pos     int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid formula at position %d: %s", e.Pos, e.Message)
}

type EvalError struct {
	Message string
}

func (e *EvalError) Error() string {
	return "formula evaluation failed: " + e.Message
}

type nodeKind int

const (
	nodeNumber nodeKind = iota
	nodeVariable
	nodeBinary
	nodeCall
)

type node struct {
	kind  nodeKind
	num   decimal.Decimal
	name  string // identifier or function name
	op    byte   // + - * /
	left  *node
	right *node
	args  []*node
}

// Expr is a parsed formula. Parse once, evaluate many; an Expr is immutable
// and safe for concurrent use.
type Expr struct {
	root *node
	src  string
}

func (e *Expr) String() string {
	return e.src
}

// Parse compiles a formula string into an Expr. The grammar covers
// + - * / ( ), decimal literals, identifiers and the functions
// MIN(a, b), MAX(a, b) and ROUND(x, places).
func Parse(src string) (*Expr, error) {
	p := &parser{src: src}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, &ParseError{Pos: p.pos, Message: fmt.Sprintf("unexpected %q", p.src[p.pos])}
	}
	return &Expr{root: root, src: src}, nil
}

// Evaluate parses and evaluates in one call. Callers on the hot path should
// Parse once and reuse the Expr instead.
func Evaluate(src string, vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	expr, err := Parse(src)
	if err != nil {
		return decimal.Zero, err
	}
	return expr.Evaluate(vars)
}

// Evaluate walks the AST against the variable bag. All arithmetic stays in
// decimal; no rounding happens here, the caller rounds at its own boundary.
func (e *Expr) Evaluate(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	return eval(e.root, vars)
}

// Variables returns the distinct identifiers the formula references,
// sorted. Used to validate declared required_variables at authoring time.
func (e *Expr) Variables() []string {
	seen := map[string]struct{}{}
	collectVars(e.root, seen)
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RoundBank rounds a final amount to 2 fractional digits using banker's
// rounding. Intermediate results are never rounded.
func RoundBank(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

func collectVars(n *node, seen map[string]struct{}) {
	if n == nil {
		return
	}
	switch n.kind {
	case nodeVariable:
		seen[n.name] = struct{}{}
	case nodeBinary:
		collectVars(n.left, seen)
		collectVars(n.right, seen)
	case nodeCall:
		for _, arg := range n.args {
			collectVars(arg, seen)
		}
	}
}

func eval(n *node, vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	switch n.kind {
	case nodeNumber:
		return n.num, nil

	case nodeVariable:
		v, ok := vars[n.name]
		if !ok {
			return decimal.Zero, &UndefinedVariableError{Name: n.name}
		}
		return v, nil

	case nodeBinary:
		left, err := eval(n.left, vars)
		if err != nil {
			return decimal.Zero, err
		}
		right, err := eval(n.right, vars)
		if err != nil {
			return decimal.Zero, err
		}
		switch n.op {
		case '+':
			return left.Add(right), nil
		case '-':
			return left.Sub(right), nil
		case '*':
			return left.Mul(right), nil
		case '/':
			if right.IsZero() {
				return decimal.Zero, &EvalError{Message: "division by zero"}
			}
			return left.Div(right), nil
		}
		return decimal.Zero, &EvalError{Message: fmt.Sprintf("unknown operator %q", n.op)}

	case nodeCall:
		args := make([]decimal.Decimal, len(n.args))
		for i, arg := range n.args {
			v, err := eval(arg, vars)
			if err != nil {
				return decimal.Zero, err
			}
			args[i] = v
		}
		switch n.name {
		case "MIN":
			return decimal.Min(args[0], args[1:]...), nil
		case "MAX":
			return decimal.Max(args[0], args[1:]...), nil
		case "ROUND":
			places := int32(0)
			if len(args) == 2 {
				if !args[1].Equal(args[1].Truncate(0)) {
					return decimal.Zero, &EvalError{Message: "ROUND places must be an integer"}
				}
				places = int32(args[1].IntPart())
			}
			return args[0].Round(places), nil
		}
		return decimal.Zero, &EvalError{Message: fmt.Sprintf("unknown function %s", n.name)}
	}
	return decimal.Zero, &EvalError{Message: "malformed expression tree"}
}

type parser struct {
	src string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

// expr = term (('+' | '-') term)*
func (p *parser) parseExpr() (*node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &node{kind: nodeBinary, op: op, left: left, right: right}
	}
}

// term = unary (('*' | '/') unary)*
func (p *parser) parseTerm() (*node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &node{kind: nodeBinary, op: op, left: left, right: right}
	}
}

// unary = '-' unary | factor
func (p *parser) parseUnary() (*node, error) {
	if p.peek() == '-' {
		p.pos++
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &node{
			kind:  nodeBinary,
			op:    '-',
			left:  &node{kind: nodeNumber, num: decimal.Zero},
			right: inner,
		}, nil
	}
	return p.parseFactor()
}

// factor = number | ident | ident '(' args ')' | '(' expr ')'
func (p *parser) parseFactor() (*node, error) {
	ch := p.peek()
	switch {
	case ch == '(':
		p.pos++
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ')' {
			return nil, &ParseError{Pos: p.pos, Message: "missing closing parenthesis"}
		}
		p.pos++
		return inner, nil

	case ch >= '0' && ch <= '9' || ch == '.':
		return p.parseNumber()

	case isIdentStart(ch):
		return p.parseIdentOrCall()
	}
	if ch == 0 {
		return nil, &ParseError{Pos: p.pos, Message: "unexpected end of formula"}
	}
	return nil, &ParseError{Pos: p.pos, Message: fmt.Sprintf("unexpected %q", ch)}
}

func (p *parser) parseNumber() (*node, error) {
	start := p.pos
	sawDot := false
	for p.pos < len(p.src) {
		ch := p.src[p.pos]
		if ch == '.' {
			if sawDot {
				return nil, &ParseError{Pos: p.pos, Message: "malformed number"}
			}
			sawDot = true
			p.pos++
			continue
		}
		if ch < '0' || ch > '9' {
			break
		}
		p.pos++
	}
	lit := p.src[start:p.pos]
	num, err := decimal.NewFromString(lit)
	if err != nil {
		return nil, &ParseError{Pos: start, Message: fmt.Sprintf("malformed number %q", lit)}
	}
	return &node{kind: nodeNumber, num: num}, nil
}

func (p *parser) parseIdentOrCall() (*node, error) {
	start := p.pos
	for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
		p.pos++
	}
	name := p.src[start:p.pos]

	if p.peek() != '(' {
		return &node{kind: nodeVariable, name: name}, nil
	}

	fn := strings.ToUpper(name)
	argCount, ok := functionArity[fn]
	if !ok {
		return nil, &ParseError{Pos: start, Message: fmt.Sprintf("unknown function %s", name)}
	}

	p.pos++ // consume '('
	var args []*node
	if p.peek() != ')' {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek() != ',' {
				break
			}
			p.pos++
		}
	}
	if p.peek() != ')' {
		return nil, &ParseError{Pos: p.pos, Message: "missing closing parenthesis in call"}
	}
	p.pos++

	if len(args) < argCount.min || len(args) > argCount.max {
		return nil, &ParseError{
			Pos:     start,
			Message: fmt.Sprintf("%s expects between %d and %d arguments, got %d", fn, argCount.min, argCount.max, len(args)),
		}
	}
	return &node{kind: nodeCall, name: fn, args: args}, nil
}

type arity struct {
	min, max int
}

var functionArity = map[string]arity{
	"MIN":   {2, 8},
	"MAX":   {2, 8},
	"ROUND": {1, 2},
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || ch >= '0' && ch <= '9'
}
