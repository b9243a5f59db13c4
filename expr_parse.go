package dcpa

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ParseExpr parses the textual form produced by Expr.String().
//
//	true | false
//	<value>:<width>            constant, value may be negative
//	<name>:<width>             uninstantiated variable
//	<name>@<index>:<width>     instantiated variable
//	(<op> <expr> <expr>)       binary operation, "and"/"or" accept more operands
//	(not <expr>)
//	(zext <expr> <width>) | (sext <expr> <width>)
//	(extract <expr> <offset> <width>)
func ParseExpr(s string) (Expr, error) {
	p := &exprParser{s: s}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, p.errorf("unexpected trailing input %q", p.s[p.pos:])
	}
	return expr, nil
}

// MustParseExpr is like ParseExpr but panics on error.
func MustParseExpr(s string) Expr {
	expr, err := ParseExpr(s)
	if err != nil {
		panic(err)
	}
	return expr
}

// ParseError is returned when an expression cannot be parsed.
type ParseError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse expr at %d: %s", e.Pos, e.Msg)
}

type exprParser struct {
	s   string
	pos int
}

func (p *exprParser) errorf(format string, args ...interface{}) error {
	return &ParseError{Input: p.s, Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.s) && unicode.IsSpace(rune(p.s[p.pos])) {
		p.pos++
	}
}

// word returns the next run of characters up to whitespace or a parenthesis.
func (p *exprParser) word() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.s) {
		ch := p.s[p.pos]
		if ch == '(' || ch == ')' || unicode.IsSpace(rune(ch)) {
			break
		}
		p.pos++
	}
	return p.s[start:p.pos]
}

func (p *exprParser) parseExpr() (Expr, error) {
	p.skipSpace()
	if p.pos >= len(p.s) {
		return nil, p.errorf("unexpected end of input")
	}
	if p.s[p.pos] == '(' {
		p.pos++
		return p.parseList()
	} else if p.s[p.pos] == ')' {
		return nil, p.errorf("unexpected ')'")
	}
	return p.parseAtom(p.word())
}

func (p *exprParser) parseAtom(tok string) (Expr, error) {
	switch tok {
	case "true":
		return NewBoolConstantExpr(true), nil
	case "false":
		return NewBoolConstantExpr(false), nil
	}

	i := strings.LastIndexByte(tok, ':')
	if i <= 0 {
		return nil, p.errorf("missing width in %q", tok)
	}
	width, err := parseWidth(tok[i+1:])
	if err != nil {
		return nil, p.errorf("%q: %s", tok, err)
	}
	head := tok[:i]

	// Constant.
	if ch := head[0]; ch == '-' || (ch >= '0' && ch <= '9') {
		if strings.HasPrefix(head, "-") {
			v, err := strconv.ParseInt(head, 10, 64)
			if err != nil {
				return nil, p.errorf("invalid constant %q", tok)
			}
			return NewConstantExpr(uint64(v), width), nil
		}
		v, err := strconv.ParseUint(head, 10, 64)
		if err != nil {
			return nil, p.errorf("invalid constant %q", tok)
		}
		return NewConstantExpr(v, width), nil
	}

	// Variable.
	name, index := head, NoIndex
	if j := strings.IndexByte(head, '@'); j >= 0 {
		name = head[:j]
		n, err := strconv.Atoi(head[j+1:])
		if err != nil || n < 0 {
			return nil, p.errorf("invalid ssa index in %q", tok)
		}
		index = n
	}
	if !IsValidVarName(name) {
		return nil, p.errorf("invalid variable name %q", name)
	}
	return &VarExpr{Name: name, Index: index, Width: width}, nil
}

func (p *exprParser) parseList() (Expr, error) {
	op := p.word()
	if op == "" {
		return nil, p.errorf("missing operator")
	}

	var expr Expr
	var err error
	switch op {
	case "not":
		expr, err = p.parseNot()
	case "zext", "sext":
		expr, err = p.parseCast(op == "sext")
	case "extract":
		expr, err = p.parseExtract()
	default:
		expr, err = p.parseBinary(op)
	}
	if err != nil {
		return nil, err
	}

	p.skipSpace()
	if p.pos >= len(p.s) || p.s[p.pos] != ')' {
		return nil, p.errorf("expected ')'")
	}
	p.pos++
	return expr, nil
}

func (p *exprParser) parseNot() (Expr, error) {
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return NewNotExpr(x), nil
}

func (p *exprParser) parseCast(signed bool) (Expr, error) {
	src, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	width, err := parseWidth(p.word())
	if err != nil {
		return nil, p.errorf("cast: %s", err)
	}
	return NewCastExpr(src, width, signed), nil
}

func (p *exprParser) parseExtract() (Expr, error) {
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	offset, err := strconv.ParseUint(p.word(), 10, 32)
	if err != nil {
		return nil, p.errorf("extract: invalid offset")
	}
	width, err := parseWidth(p.word())
	if err != nil {
		return nil, p.errorf("extract: %s", err)
	}
	if uint(offset)+width > ExprWidth(x) {
		return nil, p.errorf("extract out of bounds: %d+%d > %d", offset, width, ExprWidth(x))
	}
	return NewExtractExpr(x, uint(offset), width), nil
}

func (p *exprParser) parseBinary(name string) (Expr, error) {
	op, ok := ParseBinaryOp(name)
	if !ok {
		return nil, p.errorf("unknown operator %q", name)
	}

	var args []Expr
	for {
		p.skipSpace()
		if p.pos >= len(p.s) || p.s[p.pos] == ')' {
			break
		}
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if len(args) > 0 && ExprWidth(arg) != ExprWidth(args[0]) {
			return nil, p.errorf("%s: %s: %s (%d) vs %s (%d)", op, ErrWidthMismatch, args[0], ExprWidth(args[0]), arg, ExprWidth(arg))
		}
		args = append(args, arg)
	}

	if len(args) < 2 || (len(args) > 2 && op != AND && op != OR) {
		return nil, p.errorf("%s: unexpected operand count %d", op, len(args))
	}

	expr := NewBinaryExpr(op, args[0], args[1])
	for _, arg := range args[2:] {
		expr = NewBinaryExpr(op, expr, arg)
	}
	return expr, nil
}

func parseWidth(s string) (uint, error) {
	w, err := strconv.ParseUint(s, 10, 8)
	if err != nil || w == 0 || w > Width64 {
		return 0, fmt.Errorf("invalid width %q", s)
	}
	return uint(w), nil
}

// IsValidVarName returns true if name can be used as a variable name in
// the textual formula syntax.
func IsValidVarName(name string) bool {
	if name == "" || name == "true" || name == "false" {
		return false
	}
	for i, ch := range name {
		switch {
		case ch == '_' || ch == '.' || ch == '$' || ch == '#' || unicode.IsLetter(ch):
		case unicode.IsDigit(ch) && i > 0:
		default:
			return false
		}
	}
	return true
}
