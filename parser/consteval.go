package parser

import (
	"strconv"

	"github.com/thiremani/simmod/token"
)

// IndexVar names the element index inside an unrolled array equation.
const IndexVar = "j"

// evaluator computes compile-time integer expressions:
//
//	sum     = product { ("+" | "-") product }
//	product = unary { ("*" | "/" | "%") unary }
//	unary   = ["-" | "+"] unary | atom
//	atom    = INT | IndexVar | "(" sum ")"
type evaluator struct {
	toks  []token.Token
	pos   int
	index *int64
}

// EvalConst evaluates toks, which must form one expression. index binds
// IndexVar; it may be nil.
func EvalConst(toks []token.Token, index *int64) (int64, error) {
	e := &evaluator{toks: toks, index: index}
	v, err := e.sum()
	if err != nil {
		return 0, err
	}
	if !e.atEnd() {
		return 0, e.expected("end of expression")
	}
	return v, nil
}

// EvalBounds reads array bounds "lo-hi" (elements lo to hi-1) or "n"
// (elements 0 to n-1). Each bound is a product; sums need parentheses.
func EvalBounds(toks []token.Token) (lo, hi int64, err error) {
	e := &evaluator{toks: toks}
	if hi, err = e.product(); err != nil {
		return 0, 0, err
	}
	if e.peek().Type == token.SUB {
		e.next()
		lo = hi
		if hi, err = e.product(); err != nil {
			return 0, 0, err
		}
	}
	if !e.atEnd() {
		return 0, 0, e.expected("]")
	}
	if hi <= lo {
		return 0, 0, token.NewError(e.first(), token.Fatal, token.Positive, "array size", "")
	}
	return lo, hi, nil
}

func (e *evaluator) sum() (int64, error) {
	v, err := e.product()
	if err != nil {
		return 0, err
	}
	for {
		switch e.peek().Type {
		case token.ADD:
			e.next()
			r, err := e.product()
			if err != nil {
				return 0, err
			}
			v += r
		case token.SUB:
			e.next()
			r, err := e.product()
			if err != nil {
				return 0, err
			}
			v -= r
		default:
			return v, nil
		}
	}
}

func (e *evaluator) product() (int64, error) {
	v, err := e.unary()
	if err != nil {
		return 0, err
	}
	for {
		op := e.peek()
		if op.Type != token.MUL && op.Type != token.QUO && op.Type != token.REM {
			return v, nil
		}
		e.next()
		r, err := e.unary()
		if err != nil {
			return 0, err
		}
		switch op.Type {
		case token.MUL:
			v *= r
		default:
			if r == 0 {
				return 0, token.NewError(op, token.Fatal, token.LexExpected, "non-zero divisor", "0")
			}
			if op.Type == token.QUO {
				v /= r
			} else {
				v %= r
			}
		}
	}
}

func (e *evaluator) unary() (int64, error) {
	switch e.peek().Type {
	case token.SUB:
		e.next()
		v, err := e.unary()
		return -v, err
	case token.ADD:
		e.next()
		return e.unary()
	}
	return e.atom()
}

func (e *evaluator) atom() (int64, error) {
	tok := e.next()
	switch {
	case tok.Type == token.INT:
		v, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err != nil {
			return 0, token.NewError(tok, token.Fatal, token.LexExpected, "integer", tok.Literal)
		}
		return v, nil
	case tok.Type == token.IDENT && tok.Literal == IndexVar && e.index != nil:
		return *e.index, nil
	case tok.Type == token.LPAREN:
		v, err := e.sum()
		if err != nil {
			return 0, err
		}
		if e.next().Type != token.RPAREN {
			return 0, token.NewError(tok, token.Fatal, token.UnbalPar, "", "")
		}
		return v, nil
	}
	return 0, token.NewError(tok, token.Fatal, token.LexExpected, "integer", tok.String())
}

func (e *evaluator) atEnd() bool {
	return e.pos >= len(e.toks)
}

func (e *evaluator) peek() token.Token {
	if e.atEnd() {
		return token.Token{Type: token.EOF}
	}
	return e.toks[e.pos]
}

func (e *evaluator) next() token.Token {
	tok := e.peek()
	if !e.atEnd() {
		e.pos++
	}
	return tok
}

func (e *evaluator) first() token.Token {
	if len(e.toks) > 0 {
		return e.toks[0]
	}
	return token.Token{Type: token.EOF}
}

func (e *evaluator) expected(what string) error {
	return token.NewError(e.peek(), token.Fatal, token.LexExpected, what, e.peek().String())
}
