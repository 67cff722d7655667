// Package dosing parses the input-function mini language:
//
//	<number>
//	PerDose(mag, tper, t0, texp)
//	PerRate(mag, tper, t0, texp)
//	PerExp(mag, tper, t0, decay)
//	NDoses(n, mag_1 .. mag_n, t0_1 .. t0_n, texp_1 .. texp_n)
//
// Scalar arguments are numbers or names of model variables; names are
// resolved to handles while the model is analyzed.
package dosing

import (
	"strconv"

	"github.com/thiremani/simmod/builtins"
	"github.com/thiremani/simmod/lexer"
	"github.com/thiremani/simmod/symbols"
	"github.com/thiremani/simmod/token"
)

// NDosesSyntax is printed when an NDoses list cannot be read.
const NDosesSyntax = "Syntax: NDoses (nDoses, <n Magnitudes>, <n T0's>, <n Texposure's>)"

// Resolver finds the handle of a model variable.
type Resolver interface {
	ComputeHandle(name string) (symbols.Handle, bool)
}

// Error is a failure to read a dosing spec. Hint, when set, is a usage
// line for the user.
type Error struct {
	Token   token.Token
	Code    token.Code
	Subject string
	Found   string
	Hint    string
}

func (e *Error) Error() string {
	return token.Message(e.Code, e.Subject, e.Found)
}

type parser struct {
	toks []token.Token
	pos  int
	r    Resolver
}

// Parse reads spec into a dosing record.
func Parse(spec string, r Resolver) (*symbols.Dosing, error) {
	p := &parser{toks: lexer.New("", spec).Tokens(), r: r}
	d := &symbols.Dosing{Spec: spec}

	tok := p.peek()
	switch {
	case p.atNumber():
		v, err := p.number()
		if err != nil {
			return nil, err
		}
		d.Kind = symbols.Constant
		d.Mag = symbols.Literal(v)
		d.On = true

	case tok.Type == token.IDENT:
		p.next()
		var err error
		switch tok.Literal {
		case builtins.PerDose:
			d.Kind = symbols.PerDose
			err = p.scalarArgs(d)
		case builtins.PerRate:
			d.Kind = symbols.PerRate
			err = p.scalarArgs(d)
		case builtins.PerExp:
			d.Kind = symbols.PerExp
			err = p.scalarArgs(d)
		case builtins.NDoses:
			d.Kind = symbols.NDoses
			err = p.nDoses(d)
		default:
			err = &Error{Token: tok, Code: token.LexExpected, Subject: "input-spec", Found: tok.Literal}
		}
		if err != nil {
			return nil, err
		}

	default:
		return nil, &Error{Token: tok, Code: token.LexExpected, Subject: "input-spec", Found: tok.String()}
	}

	if tok := p.peek(); tok.Type != token.EOF {
		return nil, &Error{Token: tok, Code: token.Unexpected, Subject: tok.String()}
	}
	return d, nil
}

// scalarArgs reads the four arguments of PerDose, PerRate and PerExp. The
// fourth is the exposure time, or the decay rate for PerExp.
func (p *parser) scalarArgs(d *symbols.Dosing) error {
	if err := p.expect(token.LPAREN); err != nil {
		return err
	}
	fourth := &d.Texp
	if d.Kind == symbols.PerExp {
		fourth = &d.Decay
	}
	dests := []*symbols.Arg{&d.Mag, &d.Tper, &d.T0, fourth}
	for i, dst := range dests {
		if i > 0 {
			if err := p.expect(token.COMMA); err != nil {
				return err
			}
		}
		arg, err := p.arg()
		if err != nil {
			return err
		}
		*dst = arg
	}
	return p.expect(token.RPAREN)
}

// arg reads a literal or resolves a variable name.
func (p *parser) arg() (symbols.Arg, error) {
	if p.atNumber() {
		v, err := p.number()
		if err != nil {
			return symbols.Arg{}, err
		}
		return symbols.Literal(v), nil
	}

	tok := p.next()
	if tok.Type != token.IDENT {
		return symbols.Arg{}, &Error{Token: tok, Code: token.LexExpected, Subject: "input-spec", Found: tok.String()}
	}
	if p.peek().Type == token.LBRACK {
		return symbols.Arg{}, &Error{Token: tok, Code: token.LexExpected, Subject: "scalar argument", Found: tok.Literal + "["}
	}
	h, ok := p.r.ComputeHandle(tok.Literal)
	if !ok {
		return symbols.Arg{}, &Error{Token: tok, Code: token.Undefined, Subject: tok.Literal}
	}
	return symbols.Dependency(tok.Literal, h), nil
}

// nDoses reads the dose count and the three lists. The lists are dropped
// together if any value cannot be read.
func (p *parser) nDoses(d *symbols.Dosing) error {
	if err := p.expect(token.LPAREN); err != nil {
		return withHint(err)
	}

	tok := p.peek()
	n, err := strconv.Atoi(tok.Literal)
	if tok.Type != token.INT || err != nil || n <= 0 {
		return withHint(&Error{Token: tok, Code: token.LexExpected, Subject: "positive-integer", Found: tok.String()})
	}
	p.next()
	// Each value takes at least one token.
	if n > (len(p.toks)-p.pos)/3 {
		return withHint(&Error{Token: tok, Code: token.LexExpected, Subject: "positive-integer", Found: tok.String()})
	}

	d.Mags = make([]float64, n)
	d.T0s = make([]float64, n)
	d.Texps = make([]float64, n)
	for _, list := range [][]float64{d.Mags, d.T0s, d.Texps} {
		for i := range list {
			p.optional(token.COMMA)
			if !p.atNumber() {
				d.ClearDoses()
				tok := p.peek()
				return withHint(&Error{Token: tok, Code: token.LexExpected, Subject: "number", Found: tok.String()})
			}
			v, err := p.number()
			if err != nil {
				d.ClearDoses()
				return withHint(err)
			}
			list[i] = v
		}
	}

	if err := p.expect(token.RPAREN); err != nil {
		d.ClearDoses()
		return withHint(err)
	}
	d.On = true
	return nil
}

func withHint(err error) error {
	if e, ok := err.(*Error); ok {
		e.Hint = NDosesSyntax
	}
	return err
}

func (p *parser) peek() token.Token {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return token.Token{Type: token.EOF}
}

func (p *parser) next() token.Token {
	tok := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return tok
}

func (p *parser) expect(tt token.TokenType) error {
	tok := p.next()
	if tok.Type != tt {
		return &Error{Token: tok, Code: token.Expected, Subject: tt.String(), Found: tok.String()}
	}
	return nil
}

func (p *parser) optional(tt token.TokenType) {
	if p.peek().Type == tt {
		p.next()
	}
}

// atNumber reports whether a number, possibly signed, comes next.
func (p *parser) atNumber() bool {
	tok := p.peek()
	if tok.Type == token.SUB || tok.Type == token.ADD {
		if p.pos+1 >= len(p.toks) {
			return false
		}
		tok = p.toks[p.pos+1]
	}
	return tok.IsNumber()
}

func (p *parser) number() (float64, error) {
	sign := 1.0
	if tok := p.peek(); tok.Type == token.SUB || tok.Type == token.ADD {
		if tok.Type == token.SUB {
			sign = -1
		}
		p.next()
	}
	tok := p.next()
	v, err := strconv.ParseFloat(tok.Literal, 64)
	if err != nil {
		return 0, &Error{Token: tok, Code: token.LexExpected, Subject: "number", Found: tok.Literal}
	}
	return sign * v, nil
}
