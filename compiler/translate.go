package compiler

import (
	"strings"

	"github.com/thiremani/simmod/builtins"
	"github.com/thiremani/simmod/lexer"
	"github.com/thiremani/simmod/symbols"
	"github.com/thiremani/simmod/token"
)

// IndexName is the macro holding the array index of a model variable.
func IndexName(name string) string {
	return "ID_" + name
}

// namer spells model variables in one routine of a generated variant.
type namer struct {
	// variable renders a State, Output or Input reference.
	variable func(r *symbols.Record) string
	// deriv renders the derivative slot of a State.
	deriv func(name string) string
	// time is the expression of the current time.
	time string
}

// translator rewrites equations of one section into target code.
type translator struct {
	tab   *symbols.Table
	local symbols.Kind
	names namer
}

// resolve finds the record name refers to in the current section, skipping
// locals of other sections.
func (tr *translator) resolve(name string) *symbols.Record {
	recs := tr.tab.Globals.Records()
	for i := len(recs) - 1; i >= 0; i-- {
		r := recs[i]
		if r.Name != name {
			continue
		}
		if r.Kind.IsLocal() && r.Kind != tr.local {
			continue
		}
		return r
	}
	return nil
}

// ident renders a single identifier. Parameters, locals and functions keep
// their names.
func (tr *translator) ident(name string) string {
	if builtins.IsTime(name) {
		return tr.names.time
	}
	r := tr.resolve(name)
	if r == nil {
		return name
	}
	switch r.Kind {
	case symbols.State, symbols.Output, symbols.Input:
		return tr.names.variable(r)
	}
	return name
}

// target renders the left-hand side of an equation of record r.
func (tr *translator) target(r *symbols.Record) string {
	if r.Kind == symbols.Derivative {
		return tr.names.deriv(r.Name)
	}
	return tr.ident(r.Name)
}

// equation re-lexes eqn and rewrites its identifiers. Spacing follows the
// stored text.
func (tr *translator) equation(eqn string) string {
	toks := lexer.New("", eqn).Tokens()
	var b strings.Builder
	write := func(space bool, s string) {
		if b.Len() > 0 && space {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}

	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		if tok.Type != token.IDENT {
			write(tok.Space, tok.String())
			continue
		}
		switch {
		case builtins.IsMathFunc(tok.Literal):
			write(tok.Space, tok.Literal)

		case tok.Literal == builtins.Deriv && call(toks, i):
			write(tok.Space, tr.names.deriv(toks[i+2].Literal))
			i += 3

		case builtins.IsDelay(tok.Literal) && call(toks, i):
			// The delayed variable is passed by index with the current time.
			write(tok.Space, tok.Literal+"("+IndexName(toks[i+2].Literal)+", "+tr.names.time)
			i += 2

		default:
			write(tok.Space, tr.ident(tok.Literal))
		}
	}
	return b.String()
}

// call reports whether toks[i] is followed by "(" and an identifier, and for
// dt also by the closing ")".
func call(toks []token.Token, i int) bool {
	if i+2 >= len(toks) || toks[i+1].Type != token.LPAREN || toks[i+2].Type != token.IDENT {
		return false
	}
	if toks[i].Literal == builtins.Deriv {
		return i+3 < len(toks) && toks[i+3].Type == token.RPAREN
	}
	return true
}
