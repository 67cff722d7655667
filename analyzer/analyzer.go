// Package analyzer applies the context rules of the model grammar to the
// symbol table: where each kind of name may be declared or assigned, and
// which names an equation may reference.
package analyzer

import (
	"errors"

	"github.com/thiremani/simmod/builtins"
	"github.com/thiremani/simmod/dosing"
	"github.com/thiremani/simmod/lexer"
	"github.com/thiremani/simmod/symbols"
	"github.com/thiremani/simmod/token"
)

// DefaultMaxIndex is the largest number of slots of one kind.
const DefaultMaxIndex = 0xFFFF

// Form says how a definition was written.
type Form int

const (
	// Plain is name = equation.
	Plain Form = iota
	// Deriv is dt(name) = equation.
	Deriv
	// InlineCode is Inline(text): text is copied to the output unchecked.
	InlineCode
	// Func defines a function body, as SBML function definitions do.
	Func
)

type Options struct {
	MaxIndex int
}

type Analyzer struct {
	Table *symbols.Table
	rep   *Reporter
	opts  Options

	ctx      Context
	tok      token.Token
	endLine  int
	prevLine int

	// Delays is set once an equation calls the delay function.
	Delays bool
	// ScaleEquations counts the equations of the Scale section.
	ScaleEquations int
}

func New(tab *symbols.Table, rep *Reporter, opts Options) *Analyzer {
	if opts.MaxIndex <= 0 {
		opts.MaxIndex = DefaultMaxIndex
	}
	return &Analyzer{Table: tab, rep: rep, opts: opts}
}

// MaxIndex is the largest number of slots of one kind.
func (a *Analyzer) MaxIndex() int {
	return a.opts.MaxIndex
}

func (a *Analyzer) Reporter() *Reporter {
	return a.rep
}

func (a *Analyzer) Context() Context {
	return a.ctx
}

// Enter switches to section c.
func (a *Analyzer) Enter(c Context) {
	a.ctx = c
	a.prevLine = a.tok.Line
}

// At positions the next definition at tok.
func (a *Analyzer) At(tok token.Token) {
	a.AtSpan(tok, tok.Line)
}

// AtSpan positions the next definition, which starts at tok and ends on
// endLine.
func (a *Analyzer) AtSpan(tok token.Token, endLine int) {
	a.tok = tok
	a.endLine = endLine
}

// Pos is the token the analyzer is positioned at.
func (a *Analyzer) Pos() token.Token {
	return a.tok
}

// Report sends a standard diagnostic for the current position.
func (a *Analyzer) Report(sev token.Severity, code token.Code, subject, found string) error {
	return a.rep.Report(token.NewError(a.tok, sev, code, subject, found))
}

// ReportMsg sends a diagnostic with a custom message.
func (a *Analyzer) ReportMsg(sev token.Severity, code token.Code, msg string) error {
	return a.rep.Report(&token.CompileError{Token: a.tok, Severity: sev, Code: code, Msg: msg})
}

// lookup finds name in the globals, skipping records local to a section
// other than the current one.
func (a *Analyzer) lookup(name string) *symbols.Record {
	local := a.ctx.LocalKind()
	recs := a.Table.Globals.Records()
	for i := len(recs) - 1; i >= 0; i-- {
		r := recs[i]
		if r.Name != name {
			continue
		}
		if local != symbols.Null && r.Kind.IsLocal() && r.Kind != local {
			continue
		}
		return r
	}
	return nil
}

func kindOf(r *symbols.Record) symbols.Kind {
	if r == nil {
		return symbols.Null
	}
	return r.Kind
}

// insert appends to s, stamping the record with the current position and,
// for section equations, the blank-line flag.
func (a *Analyzer) insert(s *symbols.Stack, name string, c symbols.Content, k symbols.Kind) *symbols.Record {
	r := s.Insert(name, c, k)
	r.Line = a.tok.Line
	if s != a.Table.Globals && a.ctx.IsSection() {
		r.Space = a.prevLine > 0 && a.tok.Line-a.prevLine > 1
		a.prevLine = a.endLine
	}
	return r
}

// Define records name = eqn in the current section.
func (a *Analyzer) Define(name, eqn string, form Form) error {
	rec := a.lookup(name)
	kind := kindOf(rec)

	if form != InlineCode && !(kind == symbols.Input && a.ctx == Global) {
		if err := a.VerifyEquation(eqn); err != nil {
			return err
		}
	}
	if form == Deriv && a.ctx != Dynamics {
		return a.Report(token.Fatal, token.BadContext, builtins.Deriv, "")
	}

	switch a.ctx {
	case Global:
		return a.defineGlobal(name, eqn, form, rec)
	case Dynamics:
		return a.defineDynamics(name, eqn, form, rec)
	case Jacobian, Scale, Events, Roots:
		return a.defineSection(name, eqn, form, rec)
	case CalcOutputs:
		return a.defineCalcOutputs(name, eqn, form, rec)
	}
	return a.Report(token.Fatal, token.BadContext, name, "")
}

// Declare gives name its kind. It is only legal in the global section.
func (a *Analyzer) Declare(name string, kind symbols.Kind) error {
	if a.ctx != Global {
		return a.Report(token.Fatal, token.BadContext, name, "")
	}
	if builtins.IsReserved(name) {
		return a.Report(token.Fatal, token.BadContext, name, "")
	}

	if kind == symbols.Compartment {
		if a.Table.Compartments.Lookup(name) != nil {
			return a.Report(token.Warning, token.DupDecl, name, "")
		}
		a.insert(a.Table.Compartments, name, nil, kind)
		return nil
	}
	if !kind.HasSlot() {
		return a.Report(token.Fatal, token.BadContext, name, "")
	}

	rec := a.Table.Globals.Lookup(name)
	switch {
	case rec == nil:
		a.insert(a.Table.Globals, name, nil, kind)
		return nil

	case rec.Kind == kind:
		return a.Report(token.Warning, token.DupDecl, name, "")

	case rec.Kind == symbols.Parameter && rec.Placeholder:
		if err := a.ReportMsg(token.Warning, token.DupDecl, "Model variable initialized before declaration: '"+name+"'."); err != nil {
			return err
		}
		rec.SetKind(kind)
		rec.Placeholder = false
		if kind == symbols.Input {
			eqn, _ := rec.Equation()
			d, err := dosing.Parse(eqn, a.Table)
			if err != nil {
				return a.dosingError(err)
			}
			rec.SetContent(d)
		}
		return nil
	}
	return a.Report(token.Fatal, token.DupDecl, name, "")
}

// VerifyEquation checks that every identifier of eqn may be referenced in
// the current section.
func (a *Analyzer) VerifyEquation(eqn string) error {
	for _, tok := range lexer.New("", eqn).Tokens() {
		switch {
		case tok.Type == token.IDENT:
			if err := a.verifyIdent(tok.Literal); err != nil {
				return err
			}
		case tok.IsNumber():
		case tok.Type == token.NOT || tok.Type == token.ASSIGN:
			return a.Report(token.Fatal, token.Unexpected, tok.Literal, "")
		case tok.IsEquationPunct():
		default:
			return a.Report(token.Fatal, token.Unexpected, tok.String(), "")
		}
	}
	return nil
}

func (a *Analyzer) verifyIdent(name string) error {
	switch {
	case builtins.IsDosing(name):
		return a.Report(token.Fatal, token.BadContext, name, "")
	case builtins.IsMathFunc(name):
		return nil
	case builtins.IsDelay(name):
		a.Delays = true
		return nil
	case builtins.IsTime(name):
		if !a.ctx.allowsTime() {
			return a.Report(token.Fatal, token.BadContext, name, "")
		}
		return nil
	case name == builtins.Deriv:
		if !a.ctx.allowsDeriv() {
			return a.Report(token.Fatal, token.BadContext, name, "")
		}
		return nil
	case a.lookup(name) != nil:
		return nil
	}
	return a.Report(token.Fatal, token.Undefined, name, "")
}

// dosingError reports a failed dosing spec as fatal, preceded by its usage
// hint if it has one.
func (a *Analyzer) dosingError(err error) error {
	var de *dosing.Error
	if !errors.As(err, &de) {
		return err
	}
	if de.Hint != "" {
		a.ReportMsg(token.Info, token.NoCode, de.Hint)
	}
	return a.rep.Report(&token.CompileError{Token: a.tok, Severity: token.Fatal, Code: de.Code, Msg: de.Error()})
}
