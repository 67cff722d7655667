package compiler

import (
	"fmt"
	"strings"

	"github.com/thiremani/simmod/symbols"
)

// Variant selects the flavour of the generated source.
type Variant int

const (
	// Plain is a model file for the simmod runtime.
	Plain Variant = iota
	// DeSolve is a model file for the R deSolve package.
	DeSolve
)

func (v Variant) String() string {
	if v == DeSolve {
		return "deSolve"
	}
	return "plain"
}

// ParseVariant accepts the names String returns, and "R" for DeSolve.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(s) {
	case "", "plain", "c":
		return Plain, nil
	case "desolve", "r":
		return DeSolve, nil
	}
	return Plain, fmt.Errorf("unknown output variant %q", s)
}

// Generator writes one variant of the model source, one pass per part of
// the file. Passes must run in the order Generate calls them.
type Generator interface {
	Header()
	IndexMacros()
	Declarations()
	Initializer()
	Derivatives()
	Jacobian()
	Scale()
	CalcOutputs()
	Events()
	Roots()
	String() string
}

// Generate runs every pass of g and returns the source.
func Generate(g Generator) string {
	g.Header()
	g.IndexMacros()
	g.Declarations()
	g.Initializer()
	g.Derivatives()
	g.Jacobian()
	g.Scale()
	g.CalcOutputs()
	g.Events()
	g.Roots()
	return g.String()
}

// NewGenerator returns the generator of variant v for a finished model.
func NewGenerator(v Variant, m *Model) Generator {
	if !m.Table.Sealed() {
		panic("compiler: generator needs a sealed table")
	}
	if v == DeSolve {
		return newRGenerator(m)
	}
	return newCGenerator(m)
}

// emitter holds what both variants share: the output buffer and the slot
// layout of the table.
type emitter struct {
	m   *Model
	tab *symbols.Table
	b   strings.Builder

	slots  []symbols.Slot
	counts map[symbols.Kind]int
}

func newEmitter(m *Model) emitter {
	e := emitter{m: m, tab: m.Table, slots: m.Table.Slots(), counts: map[symbols.Kind]int{}}
	for _, s := range e.slots {
		e.counts[s.Record.Kind]++
	}
	return e
}

func (e *emitter) String() string {
	return e.b.String()
}

func (e *emitter) printf(format string, args ...any) {
	fmt.Fprintf(&e.b, format, args...)
}

func (e *emitter) line(s string) {
	e.b.WriteString(s)
	e.b.WriteByte('\n')
}

// slotsOf lists the slots of kind k in order.
func (e *emitter) slotsOf(k symbols.Kind) []symbols.Slot {
	var out []symbols.Slot
	for _, s := range e.slots {
		if s.Record.Kind == k {
			out = append(out, s)
		}
	}
	return out
}

// arraySize keeps generated arrays non-empty.
func arraySize(n int) int {
	return max(n, 1)
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// summary lists the model variables in the header comment.
func (e *emitter) summary() {
	e.line("   Model calculations for compartmental model:")
	e.line("")
	groups := []struct {
		kind symbols.Kind
		word string
	}{
		{symbols.State, "State"},
		{symbols.Output, "Output"},
		{symbols.Input, "Input"},
		{symbols.Parameter, "Parameter"},
	}
	for _, g := range groups {
		slots := e.slotsOf(g.kind)
		e.printf("   %s:\n", plural(len(slots), g.word))
		for _, s := range slots {
			e.printf("     %s%s\n", s.Record.Name, e.initialText(s.Record))
		}
		e.line("")
	}
}

// initialText describes the initial value of a declaration in the
// summary.
func (e *emitter) initialText(r *symbols.Record) string {
	if d := r.Dosing(); d != nil {
		return " (is a function)"
	}
	if eqn, ok := e.initialValue(r); ok {
		return " -> " + eqn + ";"
	}
	return " -> 0.0;"
}

// initialValue is the equation giving r its initial value, if any.
func (e *emitter) initialValue(r *symbols.Record) (string, bool) {
	return e.tab.Globals.InitialValue(r)
}

// locals lists, once each, the names of kind local assigned in s.
func locals(s *symbols.Stack, local symbols.Kind) []string {
	var out []string
	seen := map[string]bool{}
	for _, r := range s.Records() {
		if r.Kind == local && !seen[r.Name] {
			seen[r.Name] = true
			out = append(out, r.Name)
		}
	}
	return out
}

// functions lists the function definitions, in order.
func (e *emitter) functions() []*symbols.Record {
	var out []*symbols.Record
	for _, r := range e.tab.Globals.Records() {
		if r.Kind == symbols.Function {
			out = append(out, r)
		}
	}
	return out
}

func recordNames(recs []*symbols.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Name)
	}
	return out
}

// declareLocals writes the local variable declarations of a routine.
func (e *emitter) declareLocals(names []string) {
	if len(names) == 0 {
		return
	}
	e.line("  /* local */")
	e.printf("  double %s;\n", strings.Join(names, ", "))
	e.line("")
}

// equations writes the equations of s. Inline code is copied as is and a
// blank line is kept wherever the source had one.
func (e *emitter) equations(s *symbols.Stack, tr *translator) {
	for _, r := range s.Records() {
		if r.Space {
			e.line("")
		}
		eqn, _ := r.Equation()
		if r.Kind == symbols.Inline {
			e.printf("  %s\n", eqn)
			continue
		}
		e.printf("  %s = %s;\n", tr.target(r), tr.equation(eqn))
	}
}

// defineFunctions assigns the function definitions at the top of a routine.
func (e *emitter) defineFunctions(tr *translator) {
	fns := e.functions()
	for _, r := range fns {
		eqn, _ := r.Equation()
		e.printf("  %s = %s;\n", r.Name, tr.equation(eqn))
	}
	if len(fns) > 0 {
		e.line("")
	}
}

// roots writes the Roots equations, each filling the next element of out.
// Local roots are kept in variables so later equations may use them.
func (e *emitter) roots(tr *translator, out string) {
	i := 0
	for _, r := range e.tab.Roots.Records() {
		if r.Space {
			e.line("")
		}
		eqn, _ := r.Equation()
		switch r.Kind {
		case symbols.Inline:
			e.printf("  %s\n", eqn)
		case symbols.LocalRoot:
			e.printf("  %s = %s;\n", r.Name, tr.equation(eqn))
			e.printf("  %s[%d] = %s;\n", out, i, r.Name)
			i++
		default:
			e.printf("  %s[%d] = %s;\n", out, i, tr.equation(eqn))
			i++
		}
	}
}
