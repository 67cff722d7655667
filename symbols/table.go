// Package symbols holds the per-section variable stacks of a model and the
// handle scheme that predicts generated array slots.
package symbols

// Content is what a record defines: an Equation, or for inputs a *Dosing.
type Content interface {
	isContent()
}

// Equation is the source text of a right-hand side. An empty Equation is
// distinct from no content at all.
type Equation string

func (Equation) isContent() {}

type Record struct {
	Name    string
	Kind    Kind
	Content Content
	// Space is set when a blank line separated this definition from the
	// previous one in its section.
	Space bool
	// Initializer marks the record appended to carry the initial value of
	// an earlier State, Output or Input declaration.
	Initializer bool
	// Placeholder marks a Parameter created by a bare value assignment. Only
	// placeholders may be promoted by a later declaration.
	Placeholder bool
	Line        int
}

func (r *Record) SetContent(c Content) {
	r.Content = c
}

func (r *Record) SetKind(k Kind) {
	r.Kind = k
}

func (r *Record) HasContent() bool {
	return r.Content != nil
}

// Equation returns the record's text and whether it holds an Equation.
func (r *Record) Equation() (string, bool) {
	eqn, ok := r.Content.(Equation)
	return string(eqn), ok
}

// Dosing returns the record's input function, or nil.
func (r *Record) Dosing() *Dosing {
	d, _ := r.Content.(*Dosing)
	return d
}

// HasSlot reports whether r is the declaration that owns a generated slot.
func (r *Record) HasSlot() bool {
	return r.Kind.HasSlot() && !r.Initializer
}

// Stack keeps the records of one section in declaration order.
type Stack struct {
	Name    string
	records []*Record
	table   *Table
}

// Lookup returns the most recent record named name, or nil.
func (s *Stack) Lookup(name string) *Record {
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].Name == name {
			return s.records[i]
		}
	}
	return nil
}

// KindOf returns the kind of the most recent record named name, or Null.
func (s *Stack) KindOf(name string) Kind {
	if r := s.Lookup(name); r != nil {
		return r.Kind
	}
	return Null
}

// Insert appends a new record. content may be nil for "no text yet".
func (s *Stack) Insert(name string, content Content, kind Kind) *Record {
	if s.table != nil && s.table.sealed {
		panic("symbols: insert into sealed table")
	}
	r := &Record{Name: name, Kind: kind, Content: content}
	s.records = append(s.records, r)
	return r
}

// Records returns the records in declaration order. The slice must not be
// modified.
func (s *Stack) Records() []*Record {
	return s.records
}

// InitialValue returns the text that gives the declaration r its initial
// value: the latest initializer of the same name, else the equation r was
// given before a declaration promoted it.
func (s *Stack) InitialValue(r *Record) (string, bool) {
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if rec == r {
			break
		}
		if rec.Name == r.Name && rec.Initializer {
			return rec.Equation()
		}
	}
	return r.Equation()
}

func (s *Stack) Len() int {
	return len(s.records)
}

// Reset empties the stack.
func (s *Stack) Reset() {
	s.records = nil
}

// Table is the symbol table of one compilation.
type Table struct {
	Globals      *Stack
	Dynamics     *Stack
	Jacobian     *Stack
	Scale        *Stack
	CalcOutputs  *Stack
	Events       *Stack
	Roots        *Stack
	Compartments *Stack
	// LocalCompartments is only used while SBML documents are imported.
	LocalCompartments *Stack

	sealed bool
}

func NewTable() *Table {
	t := &Table{}
	t.Globals = t.newStack("Globals")
	t.Dynamics = t.newStack("Dynamics")
	t.Jacobian = t.newStack("Jacobian")
	t.Scale = t.newStack("Scale")
	t.CalcOutputs = t.newStack("CalcOutputs")
	t.Events = t.newStack("Events")
	t.Roots = t.newStack("Roots")
	t.Compartments = t.newStack("Compartments")
	t.LocalCompartments = t.newStack("LocalCompartments")
	return t
}

func (t *Table) newStack(name string) *Stack {
	return &Stack{Name: name, table: t}
}

// Stacks returns every stack, the transient one last.
func (t *Table) Stacks() []*Stack {
	return []*Stack{
		t.Globals, t.Dynamics, t.Jacobian, t.Scale, t.CalcOutputs,
		t.Events, t.Roots, t.Compartments, t.LocalCompartments,
	}
}

// Declaration returns the slot-owning record named name, or nil.
func (t *Table) Declaration(name string) *Record {
	recs := t.Globals.records
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].Name == name && recs[i].HasSlot() {
			return recs[i]
		}
	}
	return nil
}

// ComputeHandle predicts the slot of name: the number of slot-owning
// records of the same kind declared before it. It is only meaningful while
// the model is being analyzed.
func (t *Table) ComputeHandle(name string) (Handle, bool) {
	if t.sealed {
		panic("symbols: ComputeHandle on sealed table")
	}
	decl := t.Declaration(name)
	if decl == nil {
		return Handle{}, false
	}
	n := 0
	for _, r := range t.Globals.records {
		if r == decl {
			break
		}
		if r.HasSlot() && r.Kind == decl.Kind {
			n++
		}
	}
	return Handle{Kind: decl.Kind, Ordinal: n}, true
}

// Slot pairs a declaration with its assigned slot.
type Slot struct {
	Record *Record
	Handle Handle
}

// Slots assigns per-kind array slots by walking the globals in declaration
// order.
func (t *Table) Slots() []Slot {
	counts := map[Kind]int{}
	var slots []Slot
	for _, r := range t.Globals.records {
		if !r.HasSlot() {
			continue
		}
		slots = append(slots, Slot{Record: r, Handle: Handle{Kind: r.Kind, Ordinal: counts[r.Kind]}})
		counts[r.Kind]++
	}
	return slots
}

// Count returns how many slot-owning records of kind k exist.
func (t *Table) Count(k Kind) int {
	n := 0
	for _, r := range t.Globals.records {
		if r.HasSlot() && r.Kind == k {
			n++
		}
	}
	return n
}

// Seal ends analysis. Later insertions and handle predictions panic.
func (t *Table) Seal() {
	t.sealed = true
}

func (t *Table) Sealed() bool {
	return t.sealed
}

// Release drops every record. It may be called more than once.
func (t *Table) Release() {
	for _, s := range t.Stacks() {
		if s != nil {
			s.Reset()
		}
	}
}
