package analyzer

import "github.com/thiremani/simmod/symbols"

// Context is the section the analyzer is in.
type Context int

const (
	Global Context = iota
	Dynamics
	Jacobian
	Scale
	Events
	Roots
	CalcOutputs
	End
	// Sbml and Apply are only entered while SBML documents are read.
	Sbml
	Apply
)

var contextNames = [...]string{
	Global:      "Global",
	Dynamics:    "Dynamics",
	Jacobian:    "Jacobian",
	Scale:       "Scale",
	Events:      "Events",
	Roots:       "Roots",
	CalcOutputs: "CalcOutputs",
	End:         "End",
	Sbml:        "Sbml",
	Apply:       "Apply",
}

func (c Context) String() string {
	if 0 <= c && int(c) < len(contextNames) {
		return contextNames[c]
	}
	return "Context(?)"
}

// LocalKind is the kind given to names first assigned in section c.
func (c Context) LocalKind() symbols.Kind {
	switch c {
	case Dynamics:
		return symbols.LocalDyn
	case Jacobian:
		return symbols.LocalJacob
	case Scale:
		return symbols.LocalScale
	case Events:
		return symbols.LocalEvent
	case Roots:
		return symbols.LocalRoot
	case CalcOutputs:
		return symbols.LocalCalcOut
	}
	return symbols.Null
}

// IsSection reports whether c is one of the braced equation sections.
func (c Context) IsSection() bool {
	return c.LocalKind() != symbols.Null
}

func (c Context) allowsTime() bool {
	return c == Dynamics || c == Scale || c == CalcOutputs
}

func (c Context) allowsDeriv() bool {
	return c == Dynamics || c == CalcOutputs
}

// SectionFor returns the section introduced by keyword, if any.
func SectionFor(keyword string) (Context, bool) {
	for c := Dynamics; c <= CalcOutputs; c++ {
		if c.String() == keyword {
			return c, true
		}
	}
	return Global, false
}

// Stack returns the equation stack of section c, or nil.
func Stack(tab *symbols.Table, c Context) *symbols.Stack {
	switch c {
	case Dynamics:
		return tab.Dynamics
	case Jacobian:
		return tab.Jacobian
	case Scale:
		return tab.Scale
	case Events:
		return tab.Events
	case Roots:
		return tab.Roots
	case CalcOutputs:
		return tab.CalcOutputs
	}
	return nil
}
