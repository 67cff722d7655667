package symbols

import "fmt"

// Kind is the role a symbol plays in the model.
type Kind int

const (
	Null Kind = iota
	Parameter
	State
	Input
	Output
	Compartment
	Derivative
	Function
	Inline
	LocalDyn
	LocalScale
	LocalJacob
	LocalEvent
	LocalRoot
	LocalCalcOut
)

var kindNames = [...]string{
	Null:         "Null",
	Parameter:    "Parameter",
	State:        "State",
	Input:        "Input",
	Output:       "Output",
	Compartment:  "Compartment",
	Derivative:   "Derivative",
	Function:     "Function",
	Inline:       "Inline",
	LocalDyn:     "LocalDyn",
	LocalScale:   "LocalScale",
	LocalJacob:   "LocalJacob",
	LocalEvent:   "LocalEvent",
	LocalRoot:    "LocalRoot",
	LocalCalcOut: "LocalCalcOut",
}

func (k Kind) String() string {
	if 0 <= k && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsLocal reports whether k is scoped to a single section's routine.
func (k Kind) IsLocal() bool {
	return LocalDyn <= k && k <= LocalCalcOut
}

// HasSlot reports whether records of kind k occupy a per-kind array slot
// in the generated model.
func (k Kind) HasSlot() bool {
	switch k {
	case Parameter, State, Input, Output:
		return true
	}
	return false
}

// SlotKinds lists the kinds with slots, in the order the generated model
// declares them.
var SlotKinds = []Kind{State, Output, Input, Parameter}

// Handle predicts where a symbol lands in its kind's array of the generated
// model. Handles order by kind, then ordinal.
type Handle struct {
	Kind    Kind
	Ordinal int
}

func (h Handle) Less(o Handle) bool {
	if h.Kind != o.Kind {
		return h.Kind < o.Kind
	}
	return h.Ordinal < o.Ordinal
}

func (h Handle) String() string {
	return fmt.Sprintf("%s#%d", h.Kind, h.Ordinal)
}
