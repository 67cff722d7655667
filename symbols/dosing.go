package symbols

// DosingKind is the form of an input function.
type DosingKind int

const (
	Constant DosingKind = iota
	PerDose
	PerRate
	PerExp
	NDoses
)

func (k DosingKind) String() string {
	switch k {
	case Constant:
		return "Constant"
	case PerDose:
		return "PerDose"
	case PerRate:
		return "PerRate"
	case PerExp:
		return "PerExp"
	}
	return "NDoses"
}

// Arg is one scalar argument of an input function: a literal, or a
// dependency on another model variable resolved to a handle.
type Arg struct {
	Value  float64
	Param  string
	Handle Handle
}

func Literal(v float64) Arg {
	return Arg{Value: v}
}

func Dependency(name string, h Handle) Arg {
	return Arg{Param: name, Handle: h}
}

func (a Arg) IsDependency() bool {
	return a.Param != ""
}

// Dosing is the compiled form of an Input's specification. Mags, T0s and
// Texps are only set for NDoses and always have the same length.
type Dosing struct {
	Kind DosingKind
	On   bool

	Mag   Arg
	Tper  Arg
	T0    Arg
	Texp  Arg
	Decay Arg

	Mags  []float64
	T0s   []float64
	Texps []float64

	// Spec is the source text the record was parsed from.
	Spec string
}

func (*Dosing) isContent() {}

// Doses is the number of explicit doses of an NDoses record.
func (d *Dosing) Doses() int {
	return len(d.Mags)
}

// Args returns pointers to the five scalar arguments.
func (d *Dosing) Args() []*Arg {
	return []*Arg{&d.Mag, &d.Tper, &d.T0, &d.Texp, &d.Decay}
}

// ClearDoses drops the three dose arrays together.
func (d *Dosing) ClearDoses() {
	d.Mags, d.T0s, d.Texps = nil, nil, nil
}
