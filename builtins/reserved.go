// Package builtins lists the names the model grammar reserves: the
// functions an equation may call, the time variables, the dosing keywords
// and the section keywords.
package builtins

const (
	// Time is the integrator's time variable in native models.
	Time = "t"
	// TimeSBML is the name SBML documents use for time.
	TimeSBML = "time"
	// Delay is the delay function; calling it marks the model as delayed.
	Delay = "CalcDelay"
	// Deriv is the derivative keyword, dt(x).
	Deriv = "dt"
	// Inline introduces verbatim target code.
	Inline = "Inline"
)

var mathFuncNames = []string{
	// math.h
	"acos", "asin", "atan", "atan2", "ceil", "cos", "cosh", "exp", "fabs",
	"floor", "fmax", "fmin", "fmod", "log", "log10", "pow", "sin", "sinh",
	"sqrt", "tan", "tanh",

	// special functions
	"CDFNormal", "erfc", "lnDFNormal", "lnGamma", "piecewise",

	// boolean helpers
	"and", "leq", "lt",

	// random deviates
	"BetaRandom", "BinomialBetaRandom", "BinomialRandom", "CauchyRandom",
	"Chi2Random", "ExpRandom", "GammaRandom", "GetSeed", "GGammaRandom",
	"InvGGammaRandom", "LogNormalRandom", "LogUniformRandom", "NormalRandom",
	"PiecewiseRandom", "PoissonRandom", "SetSeed", "StudentTRandom",
	"TruncInvGGammaRandom", "TruncLogNormalRandom", "TruncNormalRandom",
	"UniformRandom",
}

// Dosing function keywords. They are only legal as the whole right-hand
// side of an Input assignment.
const (
	PerDose = "PerDose"
	PerRate = "PerRate"
	PerExp  = "PerExp"
	NDoses  = "NDoses"
)

var dosingNames = []string{PerDose, PerRate, PerExp, NDoses}

// Section and declaration keywords of the native grammar.
const (
	States       = "States"
	Inputs       = "Inputs"
	Outputs      = "Outputs"
	Parameters   = "Parameters"
	Compartments = "Compartments"
	Dynamics     = "Dynamics"
	Jacobian     = "Jacobian"
	Scale        = "Scale"
	Events       = "Events"
	Roots        = "Roots"
	CalcOutputs  = "CalcOutputs"
	End          = "End"
	SBMLModels   = "SBMLModels"
	PKTemplate   = "PKTemplate"
)

var keywordNames = []string{
	States, Inputs, Outputs, Parameters, Compartments, Dynamics, Jacobian,
	Scale, Events, Roots, CalcOutputs, End, SBMLModels, PKTemplate, Deriv,
	Inline,
}

func toSet(names []string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

var (
	mathFuncSet = toSet(mathFuncNames)
	dosingSet   = toSet(dosingNames)
	keywordSet  = toSet(keywordNames)
)

// MathFuncNames returns a copy of the callable built-in names.
func MathFuncNames() []string {
	return append([]string(nil), mathFuncNames...)
}

// IsMathFunc reports whether name is a whitelisted built-in function.
// The delay function is not included; see IsDelay.
func IsMathFunc(name string) bool {
	_, ok := mathFuncSet[name]
	return ok
}

func IsDelay(name string) bool {
	return name == Delay
}

// IsTime reports whether name denotes the time variable.
func IsTime(name string) bool {
	return name == Time || name == TimeSBML
}

func IsDosing(name string) bool {
	_, ok := dosingSet[name]
	return ok
}

// IsKeyword reports whether name is a section or statement keyword.
func IsKeyword(name string) bool {
	_, ok := keywordSet[name]
	return ok
}

// IsReserved reports whether name cannot be used as a model variable.
func IsReserved(name string) bool {
	return IsMathFunc(name) || IsDelay(name) || IsTime(name) || IsDosing(name) || IsKeyword(name)
}
