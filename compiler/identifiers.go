package compiler

import (
	"fmt"
	"strings"
)

// C keywords (C99 and C11).
var cKeywords = map[string]bool{
	"auto": true, "break": true, "case": true, "char": true, "const": true,
	"continue": true, "default": true, "do": true, "double": true, "else": true,
	"enum": true, "extern": true, "float": true, "for": true, "goto": true,
	"if": true, "inline": true, "int": true, "long": true, "register": true,
	"restrict": true, "return": true, "short": true, "signed": true, "sizeof": true,
	"static": true, "struct": true, "switch": true, "typedef": true, "union": true,
	"unsigned": true, "void": true, "volatile": true, "while": true,
	"_Alignas": true, "_Alignof": true, "_Atomic": true, "_Bool": true,
	"_Complex": true, "_Generic": true, "_Imaginary": true, "_Noreturn": true,
	"_Static_assert": true, "_Thread_local": true,
}

// Names the generated files declare themselves, per variant.
var generatedNames = map[Variant]map[string]bool{
	Plain: toSet(
		"vrgModelVars", "vrgInputs", "vrgvmGlo", "rgModelVars", "rgDerivs",
		"rgPDerivs", "rgJacob", "rgRoots", "pdTime", "vnStates", "vnOutputs",
		"vnModelVars", "vnInputs", "vnParms", "bDelays", "vbModelReinitd",
		"szModelDescFilename", "szModelSourceFilename", "szModelGenAndVersion",
		"InitModel", "CalcDeriv", "CalcJacob", "ScaleModel", "CalcOutputs",
		"CalcEvents", "CalcRoots", "CalcInputs", "IFN", "VMMAPSTRCT", "BOOL",
		"PVOID", "PDOUBLE", "TRUE", "FALSE", "NULL",
	),
	DeSolve: toSet(
		"parms", "forc", "y", "ydot", "yout", "neq", "ip", "ml", "mu", "pd",
		"nrowpd", "gout", "ng", "n", "out", "nout", "inParms", "i", "pdTime",
		"initmod", "initforc", "getParms", "derivs", "jac", "event", "root",
		"lagvalue", "Nout", "nr", "ytau", "yini", "N", "T",
	),
}

func toSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// ValidateIdentifier checks that a model name can be written unchanged
// into the source of variant v.
// Rules:
//   - ASCII letters, digits and underscore only, not starting with a digit
//   - No C keywords
//   - No leading double underscore or underscore followed by an uppercase
//     letter (reserved to the C implementation)
//   - No "ID_" prefix (index macros)
//   - No name the generated file already declares
func ValidateIdentifier(name string, v Variant) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			// valid
		case r >= '0' && r <= '9':
			if i == 0 {
				return fmt.Errorf("identifier %q starts with a digit", name)
			}
		default:
			return fmt.Errorf("invalid character %q at position %d in identifier %q", r, i, name)
		}
	}

	switch {
	case cKeywords[name]:
		return fmt.Errorf("%q is a C keyword", name)
	case strings.HasPrefix(name, "__"), len(name) > 1 && name[0] == '_' && name[1] >= 'A' && name[1] <= 'Z':
		return fmt.Errorf("%q is reserved to the C implementation", name)
	case strings.HasPrefix(name, "ID_"):
		return fmt.Errorf("%q clashes with the index macros", name)
	case generatedNames[v][name]:
		return fmt.Errorf("%q is already declared by the generated %s model", name, v)
	}
	return nil
}
