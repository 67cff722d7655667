package compiler

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/thiremani/simmod/analyzer"
	"github.com/thiremani/simmod/symbols"
)

// RuntimeHeader is the header plain model files include.
const RuntimeHeader = "simmod.h"

// cGenerator writes a model file for the simmod runtime. States and
// Outputs share the model variable array, Inputs are input function
// records and Parameters are C globals.
type cGenerator struct {
	emitter
}

func newCGenerator(m *Model) *cGenerator {
	return &cGenerator{emitter: newEmitter(m)}
}

// index is the value of the index macro of a slot. Outputs follow the
// States in the model variable array; Parameters are numbered after every
// other variable, as in the global variable map.
func (g *cGenerator) index(h symbols.Handle) int {
	n := h.Ordinal
	switch h.Kind {
	case symbols.Output:
		n += g.counts[symbols.State]
	case symbols.Parameter:
		n += g.counts[symbols.State] + g.counts[symbols.Output] + g.counts[symbols.Input]
	}
	return n
}

// names spells variables in a routine that receives the model variables
// in the array modelVars.
func (g *cGenerator) names(modelVars string) namer {
	return namer{
		variable: func(r *symbols.Record) string {
			if r.Kind == symbols.Input {
				return "vrgInputs[" + IndexName(r.Name) + "].dVal"
			}
			return modelVars + "[" + IndexName(r.Name) + "]"
		},
		deriv: func(name string) string {
			return "rgDerivs[" + IndexName(name) + "]"
		},
		time: "(*pdTime)",
	}
}

func (g *cGenerator) translator(c analyzer.Context, modelVars string) *translator {
	return &translator{tab: g.tab, local: c.LocalKind(), names: g.names(modelVars)}
}

func (g *cGenerator) Header() {
	g.line("/* " + g.m.OutputName())
	g.line("   ___________________________________________________")
	g.line("")
	g.printf("   Model File:  %s\n", g.m.Source)
	g.line("")
	g.printf("   Date:  %s\n", g.m.Date)
	g.line("")
	g.printf("   Created by:  \"%s\"\n", g.m.Generator)
	g.line("   ___________________________________________________")
	g.line("")
	g.summary()
	g.line("*/")
	g.line("")
	g.line("#include <stdio.h>")
	g.line("#include <stdlib.h>")
	g.line("#include <math.h>")
	g.line("#include <string.h>")
	g.line("#include <float.h>")
	g.printf("#include \"%s\"\n", RuntimeHeader)
	g.line("")
}

func (g *cGenerator) IndexMacros() {
	g.line("/*----- Indices to Global Variables */")
	groups := []struct {
		title string
		kinds []symbols.Kind
	}{
		{"Model variables: States and other outputs", []symbols.Kind{symbols.State, symbols.Output}},
		{"Inputs", []symbols.Kind{symbols.Input}},
		{"Parameters", []symbols.Kind{symbols.Parameter}},
	}
	for _, grp := range groups {
		g.line("")
		g.printf("/* %s */\n", grp.title)
		for _, k := range grp.kinds {
			for _, s := range g.slotsOf(k) {
				g.printf("#define %s 0x%05x\n", IndexName(s.Record.Name), g.index(s.Handle))
			}
		}
	}
	g.line("")
}

func (g *cGenerator) Declarations() {
	nStates, nOutputs := g.counts[symbols.State], g.counts[symbols.Output]
	nInputs, nParms := g.counts[symbols.Input], g.counts[symbols.Parameter]

	g.line("/*----- Global Variables */")
	g.line("")
	g.line("/* For export. Keep track of who we are. */")
	g.printf("char szModelDescFilename[] = %q;\n", filepath.ToSlash(g.m.Source))
	g.line("char szModelSourceFilename[] = __FILE__;")
	g.printf("char szModelGenAndVersion[] = %q;\n", g.m.Generator)
	g.line("")
	g.line("/* Externs */")
	g.line("extern BOOL vbModelReinitd;")
	g.line("")
	g.line("/* Model Dimensions */")
	g.printf("int vnStates = %d;\n", nStates)
	g.printf("int vnOutputs = %d;\n", nOutputs)
	g.printf("int vnModelVars = %d;\n", nStates+nOutputs)
	g.printf("int vnInputs = %d;\n", nInputs)
	g.printf("int vnParms = %d;\n", nParms)
	g.line("")
	g.line("/* States and Outputs*/")
	g.printf("double vrgModelVars[%d];\n", arraySize(nStates+nOutputs))
	g.line("")
	g.line("/* Inputs */")
	g.printf("IFN vrgInputs[%d];\n", arraySize(nInputs))
	g.line("")
	g.line("/* Parameters */")
	for _, s := range g.slotsOf(symbols.Parameter) {
		g.printf("double %s;\n", s.Record.Name)
	}
	g.line("")
	g.printf("BOOL bDelays = %d;\n", btoi(g.m.Delays))
	g.line("")
	g.line("")
	g.line("/*----- Global Variable Map */")
	g.line("")
	g.line("VMMAPSTRCT vrgvmGlo[] = {")
	for _, s := range g.slots {
		id := IndexName(s.Record.Name)
		var addr, kind string
		switch s.Record.Kind {
		case symbols.State:
			addr, kind = "&vrgModelVars["+id+"]", "ID_STATE"
		case symbols.Output:
			addr, kind = "&vrgModelVars["+id+"]", "ID_OUTPUT"
		case symbols.Input:
			addr, kind = "&vrgInputs["+id+"]", "ID_INPUT"
		default:
			addr, kind = "&"+s.Record.Name, "ID_PARM"
		}
		g.printf("  {%q, (PVOID) %s, %s | %s},\n", s.Record.Name, addr, kind, id)
	}
	g.line("  {\"\", NULL, 0} /* End flag */")
	g.line("};")
	g.line("")
}

// Initializer writes InitModel, which sets every variable in the order of
// the model file so that initial values may depend on earlier ones.
func (g *cGenerator) Initializer() {
	tr := g.translator(analyzer.Global, "vrgModelVars")
	g.line("/*----- InitModel")
	g.line("   Should be called to initialize model variables at")
	g.line("   the beginning of experiment before reading")
	g.line("   variants from the simulation spec file.")
	g.line("*/")
	g.line("")
	g.line("void InitModel(void)")
	g.line("{")
	g.line("  /* Initialize things in the order that they appear in")
	g.line("     model definition file so that dependencies are")
	g.line("     handled correctly. */")
	g.line("")
	for _, r := range g.tab.Globals.Records() {
		eqn, hasEqn := r.Equation()
		switch {
		case r.Kind == symbols.Inline:
			g.printf("  %s\n", eqn)
		case r.Kind == symbols.Input && r.HasSlot():
			g.dosing(r)
		case r.Kind == symbols.Parameter:
			if !hasEqn {
				eqn = "0.0"
			}
			g.printf("  %s = %s;\n", r.Name, tr.equation(eqn))
		case r.Kind == symbols.State || r.Kind == symbols.Output:
			if !hasEqn {
				eqn = "0.0"
			}
			g.printf("  %s = %s;\n", tr.ident(r.Name), tr.equation(eqn))
		}
	}
	g.line("")
	g.line("  vbModelReinitd = TRUE;")
	g.line("")
	g.line("} /* InitModel */")
	g.line("")
}

// dosing writes the input function record of an Input.
func (g *cGenerator) dosing(r *symbols.Record) {
	in := "vrgInputs[" + IndexName(r.Name) + "]"
	d := r.Dosing()
	if d == nil {
		g.printf("  %s.iType = IH_CONSTANT;\n", in)
		g.printf("  %s.dMag = 0.0;\n", in)
		g.printf("  %s.bOn = FALSE;\n", in)
		return
	}
	g.printf("  %s.iType = %s;\n", in, dosingType(d.Kind))
	g.printf("  %s.dTStartPeriod = 0;\n", in)
	g.printf("  %s.bOn = %s;\n", in, boolText(d.On))
	fields := []struct {
		name string
		arg  symbols.Arg
	}{
		{"Mag", d.Mag}, {"Tper", d.Tper}, {"T0", d.T0}, {"Texp", d.Texp}, {"Decay", d.Decay},
	}
	for _, f := range fields {
		g.printf("  %s.d%s = %s;\n", in, f.name, formatFloat(f.arg.Value))
		if f.arg.IsDependency() {
			g.printf("  %s.h%s = %s;\n", in, f.name, g.handle(f.arg))
		} else {
			g.printf("  %s.h%s = 0;\n", in, f.name)
		}
	}
	g.printf("  %s.dVal = 0.0;\n", in)
	g.printf("  %s.nDoses = %d;\n", in, d.Doses())
	if d.Doses() > 0 {
		for _, arr := range []struct {
			field  string
			values []float64
		}{{"rgMags", d.Mags}, {"rgT0s", d.T0s}, {"rgTexps", d.Texps}} {
			g.printf("  %s.%s = (double *) malloc(%d * sizeof(double));\n", in, arr.field, len(arr.values))
			for i, v := range arr.values {
				g.printf("  %s.%s[%d] = %s;\n", in, arr.field, i, formatFloat(v))
			}
		}
	}
}

// handle spells a dosing dependency as the variable map handle its
// target was predicted to get.
func (g *cGenerator) handle(a symbols.Arg) string {
	kind := "ID_PARM"
	switch a.Handle.Kind {
	case symbols.State:
		kind = "ID_STATE"
	case symbols.Output:
		kind = "ID_OUTPUT"
	case symbols.Input:
		kind = "ID_INPUT"
	}
	return fmt.Sprintf("%s | 0x%05x /* %s */", kind, g.index(a.Handle), a.Param)
}

func (g *cGenerator) routine(signature string, c analyzer.Context, s *symbols.Stack, modelVars string, pre func()) {
	tr := g.translator(c, modelVars)
	g.line("")
	g.line(signature)
	g.line("{")
	vars := locals(s, c.LocalKind())
	if c == analyzer.Dynamics || c == analyzer.CalcOutputs {
		vars = append(recordNames(g.functions()), vars...)
	}
	g.declareLocals(vars)
	if pre != nil {
		pre()
	}
	if c == analyzer.Dynamics || c == analyzer.CalcOutputs {
		g.defineFunctions(tr)
	}
	g.equations(s, tr)
	g.line("")
	g.printf("} /* %s */\n", routineName(signature))
	g.line("")
}

func (g *cGenerator) Derivatives() {
	g.line("/*----- Dynamics section */")
	g.routine("void CalcDeriv (double  rgModelVars[], double  rgDerivs[], PDOUBLE pdTime)",
		analyzer.Dynamics, g.tab.Dynamics, "rgModelVars", func() {
			g.line("  CalcInputs (pdTime); /* Get new input vals */")
			g.line("")
		})
}

func (g *cGenerator) Jacobian() {
	g.line("/*----- Jacobian calculations */")
	g.routine("void CalcJacob (PDOUBLE pdTime, double rgModelVars[], double rgPDerivs[], double rgJacob[])",
		analyzer.Jacobian, g.tab.Jacobian, "rgModelVars", nil)
}

func (g *cGenerator) Scale() {
	g.line("/*----- Model scaling */")
	g.routine("void ScaleModel (PDOUBLE pdTime)", analyzer.Scale, g.tab.Scale, "vrgModelVars", nil)
}

func (g *cGenerator) CalcOutputs() {
	g.line("/*----- Outputs calculations */")
	g.routine("void CalcOutputs (double  rgModelVars[], double  rgDerivs[], PDOUBLE pdTime)",
		analyzer.CalcOutputs, g.tab.CalcOutputs, "rgModelVars", nil)
}

func (g *cGenerator) Events() {
	g.line("/*----- Events calculations */")
	g.routine("void CalcEvents (double rgModelVars[], PDOUBLE pdTime)",
		analyzer.Events, g.tab.Events, "rgModelVars", nil)
}

func (g *cGenerator) Roots() {
	tr := g.translator(analyzer.Roots, "rgModelVars")
	g.line("/*----- Roots calculations */")
	g.line("")
	g.line("void CalcRoots (double rgModelVars[], double rgRoots[], PDOUBLE pdTime)")
	g.line("{")
	g.declareLocals(locals(g.tab.Roots, symbols.LocalRoot))
	g.roots(tr, "rgRoots")
	g.line("")
	g.line("} /* CalcRoots */")
	g.line("")
	g.line("")
	g.line("/* End */")
}

// routineName is the function name of a C signature.
func routineName(signature string) string {
	name := signature[:strings.Index(signature, "(")]
	fields := strings.Fields(name)
	return fields[len(fields)-1]
}

func dosingType(k symbols.DosingKind) string {
	switch k {
	case symbols.PerDose:
		return "IH_PERDOSE"
	case symbols.PerRate:
		return "IH_PERRATE"
	case symbols.PerExp:
		return "IH_PEREXP"
	case symbols.NDoses:
		return "IH_NDOSES"
	}
	return "IH_CONSTANT"
}

func boolText(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

// formatFloat writes v as a C double literal.
func formatFloat(v float64) string {
	s := fmt.Sprintf("%g", v)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}
